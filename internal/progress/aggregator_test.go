package progress

import (
	"testing"
	"time"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

func seedTasks() []*models.Task {
	return []*models.Task{
		{ID: "a", WorkerType: "backend", Status: models.TaskStatusPending},
		{ID: "b", WorkerType: "backend", Status: models.TaskStatusPending},
		{ID: "c", WorkerType: "frontend", Status: models.TaskStatusPending},
	}
}

func TestInitSeedsSnapshot(t *testing.T) {
	a := New()
	a.Init("s1", seedTasks())

	snap, ok := a.Snapshot("s1")
	if !ok {
		t.Fatal("expected snapshot for s1")
	}
	if snap.Total != 3 || snap.Pending != 3 {
		t.Errorf("unexpected totals: %+v", snap)
	}
	if snap.PerWorkerType["backend"].Total != 2 || snap.PerWorkerType["frontend"].Total != 1 {
		t.Errorf("unexpected per-worker totals: %+v", snap.PerWorkerType)
	}
}

func TestTransitionFoldsIncrementally(t *testing.T) {
	a := New()
	tasks := seedTasks()
	a.Init("s1", tasks)

	tasks[0].Status = models.TaskStatusInProgress
	a.Transition("s1", tasks[0], models.TaskStatusPending)

	snap, _ := a.Snapshot("s1")
	if snap.Pending != 2 || snap.InProgress != 1 {
		t.Errorf("after start: %+v", snap)
	}

	tasks[0].Status = models.TaskStatusCompleted
	a.Transition("s1", tasks[0], models.TaskStatusInProgress)

	snap, _ = a.Snapshot("s1")
	if snap.Completed != 1 || snap.InProgress != 0 {
		t.Errorf("after completion: %+v", snap)
	}
	if snap.PerWorkerType["backend"].Completed != 1 {
		t.Errorf("per-worker completion not folded: %+v", snap.PerWorkerType)
	}
}

func TestTransitionRecordsPostmortem(t *testing.T) {
	a := New()
	tasks := seedTasks()
	a.Init("s1", tasks)

	tasks[0].Status = models.TaskStatusFailed
	tasks[0].Error = "worker exploded"
	a.Transition("s1", tasks[0], models.TaskStatusInProgress)

	tasks[1].Status = models.TaskStatusBlocked
	tasks[1].BlockedReason = "dependency_failed:a"
	a.Transition("s1", tasks[1], models.TaskStatusPending)

	snap, _ := a.Snapshot("s1")
	if len(snap.FailedTasks) != 2 {
		t.Fatalf("expected 2 postmortem entries, got %+v", snap.FailedTasks)
	}
	if snap.FailedTasks[0].Error != "worker exploded" {
		t.Errorf("unexpected entry: %+v", snap.FailedTasks[0])
	}
	if snap.FailedTasks[1].Error != "dependency_failed:a" {
		t.Errorf("unexpected entry: %+v", snap.FailedTasks[1])
	}
}

func TestSubscribeDeliversInitialAndChanges(t *testing.T) {
	a := New()
	tasks := seedTasks()
	a.Init("s1", tasks)

	sub := a.Subscribe("s1")
	if sub == nil {
		t.Fatal("expected subscription")
	}
	defer sub.Cancel()

	first := <-sub.Updates()
	if first.Pending != 3 {
		t.Errorf("unexpected initial snapshot: %+v", first)
	}

	tasks[0].Status = models.TaskStatusInProgress
	a.Transition("s1", tasks[0], models.TaskStatusPending)

	select {
	case next := <-sub.Updates():
		if next.InProgress != 1 {
			t.Errorf("unexpected update: %+v", next)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestSubscribeSuppressesDuplicates(t *testing.T) {
	a := New()
	a.Init("s1", seedTasks())

	sub := a.Subscribe("s1")
	defer sub.Cancel()
	<-sub.Updates()

	// A no-op stage write must not produce an emission.
	a.SetStage("s1", "initializing")

	select {
	case snap := <-sub.Updates():
		t.Errorf("unexpected duplicate emission: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeConflatesBursts(t *testing.T) {
	a := New()
	tasks := seedTasks()
	a.Init("s1", tasks)

	sub := a.Subscribe("s1")
	defer sub.Cancel()
	<-sub.Updates()

	// Burst of transitions with no reader: each fold lands in the cache
	// before any emission, so the conflated value is the final state.
	for _, task := range tasks {
		task.Status = models.TaskStatusInProgress
		a.Transition("s1", task, models.TaskStatusPending)
		task.Status = models.TaskStatusCompleted
		a.Transition("s1", task, models.TaskStatusInProgress)
	}

	select {
	case snap := <-sub.Updates():
		if snap.Completed != 3 || snap.Pending != 0 {
			t.Errorf("conflated snapshot should carry the final state: %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestEvictClosesSubscriptions(t *testing.T) {
	a := New()
	a.Init("s1", seedTasks())

	sub := a.Subscribe("s1")
	<-sub.Updates()

	a.Evict("s1")

	if _, open := <-sub.Updates(); open {
		t.Error("expected channel closed after eviction")
	}
	if _, ok := a.Snapshot("s1"); ok {
		t.Error("expected snapshot evicted")
	}

	// Cancel after eviction is a no-op.
	sub.Cancel()
	if a.Subscribe("s1") != nil {
		t.Error("expected nil subscription for evicted session")
	}
}
