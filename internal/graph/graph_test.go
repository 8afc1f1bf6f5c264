package graph

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{
		ID:        id,
		Priority:  models.DefaultPriority,
		Status:    models.TaskStatusPending,
		DependsOn: deps,
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{task("a", "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}

	var unknownErr *UnknownDependencyError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownDependencyError, got %T: %v", err, err)
	}
	if unknownErr.TaskID != "a" || unknownErr.MissingDepID != "ghost" {
		t.Errorf("unexpected error fields: %+v", unknownErr)
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{task("a", "b"), task("b", "a")})
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %T", err)
	}
	if len(cycleErr.InvolvedIDs) != 2 {
		t.Errorf("expected 2 involved ids, got %v", cycleErr.InvolvedIDs)
	}
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		task("c", "a", "b"),
		task("a"),
		task("b", "a"),
		task("d", "c"),
	}
	if err := g.Build(tasks); err != nil {
		t.Fatalf("build: %v", err)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("topological order: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(order))
	}

	pos := make(map[string]int)
	for i, tk := range order {
		pos[tk.ID] = i
	}
	for _, tk := range tasks {
		for _, dep := range tk.DependsOn {
			if pos[dep] >= pos[tk.ID] {
				t.Errorf("task %s placed before dependency %s", tk.ID, dep)
			}
		}
	}
}

func TestTopologicalOrderTieBreaksByPriorityThenInsertion(t *testing.T) {
	g := New()
	low := task("low")
	low.Priority = 5
	urgent := task("urgent")
	urgent.Priority = 1
	mid1 := task("mid-first")
	mid2 := task("mid-second")

	if err := g.Build([]*models.Task{low, mid1, urgent, mid2}); err != nil {
		t.Fatalf("build: %v", err)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("topological order: %v", err)
	}

	got := []string{order[0].ID, order[1].ID, order[2].ID, order[3].ID}
	want := []string{"urgent", "mid-first", "mid-second", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestReadyTasksUnlocksAfterCompletion(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b", "a"), task("c", "a")}); err != nil {
		t.Fatalf("build: %v", err)
	}

	ready, _ := g.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("expected only a ready, got %v", ids(ready))
	}

	if err := g.Transition("a", models.TaskStatusInProgress, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ready, _ = g.ReadyTasks(); len(ready) != 0 {
		t.Error("nothing should be ready while a runs")
	}

	if err := g.Transition("a", models.TaskStatusCompleted, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	ready, _ = g.ReadyTasks()
	if len(ready) != 2 {
		t.Fatalf("expected b and c ready together, got %v", ids(ready))
	}
}

func TestReadyTasksBlocksDependentsOfFailure(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b", "a"), task("c", "b")}); err != nil {
		t.Fatalf("build: %v", err)
	}

	mustTransition(t, g, "a", models.TaskStatusInProgress)
	mustTransition(t, g, "a", models.TaskStatusFailed)

	ready, blocked := g.ReadyTasks()
	if len(ready) != 0 {
		t.Fatal("expected no ready tasks after failure")
	}
	if got := ids(blocked); len(got) != 2 {
		t.Fatalf("expected b and c reported blocked, got %v", got)
	}
	if got := g.Task("b").Status; got != models.TaskStatusBlocked {
		t.Errorf("expected b blocked, got %s", got)
	}
	if reason := g.Task("b").BlockedReason; reason != "dependency_failed:a" {
		t.Errorf("unexpected blocked reason %q", reason)
	}

	// Blocking cascades transitively within a single call.
	if got := g.Task("c").Status; got != models.TaskStatusBlocked {
		t.Errorf("expected c blocked, got %s", got)
	}
	if reason := g.Task("c").BlockedReason; reason != "dependency_failed:b" {
		t.Errorf("unexpected blocked reason %q", reason)
	}
}

func TestReadyTasksOptionalDependencyFailureIsSatisfied(t *testing.T) {
	g := New()
	dependent := task("b")
	dependent.OptionalDeps = []string{"a"}
	if err := g.Build([]*models.Task{task("a"), dependent}); err != nil {
		t.Fatalf("build: %v", err)
	}

	// Optional dep not yet terminal: b waits.
	ready, _ := g.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("expected only a ready, got %v", ids(ready))
	}

	mustTransition(t, g, "a", models.TaskStatusInProgress)
	mustTransition(t, g, "a", models.TaskStatusFailed)

	ready, _ = g.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Fatalf("expected b ready despite optional dep failure, got %v", ids(ready))
	}
}

func TestTransitionEnforcesMonotonicity(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a")}); err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := g.Transition("a", models.TaskStatusCompleted, ""); err == nil {
		t.Error("pending -> completed should be rejected")
	}

	mustTransition(t, g, "a", models.TaskStatusInProgress)
	mustTransition(t, g, "a", models.TaskStatusCompleted)

	if err := g.Transition("a", models.TaskStatusFailed, "boom"); err == nil {
		t.Error("transition out of terminal state should be rejected")
	}
}

func TestTransitiveDependents(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b", "a"), task("c", "b"), task("d")}); err != nil {
		t.Fatalf("build: %v", err)
	}

	deps := g.TransitiveDependents("a")
	if len(deps) != 2 || deps[0] != "b" || deps[1] != "c" {
		t.Errorf("unexpected transitive dependents: %v", deps)
	}
}

func mustTransition(t *testing.T, g *TaskGraph, id string, next models.TaskStatus) {
	t.Helper()
	if err := g.Transition(id, next, ""); err != nil {
		t.Fatalf("transition %s -> %s: %v", id, next, err)
	}
}

func ids(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, tk := range tasks {
		out[i] = tk.ID
	}
	return out
}

func TestStatusAndUnsettledTrackTransitions(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b", "a"), task("c")}); err != nil {
		t.Fatalf("build: %v", err)
	}

	if got := g.Status("a"); got != models.TaskStatusPending {
		t.Fatalf("expected pending, got %s", got)
	}
	if got := g.Status("ghost"); got != "" {
		t.Errorf("expected empty status for unknown id, got %q", got)
	}

	if err := g.Transition("a", models.TaskStatusInProgress, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	pending, inProgress := g.Unsettled()
	if len(pending) != 2 || pending[0].ID != "b" || pending[1].ID != "c" {
		t.Errorf("unexpected pending set: %v", pending)
	}
	if len(inProgress) != 1 || inProgress[0].ID != "a" {
		t.Errorf("unexpected in-progress set: %v", inProgress)
	}

	if err := g.Transition("a", models.TaskStatusCompleted, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got := g.Status("a"); got != models.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestSettleReportsActualPriorStatus(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b")}); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := g.Transition("a", models.TaskStatusInProgress, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	from, err := g.Settle("a", models.TaskStatusFailed, "cancelled")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if from != models.TaskStatusInProgress {
		t.Errorf("expected prior status in_progress, got %s", from)
	}
	if got := g.Status("a"); got != models.TaskStatusFailed {
		t.Errorf("expected failed, got %s", got)
	}
	if g.Task("a").Error != "cancelled" {
		t.Errorf("expected error recorded, got %q", g.Task("a").Error)
	}

	// A settled task refuses further transitions and reports where it is.
	if from, err = g.Settle("a", models.TaskStatusCompleted, ""); err == nil {
		t.Fatal("expected monotonicity violation")
	} else if from != models.TaskStatusFailed {
		t.Errorf("expected reported status failed, got %s", from)
	}
}
