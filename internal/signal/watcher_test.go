package signal

import (
	"testing"
	"time"
)

func TestRaiseSetsCancelled(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(root)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	if w.Cancelled() {
		t.Fatal("cancel should start clear")
	}

	if err := Raise(root, CancelSignal); err != nil {
		t.Fatalf("raise: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !w.Cancelled() {
		select {
		case <-deadline:
			t.Fatal("cancel signal never observed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if w.Paused() {
		t.Error("pause should remain clear")
	}
}

func TestClearResetsSignals(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(root)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	if err := Raise(root, PauseSignal); err != nil {
		t.Fatalf("raise: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !w.Paused() {
		select {
		case <-deadline:
			t.Fatal("pause signal never observed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := w.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if w.Paused() || w.Cancelled() {
		t.Error("signals should be clear after Clear")
	}
}
