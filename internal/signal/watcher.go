// Package signal provides file-based control signals for running
// orchestrations. Dropping a file into .taskweave/signals asks the engine
// to cancel or pause, which lets external tooling steer a session without
// holding a handle to the process.
package signal

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	// CancelSignal requests cancellation of the running session.
	CancelSignal = "cancel"
	// PauseSignal requests that no new tasks be dispatched.
	PauseSignal = "pause"
)

// Watcher monitors the signals directory of a project.
type Watcher struct {
	signalsDir string

	mu     sync.RWMutex
	cancel bool
	pause  bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher rooted at the project's .taskweave directory.
func NewWatcher(projectRoot string) (*Watcher, error) {
	signalsDir := filepath.Join(projectRoot, ".taskweave", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher; Cancelled/Paused fall back to stat.
		return w, nil
	}
	if err := fsw.Add(signalsDir); err != nil {
		fsw.Close()
		return w, nil
	}
	w.watcher = fsw

	go w.watch()
	return w, nil
}

// watch monitors the signals directory for cancel/pause files.
func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.mu.Lock()
			switch filepath.Base(event.Name) {
			case CancelSignal:
				w.cancel = true
			case PauseSignal:
				w.pause = true
			}
			w.mu.Unlock()
		case <-w.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// Cancelled reports whether a cancel signal was raised. When the fsnotify
// watcher is unavailable it polls the filesystem instead.
func (w *Watcher) Cancelled() bool {
	w.mu.RLock()
	seen := w.cancel
	w.mu.RUnlock()
	if seen {
		return true
	}
	if w.watcher == nil {
		return w.signalExists(CancelSignal)
	}
	return false
}

// Paused reports whether a pause signal was raised.
func (w *Watcher) Paused() bool {
	w.mu.RLock()
	seen := w.pause
	w.mu.RUnlock()
	if seen {
		return true
	}
	if w.watcher == nil {
		return w.signalExists(PauseSignal)
	}
	return false
}

// signalExists is the polling fallback.
func (w *Watcher) signalExists(name string) bool {
	_, err := os.Stat(filepath.Join(w.signalsDir, name))
	return err == nil
}

// Raise creates a signal file, triggering any watcher on this project.
func Raise(projectRoot, name string) error {
	signalsDir := filepath.Join(projectRoot, ".taskweave", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(signalsDir, name), []byte{}, 0644)
}

// Clear removes all signal files so the next session starts clean.
func (w *Watcher) Clear() error {
	w.mu.Lock()
	w.cancel = false
	w.pause = false
	w.mu.Unlock()

	for _, name := range []string{CancelSignal, PauseSignal} {
		path := filepath.Join(w.signalsDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
