// Package watch notifies a running loop driver when the persisted task or
// story documents change underneath it, so external edits are picked up at
// the next iteration boundary without polling.
package watch

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called with the documents that changed, debounced
type ChangeCallback func(changedFiles []string)

// watchedFiles are the store documents worth reacting to.
var watchedFiles = map[string]struct{}{
	"tasks.json": {},
	"prd.json":   {},
}

// StoreWatcher monitors one project directory for store document changes
type StoreWatcher struct {
	watcher  *fsnotify.Watcher
	callback ChangeCallback
	debounce time.Duration

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// New creates a watcher over the given project directory
func New(dir string, callback ChangeCallback) (*StoreWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &StoreWatcher{
		watcher:  watcher,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
		pending:  make(map[string]struct{}),
	}, nil
}

// Start begins watching for file changes
func (w *StoreWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("warning: store watcher: %v", err)
			}
		}
	}()
}

// Stop stops watching for file changes
func (w *StoreWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *StoreWatcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if _, ok := watchedFiles[name]; !ok {
		return
	}
	// Writes, creates and the renames from atomic replacement all count.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[name] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *StoreWatcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}

	files := make([]string, 0, len(pending))
	for name := range pending {
		files = append(files, name)
	}
	w.callback(files)
}
