package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStoreWatcher_ReportsStoreEdits(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)

	w, err := New(dir, func(changed []string) {
		mu.Lock()
		got = append(got, changed...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.debounce = 50 * time.Millisecond

	w.Start(context.Background())

	if err := os.WriteFile(filepath.Join(dir, "tasks.json"), []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reported the change")
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, name := range got {
		if name == "tasks.json" {
			found = true
		}
	}
	if !found {
		t.Errorf("changed files = %v, want tasks.json", got)
	}
}

func TestStoreWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()

	called := make(chan struct{}, 1)
	w, err := New(dir, func(changed []string) {
		select {
		case called <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.debounce = 50 * time.Millisecond

	w.Start(context.Background())

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
		t.Error("unrelated file should not trigger the callback")
	case <-time.After(300 * time.Millisecond):
	}
}
