package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "vectors.index")
	ids := filepath.Join(dir, "vector_ids.json")

	var calls atomic.Int32
	w := NewWatcher([]string{index, ids, ""}, func() { calls.Add(1) }, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(index, []byte{byte(i)}, 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(ids, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if !waitFor(t, func() bool { return calls.Load() >= 1 }) {
		t.Fatal("onChange was not called")
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("onChange called %d times, want 1", n)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := NewWatcher([]string{filepath.Join(dir, "vectors.index")}, func() { calls.Add(1) }, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(250 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("unrelated file should not trigger onChange")
	}
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "vectors.index")
	var calls atomic.Int32
	w := NewWatcher([]string{index}, func() { calls.Add(1) }, WithDebounce(200*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(index, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()
	w.Stop()
	time.Sleep(300 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("pending callback should be cancelled by Stop")
	}
}

func TestWatcher_StartMissingDir(t *testing.T) {
	w := NewWatcher([]string{filepath.Join(t.TempDir(), "absent", "vectors.index")}, func() {})
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Error("expected error for missing directory")
	}
}

func TestNewWatcher_Files(t *testing.T) {
	w := NewWatcher([]string{"/a/b/../x.index", "/a/y.json"}, nil)
	if len(w.Files()) != 2 || !w.files["/a/x.index"] {
		t.Errorf("Files() = %v", w.Files())
	}
	if len(w.dirs) != 1 || w.dirs[0] != "/a" {
		t.Errorf("dirs = %v", w.dirs)
	}
}
