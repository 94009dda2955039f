package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatcherDebouncesCatalogChanges(t *testing.T) {
	dir := t.TempDir()
	catalogFile := filepath.Join(dir, "catalog.json")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(catalogFile, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var calls []string
	changed := make(chan struct{}, 10)
	w, err := New([]string{catalogFile}, func(_ context.Context, path string) {
		mu.Lock()
		calls = append(calls, path)
		mu.Unlock()
		changed <- struct{}{}
	}, WithDebounce(100*time.Millisecond), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(other, []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(catalogFile, []byte("[ ]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change callback")
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("expected one debounced callback, got %d", len(calls))
	}
	abs, _ := filepath.Abs(catalogFile)
	if calls[0] != abs {
		t.Fatalf("unexpected path %q", calls[0])
	}
}

func TestWatcherStop(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "catalog.json")

	w, err := New([]string{file}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	w.Stop()
	w.Stop()
}

func TestNewRequiresFiles(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error without files")
	}
}
