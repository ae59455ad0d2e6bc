package coord

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/fleetctl/internal/testutil/testlog"
)

func TestMemoryStoreWriteBumpsRevision(t *testing.T) {
	testlog.Start(t)

	ctx := context.Background()
	store := NewMemoryStore()
	path := ProvisionResultPath("child1")
	if path != "/fabric/registry/containers/provision/child1/result" {
		t.Fatalf("unexpected provision result path: %q", path)
	}

	if err := store.Write(ctx, path, SwitchingProfile); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if err := store.Write(ctx, path+"/", "success"); err != nil {
		t.Fatalf("overwrite marker: %v", err)
	}
	entry, err := store.Get(ctx, path)
	if err != nil {
		t.Fatalf("get marker: %v", err)
	}
	if entry.Value != "success" {
		t.Fatalf("unexpected value: %q", entry.Value)
	}
	if entry.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", entry.Revision)
	}
}

func TestMemoryStoreRejectsInvalidPaths(t *testing.T) {
	testlog.Start(t)

	ctx := context.Background()
	store := NewMemoryStore()
	for _, path := range []string{"", "relative/path", "/double//slash"} {
		if err := store.Write(ctx, path, "x"); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("path %q: expected ErrInvalidPath, got %v", path, err)
		}
	}
	if _, err := store.Get(ctx, "/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreListByPrefix(t *testing.T) {
	testlog.Start(t)

	ctx := context.Background()
	store := NewMemoryStore()
	for _, id := range []string{"b", "a"} {
		if err := store.Write(ctx, ProvisionResultPath(id), SwitchingProfile); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	if err := store.Write(ctx, "/other/key", "v"); err != nil {
		t.Fatalf("write other: %v", err)
	}

	keys, err := store.List(ctx, provisionRoot)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != ProvisionResultPath("a") || keys[1] != ProvisionResultPath("b") {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestMemoryStoreHonorsCancelledContext(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryStore().Write(ctx, ProvisionResultPath("c"), "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
