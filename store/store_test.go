package store

import (
	"context"
	"testing"
)

func TestMemoryGetPutDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "room:1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.Put(ctx, "room:1", []byte("snapshot")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "room:1")
	if err != nil || string(got) != "snapshot" {
		t.Fatalf("Get: %q, %v", got, err)
	}
	if err := m.Delete(ctx, "room:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "room:1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryListWithPrefixIsSortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Put(ctx, "room:b", []byte("1"))
	_ = m.Put(ctx, "room:a", []byte("2"))
	_ = m.Put(ctx, "user:x", []byte("3"))

	keys, err := m.ListWithPrefix(ctx, "room:")
	if err != nil {
		t.Fatalf("ListWithPrefix: %v", err)
	}
	if len(keys) != 2 || keys[0] != "room:a" || keys[1] != "room:b" {
		t.Fatalf("expected sorted [room:a room:b], got %v", keys)
	}
}

func TestDiskBackedPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d1, err := NewDiskBacked(dir, nil)
	if err != nil {
		t.Fatalf("NewDiskBacked: %v", err)
	}
	if err := d1.Put(ctx, "room:1", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	d2, err := NewDiskBacked(dir, nil)
	if err != nil {
		t.Fatalf("NewDiskBacked reload: %v", err)
	}
	got, err := d2.Get(ctx, "room:1")
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if string(got) != `{"id":"1"}` {
		t.Fatalf("expected reloaded snapshot, got %q", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type sample struct {
		Name string `json:"name"`
	}
	data, err := Encode(sample{Name: "room-1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out sample
	if err := Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Name != "room-1" {
		t.Fatalf("expected round-trip to preserve Name, got %q", out.Name)
	}
}
