package cancel

import (
	"context"
	"testing"
)

func TestMemoryFlags(t *testing.T) {
	ctx := context.Background()
	var f Flags = NewMemory()

	if ok, _ := f.Requested(ctx, "t1"); ok {
		t.Fatal("flag should start clear")
	}
	if err := f.Request(ctx, "t1"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if ok, _ := f.Requested(ctx, "t1"); !ok {
		t.Error("flag should be set")
	}
	if ok, _ := f.Requested(ctx, "t2"); ok {
		t.Error("flags must be per task")
	}
	if err := f.Clear(ctx, "t1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ok, _ := f.Requested(ctx, "t1"); ok {
		t.Error("flag should be cleared")
	}
}

func TestRedisKey(t *testing.T) {
	r := NewRedis(nil, "")
	if got := r.key("abc"); got != "pageforge:cancel:abc" {
		t.Errorf("key = %q", got)
	}
	r = NewRedis(nil, "staging")
	if got := r.key("abc"); got != "staging:cancel:abc" {
		t.Errorf("key = %q", got)
	}
}
