package hio

import (
	"context"
	"testing"
)

func TestSingleProcessCommunicator(t *testing.T) {
	c := NewSingleProcessCommunicator()
	if c.Size() != 1 || c.Rank() != 0 || !c.IsLeader() {
		t.Fatalf("single-process communicator should report one leader rank")
	}

	ctx := context.Background()
	if err := c.Barrier(ctx); err != nil {
		t.Fatalf("Barrier: %v", err)
	}

	data := []byte("hello")
	got, err := c.Broadcast(ctx, 0, data)
	if err != nil || string(got) != "hello" {
		t.Fatalf("Broadcast() = %q, %v", got, err)
	}

	min, err := c.AllreduceMin(ctx, 42)
	if err != nil || min != 42 {
		t.Fatalf("AllreduceMin() = %d, %v", min, err)
	}
}

func TestErrorString(t *testing.T) {
	e := NewError(NotFound, 3, "DatasetOpen", "/data/x", nil)
	if e.Error() == "" {
		t.Fatal("Error() should never be empty")
	}
	if e.Code.String() != "NOT_FOUND" {
		t.Fatalf("Code.String() = %q, want NOT_FOUND", e.Code.String())
	}
}
