package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue[int](2)

	for i := 0; i < 20; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	if q.Len() != 20 {
		t.Errorf("Len() = %d, want 20", q.Len())
	}

	for i := 0; i < 20; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("Pop() = %d, want %d", v, i)
		}
	}
}

func TestQueue_WrapAndGrow(t *testing.T) {
	q := newQueue[int](4)

	// Start the ring mid-buffer before growing.
	q.Push(0)
	q.Push(1)
	q.Pop()
	q.Pop()

	for i := 2; i < 12; i++ {
		q.Push(i)
	}
	for i := 2; i < 12; i++ {
		v, _ := q.Pop()
		if v != i {
			t.Fatalf("Pop() = %d, want %d", v, i)
		}
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := newQueue[string](4)
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Error("Push() after Close() should return false")
	}

	for _, want := range []string{"a", "b"} {
		v, ok := q.Pop()
		if !ok || v != want {
			t.Errorf("Pop() = %q, %v, want %q, true", v, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on closed, drained queue should return false")
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := newQueue[int](4)

	var wg sync.WaitGroup
	var got int
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, _ = q.Pop()
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)
	wg.Wait()

	if got != 42 {
		t.Errorf("Pop() = %d, want 42", got)
	}
}
