package protocol

import "testing"

func TestWriteQueueFIFOOrder(t *testing.T) {
	wq := newWriteQueue()

	wq.push([]byte("a"))
	wq.push([]byte("b"))
	wq.push([]byte("c"))

	if got := wq.len(); got != 3 {
		t.Fatalf("len() = %d, want 3", got)
	}

	for _, want := range []string{"a", "b", "c"} {
		pw := wq.pop()
		if pw == nil {
			t.Fatal("pop() returned nil before queue was drained")
		}
		if string(pw.data) != want {
			t.Errorf("pop() = %q, want %q", pw.data, want)
		}
	}

	if pw := wq.pop(); pw != nil {
		t.Errorf("pop() on empty queue = %+v, want nil", pw)
	}
}
