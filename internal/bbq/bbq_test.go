package bbq

import (
	"sync"
	"testing"
	"time"
)

func TestFIFOSingleProducer(t *testing.T) {
	q := New[int](4, nil)
	const n = 50
	go func() {
		for i := 0; i < n; i++ {
			q.Enqueue(i)
		}
	}()
	for i := 0; i < n; i++ {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("unexpected closed queue at i=%d", i)
		}
		if got != i {
			t.Fatalf("FIFO violation: want %d got %d", i, got)
		}
	}
}

func TestBounded(t *testing.T) {
	q := New[int](2, nil)
	q.Enqueue(1)
	q.Enqueue(2)

	done := make(chan struct{})
	go func() {
		q.Enqueue(3) // must block until a slot frees
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("enqueue on full queue returned before a dequeue freed a slot")
	case <-time.After(50 * time.Millisecond):
	}

	if got := q.Len(); got != 2 {
		t.Fatalf("expected full queue len=2, got %d", got)
	}

	if v, _ := q.Dequeue(); v != 1 {
		t.Fatalf("expected head=1, got %d", v)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("blocked enqueue did not unblock after a dequeue")
	}
}

func TestLiveness(t *testing.T) {
	q := New[int](1, nil)
	var wg sync.WaitGroup
	const n = 200
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Enqueue(i)
		}
	}()
	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			v, ok := q.Dequeue()
			if !ok {
				t.Errorf("unexpected closed queue")
				return
			}
			sum += v
		}
	}()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("producer/consumer pair did not complete: possible deadlock")
	}
	want := n * (n - 1) / 2
	if sum != want {
		t.Fatalf("lost items: want sum %d got %d", want, sum)
	}
}

func TestCloseDisposesResidue(t *testing.T) {
	q := New[int](8, nil)
	var disposed []int
	var mu sync.Mutex
	q.dispose = func(v int) {
		mu.Lock()
		disposed = append(disposed, v)
		mu.Unlock()
	}
	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	q.Close()
	mu.Lock()
	defer mu.Unlock()
	if len(disposed) != 5 {
		t.Fatalf("expected 5 disposed items, got %d", len(disposed))
	}
	for i, v := range disposed {
		if v != i {
			t.Fatalf("disposal order mismatch at %d: got %d", i, v)
		}
	}
}

func TestDequeueAfterCloseReturnsFalse(t *testing.T) {
	q := New[int](4, nil)
	q.Close()
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("expected ok=false dequeuing from a closed, empty queue")
	}
}

func TestEnqueueAfterCloseDisposesImmediately(t *testing.T) {
	q := New[int](4, nil)
	var got int
	q.dispose = func(v int) { got = v }
	q.Close()
	q.Enqueue(42)
	if got != 42 {
		t.Fatalf("expected post-close enqueue to be disposed, got %d", got)
	}
}
