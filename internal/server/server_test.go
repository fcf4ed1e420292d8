package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/wire"
)

// fakeSink is an in-memory Sink for assertions without pulling in bbq.
type fakeSink struct {
	mu    sync.Mutex
	items []frame.ClientFrame
}

func (f *fakeSink) Enqueue(cf frame.ClientFrame) {
	f.mu.Lock()
	f.items = append(f.items, cf)
	f.mu.Unlock()
}

func (f *fakeSink) snapshot() []frame.ClientFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame.ClientFrame, len(f.items))
	copy(out, f.items)
	return out
}

func waitFor(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", deadline)
}

// TestTwoClientsThreeFramesEach covers scenario S3: 2 clients each sending
// 3 frames must yield 6 frames plus exactly 2 sentinels, one per client.
func TestTwoClientsThreeFramesEach(t *testing.T) {
	sink := &fakeSink{}
	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithOut(sink), WithFrameDims(2, 2), WithNumWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}

	var wg sync.WaitGroup
	for c := 0; c < 2; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", srv.Addr())
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer conn.Close()
			data := make([]float32, frame.Channels*2*2)
			for i := 0; i < 3; i++ {
				if err := wire.WriteFrame(conn, data); err != nil {
					t.Errorf("write frame: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 8 })

	items := sink.snapshot()
	sentinels := 0
	frames := 0
	for _, cf := range items {
		if cf.IsSentinel() {
			sentinels++
		} else {
			frames++
		}
	}
	if frames != 6 {
		t.Fatalf("expected 6 data frames, got %d", frames)
	}
	if sentinels != 2 {
		t.Fatalf("expected 2 sentinels, got %d", sentinels)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

// TestSplitModeFraming covers S6: frame_bytes||prep_bytes concatenation.
func TestSplitModeFraming(t *testing.T) {
	sink := &fakeSink{}
	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithOut(sink), WithFrameDims(1, 1), WithSplitMode(4), WithNumWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	<-srv.Ready()

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	frameData := []float32{1, 2, 3}
	prepData := []float32{9, 9, 9, 9}
	if err := wire.WriteFrame(conn, frameData); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := wire.WriteFrame(conn, prepData); err != nil {
		t.Fatalf("write prep: %v", err)
	}
	conn.Close()

	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 2 })
	items := sink.snapshot()
	if items[0].IsSentinel() {
		t.Fatalf("expected data frame first")
	}
	if !items[0].HasPrep || len(items[0].Preprocessed) != 4 {
		t.Fatalf("expected preprocessed tensor of length 4, got %+v", items[0])
	}
	if !items[1].IsSentinel() {
		t.Fatalf("expected sentinel second")
	}
}

// TestClientWriteSideClosedDoesNotCrashServer covers S5-adjacent behavior:
// a client that closes its connection mid-stream yields a sentinel for
// that session only; the server keeps running for other sessions.
func TestClientWriteSideClosedDoesNotCrashServer(t *testing.T) {
	sink := &fakeSink{}
	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithOut(sink), WithFrameDims(1, 1), WithNumWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	<-srv.Ready()

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// Close immediately without writing anything: a clean EOF on the frame
	// boundary, so the session ends with a plain sentinel.
	conn.Close()

	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 1 })
	if !sink.snapshot()[0].IsSentinel() {
		t.Fatalf("expected a sentinel/error frame for the aborted session")
	}
}
