package netclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/wire"
)

func TestSenderWritesFramesThenClosesWriteSide(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	in := bbq.New[frame.LoadedFrame](4, nil)
	data1 := []float32{1, 2, 3}
	data2 := []float32{4, 5, 6}
	go func() {
		in.Enqueue(frame.LoadedFrame{Resized: frame.Frame{Width: 1, Height: 1, Data: data1}})
		in.Enqueue(frame.LoadedFrame{Resized: frame.Frame{Width: 1, Height: 1, Data: data2}})
		in.Enqueue(frame.EndLoadedFrame())
	}()

	sender := NewSender(clientConn, in)
	done := make(chan error, 1)
	go func() { done <- sender.Run(context.Background()) }()

	got1, err := wire.ReadFrame(serverConn, 12)
	if err != nil {
		t.Fatalf("read frame 1: %v", err)
	}
	got2, err := wire.ReadFrame(serverConn, 12)
	if err != nil {
		t.Fatalf("read frame 2: %v", err)
	}
	if len(got1) != 3 || len(got2) != 3 {
		t.Fatalf("unexpected frame lengths: %d %d", len(got1), len(got2))
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sender did not finish")
	}
}

func TestSenderPropagatesContextCancellation(t *testing.T) {
	_, clientConn := net.Pipe()
	defer clientConn.Close()

	in := bbq.New[frame.LoadedFrame](4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := NewSender(clientConn, in, WithFPS(1))
	in.Enqueue(frame.LoadedFrame{Resized: frame.Frame{Width: 1, Height: 1, Data: []float32{1}}})

	err := sender.Run(ctx)
	if err == nil {
		t.Fatalf("expected pacing wait to fail on a canceled context")
	}
}
