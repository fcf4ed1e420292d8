package pipeline

import (
	"errors"
	"testing"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/detector"
	"github.com/vistream/detectd/internal/frame"
)

func cfg(batchSize, h, w int) detector.Config {
	return detector.Config{InputW: w, InputH: h, BatchSize: batchSize, Classes: 1, Thresh: 0.5, HierThresh: 0.5, NMSThresh: 0.4}
}

func pushFrame(q *bbq.Queue[frame.ClientFrame], clientID, imageID, h, w int) {
	q.Enqueue(frame.ClientFrame{
		ClientID: clientID,
		ImageID:  imageID,
		Original: frame.Frame{Width: w, Height: h, Data: make([]float32, frame.Channels*h*w)},
	})
}

// TestSingleProducerStopsOnFirstSentinel covers S1/S2: a single-producer
// topology (expectedSentinels==1) exits the fill loop immediately.
func TestSingleProducerStopsOnFirstSentinel(t *testing.T) {
	c := cfg(4, 2, 2)
	in := bbq.New[frame.ClientFrame](8, nil)
	out := bbq.New[frame.Annotated](8, nil)
	det := detector.NewStubDetector(c)
	d := NewDriver(in, det, c, 1, WithOutput(out))

	pushFrame(in, 0, 1, 2, 2)
	pushFrame(in, 0, 2, 2, 2)
	in.Enqueue(frame.Sentinel(0))

	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := det.BatchCount(); got != 1 {
		t.Fatalf("expected 1 partial batch predicted, got %d", got)
	}

	var annotated, sentinels int
	for {
		a, ok := out.Dequeue()
		if !ok {
			break
		}
		if a.End {
			sentinels++
			break
		}
		annotated++
	}
	if annotated != 2 {
		t.Fatalf("expected 2 annotated frames, got %d", annotated)
	}
	if sentinels != 1 {
		t.Fatalf("expected 1 end-of-stream Annotated, got %d", sentinels)
	}
}

// TestServerTopologyWaitsForAllSentinels covers S3: with N=2 expected
// sentinels, the driver must not treat the stream as done until both
// clients' sentinels have been observed, even if they interleave with
// frames from the other client.
func TestServerTopologyWaitsForAllSentinels(t *testing.T) {
	c := cfg(2, 2, 2)
	in := bbq.New[frame.ClientFrame](8, nil)
	out := bbq.New[frame.Annotated](8, nil)
	det := detector.NewStubDetector(c)
	d := NewDriver(in, det, c, 2, WithOutput(out))

	go func() {
		pushFrame(in, 1, 1, 2, 2)
		pushFrame(in, 2, 1, 2, 2)
		in.Enqueue(frame.Sentinel(1))
		pushFrame(in, 2, 2, 2, 2)
		pushFrame(in, 2, 3, 2, 2)
		in.Enqueue(frame.Sentinel(2))
	}()

	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	total := 0
	for {
		a, ok := out.Dequeue()
		if !ok || a.End {
			break
		}
		total++
	}
	if total != 4 {
		t.Fatalf("expected 4 annotated frames across both clients, got %d", total)
	}
}

// TestFullBatchRunsOncePerBatchSize covers testable property 7: a full
// batch triggers exactly one Predict call per BatchSize frames.
func TestFullBatchRunsOncePerBatchSize(t *testing.T) {
	c := cfg(2, 2, 2)
	in := bbq.New[frame.ClientFrame](8, nil)
	det := detector.NewStubDetector(c)
	d := NewDriver(in, det, c, 1)

	go func() {
		for i := 1; i <= 4; i++ {
			pushFrame(in, 0, i, 2, 2)
		}
		in.Enqueue(frame.Sentinel(0))
	}()

	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := det.BatchCount(); got != 2 {
		t.Fatalf("expected 2 full batches of size 2, got %d", got)
	}
}

// TestErrorFrameCountsAsSentinel asserts an error-tagged ClientFrame is
// treated like a sentinel for accounting purposes.
func TestErrorFrameCountsAsSentinel(t *testing.T) {
	c := cfg(4, 2, 2)
	in := bbq.New[frame.ClientFrame](8, nil)
	det := detector.NewStubDetector(c)
	d := NewDriver(in, det, c, 1)

	pushFrame(in, 0, 1, 2, 2)
	in.Enqueue(frame.ErrFrame(0, errBoom))

	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := det.BatchCount(); got != 1 {
		t.Fatalf("expected the partial batch to still run, got %d batches", got)
	}
}

var errBoom = errors.New("boom")
