package postproc

import (
	"testing"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/frame"
)

func TestDrainStopsAtSentinel(t *testing.T) {
	q := bbq.New[frame.Annotated](4, nil)
	q.Enqueue(frame.Annotated{ClientID: 1, ImageID: 1})
	q.Enqueue(frame.Annotated{ClientID: 1, ImageID: 2})
	q.Enqueue(frame.EndAnnotated())
	q.Enqueue(frame.Annotated{ClientID: 1, ImageID: 99}) // must not be consumed

	sink := NewCountingSink()
	if err := Drain(q, sink); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if sink.Count() != 2 {
		t.Fatalf("expected 2 consumed, got %d", sink.Count())
	}
}

func TestLogSinkDoesNotError(t *testing.T) {
	sink := NewLogSink(nil)
	if err := sink.Consume(frame.Annotated{ClientID: 1, ImageID: 1}); err != nil {
		t.Fatalf("Consume: %v", err)
	}
}
