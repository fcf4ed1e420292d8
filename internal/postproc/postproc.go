// Package postproc implements the post-processing / display stage: an
// optional consumer of (original_image, detections) tuples. Windowing
// itself is out of scope (display is an external
// collaborator); what's shipped here is the Sink interface plus two
// concrete sinks used by the CLIs and tests, grounded on the original
// source's draw/save/free loop at the tail of each batch in server.c.
package postproc

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/logging"
)

// Sink consumes one annotated image at a time.
type Sink interface {
	Consume(frame.Annotated) error
}

// Drain dequeues Annotated values from in and hands each to sink, stopping
// when it encounters the end-of-stream sentinel.
func Drain(in interface {
	Dequeue() (frame.Annotated, bool)
}, sink Sink) error {
	for {
		a, ok := in.Dequeue()
		if !ok || a.End {
			return nil
		}
		if err := sink.Consume(a); err != nil {
			return err
		}
	}
}

// LogSink writes one structured slog line per image: client/image id and
// the number of surviving detections.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a LogSink; a nil logger falls back to logging.L().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = logging.L()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Consume(a frame.Annotated) error {
	s.logger.Info("detections",
		"client_id", a.ClientID,
		"image_id", a.ImageID,
		"count", len(a.Detections),
		"width", a.Original.Width,
		"height", a.Original.Height,
	)
	return nil
}

// CountingSink records every Annotated it sees, for tests.
type CountingSink struct {
	mu    sync.Mutex
	seen  []frame.Annotated
	total atomic.Int64
}

func NewCountingSink() *CountingSink { return &CountingSink{} }

func (s *CountingSink) Consume(a frame.Annotated) error {
	s.mu.Lock()
	s.seen = append(s.seen, a)
	s.mu.Unlock()
	s.total.Add(1)
	return nil
}

// Count returns the number of Annotated values consumed so far.
func (s *CountingSink) Count() int { return int(s.total.Load()) }

// Snapshot returns a copy of everything consumed so far.
func (s *CountingSink) Snapshot() []frame.Annotated {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.Annotated, len(s.seen))
	copy(out, s.seen)
	return out
}
