// Package edge implements the split-node pipeline: an edge device runs
// the first K network layers locally (PartialDetector) and forwards the
// intermediate tensor to a remote detector server over the wire codec's
// split framing. Grounded on jetson.c's queue-based
// loader/detector/forwarder pipeline, restructured from its raw
// pthread_mutex/cond Queue into bbq.Queue[T] and from its detector-thread
// forward pass into detector.PartialDetector.
package edge

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/detector"
	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/logging"
	"github.com/vistream/detectd/internal/metrics"
	"github.com/vistream/detectd/internal/wire"
)

// PartialDetectorStage dequeues LoadedFrames, runs the edge-side truncated
// forward pass, and enqueues a PreprocessedFrame per image plus one
// sentinel on input exhaustion.
type PartialDetectorStage struct {
	in     *bbq.Queue[frame.LoadedFrame]
	out    *bbq.Queue[frame.PreprocessedFrame]
	pd     detector.PartialDetector
	logger *slog.Logger
}

// NewPartialDetectorStage builds a PartialDetectorStage.
func NewPartialDetectorStage(in *bbq.Queue[frame.LoadedFrame], out *bbq.Queue[frame.PreprocessedFrame], pd detector.PartialDetector, logger *slog.Logger) *PartialDetectorStage {
	if logger == nil {
		logger = logging.L()
	}
	return &PartialDetectorStage{in: in, out: out, pd: pd, logger: logger}
}

// Run drains in until the LoadedFrame sentinel, forwarding each partial
// detection tensor, then enqueues one PreprocessedFrame sentinel.
func (p *PartialDetectorStage) Run() error {
	for {
		lf, ok := p.in.Dequeue()
		if !ok || lf.End {
			p.out.Enqueue(frame.EndPreprocessedFrame())
			return nil
		}
		tensor, err := p.pd.PredictPartial(lf.Resized)
		if err != nil {
			metrics.IncError(metrics.ErrDetector)
			p.logger.Error("partial_predict_failed", "error", err)
			p.out.Enqueue(frame.EndPreprocessedFrame())
			return fmt.Errorf("edge: partial predict: %w", err)
		}
		p.out.Enqueue(frame.PreprocessedFrame{
			Original:  lf.Original,
			Resized:   lf.Resized,
			Tensor:    tensor,
			TensorLen: len(tensor),
		})
	}
}

// Forwarder dequeues PreprocessedFrames and writes frame_bytes||prep_bytes
// back to back on conn, using the same write-all discipline and optional
// FPS pacing as internal/netclient — the source doesn't pace the
// forwarder, but the edge device is exactly the resource-constrained node
// pacing is meant to protect, so the limiter is available here too and
// defaults to unlimited.
type Forwarder struct {
	conn    net.Conn
	in      *bbq.Queue[frame.PreprocessedFrame]
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderFPS paces writes as internal/netclient.WithFPS does.
func WithForwarderFPS(fps float64) ForwarderOption {
	return func(f *Forwarder) {
		if fps > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(fps), 1)
		}
	}
}

func WithForwarderLogger(l *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewForwarder builds a Forwarder writing to conn and reading from in.
func NewForwarder(conn net.Conn, in *bbq.Queue[frame.PreprocessedFrame], opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		conn:    conn,
		in:      in,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logging.L(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Run drains in until the PreprocessedFrame sentinel, writing each
// resized-original-then-tensor pair, then half-closes the connection.
func (f *Forwarder) Run(ctx context.Context) error {
	defer func() {
		if c, ok := f.conn.(interface{ CloseWrite() error }); ok {
			_ = c.CloseWrite()
		} else {
			_ = f.conn.Close()
		}
	}()
	count := 0
	for {
		pf, ok := f.in.Dequeue()
		if !ok || pf.End {
			f.logger.Info("forward_complete", "frames_forwarded", count)
			return nil
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("edge: forwarder pacing wait: %w", err)
		}
		if err := wire.WriteFrame(f.conn, pf.Resized.Data); err != nil {
			metrics.IncError(metrics.ErrConnWrite)
			return fmt.Errorf("edge: write frame: %w", err)
		}
		if err := wire.WriteFrame(f.conn, pf.Tensor); err != nil {
			metrics.IncError(metrics.ErrConnWrite)
			return fmt.Errorf("edge: write prep: %w", err)
		}
		metrics.IncFramesSent()
		count++
	}
}
