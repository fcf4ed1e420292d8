// Package netclient implements the pacing network sender: it drains a
// bbq.Queue[frame.LoadedFrame] and writes each resized frame to a
// connected byte stream as a packed wire frame, pacing sends to a target
// FPS. Grounded on the original client source's writen() (retry-until-done
// write loop) and connect-then-stream-then-shutdown lifecycle; pacing
// itself is new (the source client sends as fast as it can) and uses
// golang.org/x/time/rate, promoted from an indirect pack dependency.
package netclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/logging"
	"github.com/vistream/detectd/internal/metrics"
	"github.com/vistream/detectd/internal/wire"
)

// Sender drains a queue of LoadedFrames and writes each resized frame to
// conn as a packed wire frame.
type Sender struct {
	conn    net.Conn
	in      *bbq.Queue[frame.LoadedFrame]
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Sender.
type Option func(*Sender)

// WithFPS paces writes to the given frames-per-second with no burst
// allowance (rate.NewLimiter(rate.Limit(fps), 1)), matching the "average
// throughput matches a configured FPS" contract. A zero or
// negative fps leaves the sender unpaced (rate.Inf).
func WithFPS(fps float64) Option {
	return func(s *Sender) {
		if fps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(fps), 1)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSender builds a Sender writing to conn and reading from in.
func NewSender(conn net.Conn, in *bbq.Queue[frame.LoadedFrame], opts ...Option) *Sender {
	s := &Sender{
		conn:    conn,
		in:      in,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run drains in until the sentinel LoadedFrame, writing each resized frame
// through the pacing limiter, then half-closes the write side. It returns
// the first write error encountered, if any.
func (s *Sender) Run(ctx context.Context) error {
	defer func() {
		if c, ok := s.conn.(interface{ CloseWrite() error }); ok {
			_ = c.CloseWrite()
		} else {
			_ = s.conn.Close()
		}
	}()
	count := 0
	for {
		lf, ok := s.in.Dequeue()
		if !ok || lf.End {
			s.logger.Info("send_complete", "frames_sent", count)
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("netclient: pacing wait: %w", err)
		}
		if err := wire.WriteFrame(s.conn, lf.Resized.Data); err != nil {
			metrics.IncError(metrics.ErrConnWrite)
			return fmt.Errorf("netclient: write frame: %w", err)
		}
		metrics.IncFramesSent()
		count++
	}
}
