package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/metrics"
	"github.com/vistream/detectd/internal/sessions"
	"github.com/vistream/detectd/internal/wire"
)

// runSession drains one client connection to completion: it reads
// fixed-size frames (and, in split mode, a trailing preprocessed tensor)
// back to back until the client closes its write side or a read error
// occurs, emitting one frame.ClientFrame per image and a final sentinel so
// the batch driver can retire this client's slot deterministically.
func (s *Server) runSession(ctx context.Context, conn net.Conn, sess *sessions.Session, logger *slog.Logger) {
	defer func() { _ = conn.Close() }()
	frameBytes := wire.FrameBytes(s.inputH, s.inputW)
	imageID := 1
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))

		data, err := wire.ReadFrame(conn, frameBytes)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.emitSentinel(sess, logger)
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.emitError(sess, err, logger)
			return
		}

		cf := frame.ClientFrame{
			ClientID: sess.ClientID,
			ImageID:  imageID,
			Original: frame.Frame{Width: s.inputW, Height: s.inputH, Data: data},
		}

		if s.splitMode {
			prep, err := wire.ReadFrame(conn, s.prepLen*4)
			if err != nil {
				s.emitError(sess, err, logger)
				return
			}
			cf.Preprocessed = prep
			cf.HasPrep = true
		}

		metrics.IncFramesReceived(fmt.Sprintf("%d", sess.ClientID))
		sess.RecordImageID(imageID)
		if s.Out != nil {
			s.Out.Enqueue(cf)
		}
		imageID++

		select {
		case <-ctx.Done():
			s.emitSentinel(sess, logger)
			return
		default:
		}
	}
}

func (s *Server) emitSentinel(sess *sessions.Session, logger *slog.Logger) {
	metrics.IncSentinelsSeen()
	logger.Info("client_stream_ended")
	if s.Out != nil {
		s.Out.Enqueue(frame.Sentinel(sess.ClientID))
	}
}

func (s *Server) emitError(sess *sessions.Session, err error, logger *slog.Logger) {
	wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
	metrics.IncError(metrics.ErrConnRead)
	s.setError(wrap)
	logger.Error("conn_read_error", "error", wrap)
	if s.Out != nil {
		s.Out.Enqueue(frame.ErrFrame(sess.ClientID, wrap))
	}
}
