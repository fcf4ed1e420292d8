// Package server implements the TCP accept side of the camera ingestion
// pipeline: N worker goroutines sharing one listener, serialized through a
// single accept mutex so exactly N sessions are ever accepted, each reading
// one client's frame stream to completion before that worker exits. This is
// a fixed-worker-pool accept loop rather than an always-accepting one,
// because the batch driver needs to know the exact session count up front
// to size its sentinel countdown ; the per-connection read
// loop, option tweaks and ServerOption/logger/metrics wiring keep the
// original single-accept-loop server's shape.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/logging"
	"github.com/vistream/detectd/internal/metrics"
	"github.com/vistream/detectd/internal/sessions"
)

// Sink receives completed ClientFrames. *bbq.Queue[frame.ClientFrame]
// implements it; kept as an interface so tests can substitute a plain
// in-memory fake without pulling bbq into this package's test deps.
type Sink interface {
	Enqueue(frame.ClientFrame)
}

// Server owns the TCP listener and coordinates session lifecycle.
type Server struct {
	mu       sync.RWMutex
	addr     string
	Sessions *sessions.Registry
	Out      Sink

	numWorkers   int
	inputW       int
	inputH       int
	splitMode    bool
	prepLen      int
	readDeadline time.Duration

	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error
	listener  net.Listener
	acceptMu  sync.Mutex
	wg        sync.WaitGroup
	logger    *slog.Logger

	nextConnID     uint64
	totalAccepted  atomic.Uint64
	totalConnected atomic.Uint64
}

const defaultReadDeadline = 60 * time.Second

type ServerOption func(*Server)

// NewServer builds a Server with default settings applied, then opts.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		readDeadline: defaultReadDeadline,
		readyCh:      make(chan struct{}),
		errCh:        make(chan error, 1),
		Sessions:     sessions.NewRegistry(),
		logger:       logging.L(),
		numWorkers:   1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithOut(out Sink) ServerOption        { return func(s *Server) { s.Out = out } }
func WithSessions(r *sessions.Registry) ServerOption {
	return func(s *Server) { s.Sessions = r }
}

// WithNumWorkers sets the exact number of client sessions this server will
// ever accept; the accept pool exits once all N workers have each handled
// one connection to completion by design (no re-accept on this listener).
func WithNumWorkers(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.numWorkers = n
		}
	}
}

// WithFrameDims configures the fixed per-frame byte size: every
// frame is exactly 3*h*w*4 bytes, host-endian, back to back.
func WithFrameDims(h, w int) ServerOption {
	return func(s *Server) { s.inputH = h; s.inputW = w }
}

// WithSplitMode enables reading a trailing preprocessed tensor of prepLen
// float32 values after each frame (split framing: frame_bytes ||
// prep_bytes).
func WithSplitMode(prepLen int) ServerOption {
	return func(s *Server) { s.splitMode = true; s.prepLen = prepLen }
}

func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.readDeadline = d
		}
	}
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error { s.lastErrMu.Lock(); defer s.lastErrMu.Unlock(); return s.lastErr }

// Serve listens and runs exactly numWorkers accept-and-drain workers,
// returning once every worker has exited (one client handled each) or ctx
// is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	if addr == "" {
		addr = ":0"
	}
	s.mu.Unlock()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(metrics.ErrAccept)
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr(), "workers", s.numWorkers)

	go func() { <-ctx.Done(); _ = ln.Close() }()

	var workersWG sync.WaitGroup
	for i := 0; i < s.numWorkers; i++ {
		workersWG.Add(1)
		go func(workerID int) {
			defer workersWG.Done()
			s.acceptWorker(ctx, ln, workerID)
		}(i)
	}
	workersWG.Wait()
	s.logger.Info("accept_pool_done")
	return nil
}

// acceptWorker accepts exactly one connection (serialized against sibling
// workers by acceptMu so two workers never race the same incoming socket)
// and drains that one client's frame stream to completion.
func (s *Server) acceptWorker(ctx context.Context, ln net.Listener, workerID int) {
	s.acceptMu.Lock()
	conn, err := ln.Accept()
	s.acceptMu.Unlock()
	if err != nil {
		select {
		case <-ctx.Done():
			return
		default:
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(metrics.ErrAccept)
		s.setError(wrap)
		return
	}
	s.totalAccepted.Add(1)
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "worker_id", workerID, "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	sess := sessions.NewSession(int(connID))
	if s.Sessions != nil {
		s.Sessions.Add(sess)
	}
	s.totalConnected.Add(1)
	connLogger.Info("client_connected")

	s.wg.Add(1)
	s.runSession(ctx, conn, sess, connLogger)
	s.wg.Done()

	if s.Sessions != nil {
		s.Sessions.Remove(sess)
	}
	connLogger.Info("client_disconnected")
}

// Shutdown closes the listener, so workers still blocked in Accept exit.
// Sessions already being read are not interrupted; Shutdown waits for them
// to finish draining, or returns an error once ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_summary", "accepted", s.totalAccepted.Load(), "connected", s.totalConnected.Load())
		return nil
	}
}
