package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/detector"
	"github.com/vistream/detectd/internal/edge"
	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/imageio"
	"github.com/vistream/detectd/internal/loader"
	"github.com/vistream/detectd/internal/metrics"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("detectd-edge %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	paths, err := loader.ReadPathList(cfg.pathList)
	if err != nil {
		l.Error("path_list_read_failed", "error", err)
		os.Exit(1)
	}
	l.Info("path_list_loaded", "count", len(paths))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigCh:
			l.Info("shutdown_signal", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	dialer := net.Dialer{Timeout: cfg.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.serverAddr)
	if err != nil {
		l.Error("dial_failed", "server", cfg.serverAddr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	l.Info("connected", "server", cfg.serverAddr)

	loaded := bbq.New[frame.LoadedFrame](32, nil)
	preprocessed := bbq.New[frame.PreprocessedFrame](32, nil)

	var wg sync.WaitGroup
	loadErrCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		loadErrCh <- loader.Run(paths, cfg.inputH, cfg.inputW, loaded, imageio.StdLoader{}, l)
	}()

	pd := detector.NewStubPartialDetector(cfg.prepLen)
	stage := edge.NewPartialDetectorStage(loaded, preprocessed, pd, l)
	stageErrCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		stageErrCh <- stage.Run()
	}()

	forwarder := edge.NewForwarder(conn, preprocessed, edge.WithForwarderFPS(cfg.fps), edge.WithForwarderLogger(l))
	if err := forwarder.Run(ctx); err != nil {
		l.Error("forward_failed", "error", err)
		os.Exit(1)
	}

	wg.Wait()
	if err := <-loadErrCh; err != nil {
		l.Error("load_failed", "error", err)
		os.Exit(1)
	}
	if err := <-stageErrCh; err != nil {
		l.Error("partial_detect_failed", "error", err)
		os.Exit(1)
	}
	l.Info("edge_complete")
}
