package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/detector"
	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/metrics"
	"github.com/vistream/detectd/internal/pipeline"
	"github.com/vistream/detectd/internal/postproc"
	"github.com/vistream/detectd/internal/server"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, mdns.go, metrics_logger.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("detectd-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	// SIGPIPE is ignored process-wide so a camera disconnect surfaces as a
	// normal write error on that session rather than terminating the process.
	signal.Ignore(unix.SIGPIPE)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	detCfg := detector.Config{
		InputW: cfg.inputW, InputH: cfg.inputH,
		BatchSize: cfg.batchSize, Classes: cfg.classes,
		Thresh: cfg.thresh, HierThresh: cfg.hierThresh, NMSThresh: cfg.nmsThresh,
	}
	if cfg.splitMode {
		detCfg.PrepLen = cfg.prepLen
	}
	det := detector.NewStubDetector(detCfg)

	in := bbq.New[frame.ClientFrame](64, nil)
	out := bbq.New[frame.Annotated](64, nil)
	driver := pipeline.NewDriver(in, det, detCfg, cfg.numWorkers, pipeline.WithOutput(out), pipeline.WithLogger(l))

	var driverWG sync.WaitGroup
	driverWG.Add(2)
	go func() {
		defer driverWG.Done()
		if err := driver.Run(); err != nil {
			l.Error("pipeline_driver_error", "error", err)
		}
	}()
	go func() {
		defer driverWG.Done()
		sink := postproc.NewLogSink(l)
		if err := postproc.Drain(out, sink); err != nil {
			l.Error("postproc_drain_error", "error", err)
		}
	}()

	opts := []server.ServerOption{
		server.WithListenAddr(cfg.listenAddr),
		server.WithOut(in),
		server.WithNumWorkers(cfg.numWorkers),
		server.WithFrameDims(cfg.inputH, cfg.inputW),
		server.WithReadDeadline(cfg.readTimeout),
		server.WithLogger(l),
	}
	if cfg.splitMode {
		opts = append(opts, server.WithSplitMode(cfg.prepLen))
	}
	srv := server.NewServer(opts...)

	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
			return
		}
		// The accept pool has handled its N sessions; the pipeline drains
		// whatever remains on its own once it has seen all N sentinels.
		driverWG.Wait()
		cancel()
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		addr := srv.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 {
			lastColon := strings.LastIndex(addr, ":")
			if lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case <-ctx.Done():
		l.Info("pipeline_complete")
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.readTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("shutdown_error", "error", err)
	}
	in.Close()
	driverWG.Wait()
	wg.Wait()
}
