package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/detector"
	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/imageio"
	"github.com/vistream/detectd/internal/loader"
	"github.com/vistream/detectd/internal/metrics"
	"github.com/vistream/detectd/internal/pipeline"
	"github.com/vistream/detectd/internal/postproc"
)

// run_batch_detector's single-machine topology: one loader per batch slot,
// all slots feeding the same batch tensor in lockstep, no network
// involved. Helper implementations live in dedicated files: version.go,
// config.go, logger.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("detectd-batch %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		l.Warn("shutdown_signal_ignored", "signal", s.String(), "reason", "batch run has no graceful cancellation path")
	}()

	numSlots := len(cfg.pathLists)
	detCfg := detector.Config{
		InputW: cfg.inputW, InputH: cfg.inputH,
		BatchSize: numSlots, Classes: cfg.classes,
		Thresh: cfg.thresh, HierThresh: cfg.hierThresh, NMSThresh: cfg.nmsThresh,
	}
	det := detector.NewStubDetector(detCfg)

	in := bbq.New[frame.ClientFrame](numSlots*4, nil)
	out := bbq.New[frame.Annotated](numSlots*4, nil)
	driver := pipeline.NewDriver(in, det, detCfg, numSlots, pipeline.WithOutput(out), pipeline.WithLogger(l))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := driver.Run(); err != nil {
			l.Error("pipeline_driver_error", "error", err)
		}
	}()

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		sink := postproc.NewLogSink(l)
		if err := postproc.Drain(out, sink); err != nil {
			l.Error("postproc_drain_error", "error", err)
		}
	}()

	for slot, listFile := range cfg.pathLists {
		paths, err := loader.ReadPathList(listFile)
		if err != nil {
			l.Error("path_list_read_failed", "slot", slot, "path_list", listFile, "error", err)
			os.Exit(1)
		}
		slotLoaded := bbq.New[frame.LoadedFrame](32, nil)
		slotID := slot
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := loader.Run(paths, cfg.inputH, cfg.inputW, slotLoaded, imageio.StdLoader{}, l); err != nil {
				l.Error("load_failed", "slot", slotID, "error", err)
			}
		}()
		go func() {
			defer wg.Done()
			loader.AsClientFrames(slotLoaded, in, slotID)
		}()
	}

	wg.Wait()
	<-drainDone
	l.Info("batch_complete")
}
