package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vistream/detectd/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"images_loaded", snap.ImagesLoaded,
					"frames_received", snap.FramesReceived,
					"frames_sent", snap.FramesSent,
					"batches_run", snap.BatchesRun,
					"sentinels_seen", snap.SentinelsSeen,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
