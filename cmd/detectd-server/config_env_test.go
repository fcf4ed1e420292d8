package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverridesBasic(t *testing.T) {
	base := baseConfig()

	os.Setenv("DETECTD_SERVER_NUM_WORKERS", "4")
	os.Setenv("DETECTD_SERVER_MDNS_ENABLE", "true")
	os.Setenv("DETECTD_SERVER_READ_TIMEOUT", "250ms")
	os.Setenv("DETECTD_SERVER_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("DETECTD_SERVER_NUM_WORKERS")
		os.Unsetenv("DETECTD_SERVER_MDNS_ENABLE")
		os.Unsetenv("DETECTD_SERVER_READ_TIMEOUT")
		os.Unsetenv("DETECTD_SERVER_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.numWorkers != 4 {
		t.Fatalf("expected numWorkers override, got %d", base.numWorkers)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.readTimeout != 250*time.Millisecond {
		t.Fatalf("expected readTimeout 250ms got %v", base.readTimeout)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverridesFlagPrecedence(t *testing.T) {
	base := baseConfig()
	base.numWorkers = 2
	os.Setenv("DETECTD_SERVER_NUM_WORKERS", "7")
	t.Cleanup(func() { os.Unsetenv("DETECTD_SERVER_NUM_WORKERS") })
	if err := applyEnvOverrides(base, map[string]struct{}{"num-workers": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.numWorkers != 2 {
		t.Fatalf("expected numWorkers unchanged 2, got %d", base.numWorkers)
	}
}

func TestApplyEnvOverridesBadInt(t *testing.T) {
	base := baseConfig()
	os.Setenv("DETECTD_SERVER_BATCH_SIZE", "notint")
	t.Cleanup(func() { os.Unsetenv("DETECTD_SERVER_BATCH_SIZE") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
