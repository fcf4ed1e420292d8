// Package metrics instruments the pipeline with Prometheus counters/gauges
// plus a cheap local-atomic mirror for in-process logging, following the
// teacher's internal/metrics shape (promauto + promhttp + a Snapshot type)
// retargeted from CAN-frame counters to queue depth, batching and
// detector-latency counters.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vistream/detectd/internal/logging"
)

// Prometheus counters/gauges.
var (
	ImagesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "images_loaded_total",
		Help: "Total images read and letterboxed by the loader stage.",
	})
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frames_received_total",
		Help: "Total frames received from client sessions, labelled by client_id.",
	}, []string{"client_id"})
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_sent_total",
		Help: "Total frames written by a network sender stage.",
	})
	BatchesRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batches_run_total",
		Help: "Total detector.Predict invocations.",
	})
	DetectorSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "detector_seconds",
		Help:    "Wall-clock time of each detector.Predict call.",
		Buckets: prometheus.DefBuckets,
	})
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Current occupancy of a named bounded blocking queue.",
	}, []string{"queue"})
	SentinelsSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinels_seen_total",
		Help: "Total end-of-stream sentinels emitted by server client sessions.",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_sessions",
		Help: "Current number of connected client sessions.",
	})
	BackpressureBlockedSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backpressure_blocked_seconds_total",
		Help: "Cumulative time producers spent blocked on a full queue.",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrLoad      = "load"
	ErrConnRead  = "conn_read"
	ErrConnWrite = "conn_write"
	ErrAccept    = "accept"
	ErrDetector  = "detector"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process).
var (
	localImagesLoaded   uint64
	localFramesReceived uint64
	localFramesSent     uint64
	localBatchesRun     uint64
	localSentinelsSeen  uint64
	localErrors         uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	ImagesLoaded   uint64
	FramesReceived uint64
	FramesSent     uint64
	BatchesRun     uint64
	SentinelsSeen  uint64
	Errors         uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		ImagesLoaded:   atomic.LoadUint64(&localImagesLoaded),
		FramesReceived: atomic.LoadUint64(&localFramesReceived),
		FramesSent:     atomic.LoadUint64(&localFramesSent),
		BatchesRun:     atomic.LoadUint64(&localBatchesRun),
		SentinelsSeen:  atomic.LoadUint64(&localSentinelsSeen),
		Errors:         atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncImagesLoaded() {
	ImagesLoaded.Inc()
	atomic.AddUint64(&localImagesLoaded, 1)
}

func IncFramesReceived(clientID string) {
	FramesReceived.WithLabelValues(clientID).Inc()
	atomic.AddUint64(&localFramesReceived, 1)
}

func IncFramesSent() {
	FramesSent.Inc()
	atomic.AddUint64(&localFramesSent, 1)
}

func IncBatchesRun() {
	BatchesRun.Inc()
	atomic.AddUint64(&localBatchesRun, 1)
}

func ObserveDetectorDuration(d time.Duration) {
	DetectorSeconds.Observe(d.Seconds())
}

// SetQueueDepth records the current occupancy of a named queue.
func SetQueueDepth(name string, depth int) {
	QueueDepth.WithLabelValues(name).Set(float64(depth))
}

func IncSentinelsSeen() {
	SentinelsSeen.Inc()
	atomic.AddUint64(&localSentinelsSeen, 1)
}

func SetActiveSessions(n int) { ActiveSessions.Set(float64(n)) }

func AddBackpressureBlocked(d time.Duration) {
	BackpressureBlockedSeconds.Add(d.Seconds())
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{ErrLoad, ErrConnRead, ErrConnWrite, ErrAccept, ErrDetector} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
