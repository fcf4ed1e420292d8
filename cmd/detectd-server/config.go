package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr      string
	numWorkers      int
	inputW          int
	inputH          int
	batchSize       int
	classes         int
	thresh          float64
	hierThresh      float64
	nmsThresh       float64
	splitMode       bool
	prepLen         int
	readTimeout     time.Duration
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", ":20000", "TCP listen address")
	numWorkers := flag.Int("num-workers", 1, "Number of camera clients this server will accept before shutting down")
	inputW := flag.Int("input-w", 416, "Detector input width")
	inputH := flag.Int("input-h", 416, "Detector input height")
	batchSize := flag.Int("batch-size", 8, "Detector batch size")
	classes := flag.Int("classes", 80, "Number of detector output classes")
	thresh := flag.Float64("thresh", 0.5, "Detection confidence threshold")
	hierThresh := flag.Float64("hier-thresh", 0.5, "Hierarchical softmax threshold")
	nmsThresh := flag.Float64("nms-thresh", 0.45, "Non-max suppression IoU threshold")
	splitMode := flag.Bool("split-mode", false, "Expect a trailing preprocessed tensor after each frame")
	prepLen := flag.Int("prep-len", 0, "Preprocessed tensor length in float32 elements (split-mode only)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "Per-connection read deadline")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default detectd-server-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.numWorkers = *numWorkers
	cfg.inputW = *inputW
	cfg.inputH = *inputH
	cfg.batchSize = *batchSize
	cfg.classes = *classes
	cfg.thresh = *thresh
	cfg.hierThresh = *hierThresh
	cfg.nmsThresh = *nmsThresh
	cfg.splitMode = *splitMode
	cfg.prepLen = *prepLen
	cfg.readTimeout = *readTimeout
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.numWorkers <= 0 {
		return fmt.Errorf("num-workers must be > 0 (got %d)", c.numWorkers)
	}
	if c.inputW <= 0 || c.inputH <= 0 {
		return fmt.Errorf("input-w/input-h must be > 0")
	}
	if c.batchSize <= 0 {
		return fmt.Errorf("batch-size must be > 0 (got %d)", c.batchSize)
	}
	if c.readTimeout <= 0 {
		return fmt.Errorf("read-timeout must be > 0")
	}
	if c.splitMode && c.prepLen <= 0 {
		return fmt.Errorf("prep-len must be > 0 when split-mode is enabled")
	}
	return nil
}

// applyEnvOverrides maps DETECTD_SERVER_* environment variables to config
// fields unless a corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("DETECTD_SERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["num-workers"]; !ok {
		if v, ok := get("DETECTD_SERVER_NUM_WORKERS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.numWorkers = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DETECTD_SERVER_NUM_WORKERS: %w", err)
			}
		}
	}
	if _, ok := set["batch-size"]; !ok {
		if v, ok := get("DETECTD_SERVER_BATCH_SIZE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.batchSize = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DETECTD_SERVER_BATCH_SIZE: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("DETECTD_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("DETECTD_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("DETECTD_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["read-timeout"]; !ok {
		if v, ok := get("DETECTD_SERVER_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.readTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DETECTD_SERVER_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("DETECTD_SERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("DETECTD_SERVER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("DETECTD_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DETECTD_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
