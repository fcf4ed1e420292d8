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
	serverAddr  string
	pathList    string
	inputW      int
	inputH      int
	prepLen     int
	fps         float64
	dialTimeout time.Duration
	logFormat   string
	logLevel    string
	metricsAddr string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serverAddr := flag.String("server", "127.0.0.1:20001", "Remote detector server address")
	pathList := flag.String("path-list", "", "File containing one image path per line")
	inputW := flag.Int("input-w", 416, "Letterbox target width")
	inputH := flag.Int("input-h", 416, "Letterbox target height")
	prepLen := flag.Int("prep-len", 1024, "Partial-detector output tensor length in float32 elements")
	fps := flag.Float64("fps", 0, "Target forward rate in frames per second (0 disables pacing)")
	dialTimeout := flag.Duration("dial-timeout", 5*time.Second, "TCP dial timeout")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9102); empty disables")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.serverAddr = *serverAddr
	cfg.pathList = *pathList
	cfg.inputW = *inputW
	cfg.inputH = *inputH
	cfg.prepLen = *prepLen
	cfg.fps = *fps
	cfg.dialTimeout = *dialTimeout
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr

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
	if c.pathList == "" {
		return fmt.Errorf("path-list is required")
	}
	if c.inputW <= 0 || c.inputH <= 0 {
		return fmt.Errorf("input-w/input-h must be > 0")
	}
	if c.prepLen <= 0 {
		return fmt.Errorf("prep-len must be > 0")
	}
	if c.dialTimeout <= 0 {
		return fmt.Errorf("dial-timeout must be > 0")
	}
	if c.fps < 0 {
		return fmt.Errorf("fps must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps DETECTD_EDGE_* environment variables to config
// fields unless a corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["server"]; !ok {
		if v, ok := get("DETECTD_EDGE_SERVER"); ok && v != "" {
			c.serverAddr = v
		}
	}
	if _, ok := set["path-list"]; !ok {
		if v, ok := get("DETECTD_EDGE_PATH_LIST"); ok && v != "" {
			c.pathList = v
		}
	}
	if _, ok := set["prep-len"]; !ok {
		if v, ok := get("DETECTD_EDGE_PREP_LEN"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.prepLen = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DETECTD_EDGE_PREP_LEN: %w", err)
			}
		}
	}
	if _, ok := set["fps"]; !ok {
		if v, ok := get("DETECTD_EDGE_FPS"); ok && v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
				c.fps = f
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DETECTD_EDGE_FPS: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("DETECTD_EDGE_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("DETECTD_EDGE_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("DETECTD_EDGE_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["dial-timeout"]; !ok {
		if v, ok := get("DETECTD_EDGE_DIAL_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.dialTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DETECTD_EDGE_DIAL_TIMEOUT: %w", err)
			}
		}
	}
	return firstErr
}
