package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// appConfig mirrors run_batch_detector's argument list: one path-list file
// per batch slot, all assumed equal length, plus the detector tuning
// parameters. Unlike cmd/detectd-server and cmd/detectd-client, this
// binary never touches the network: every slot's loader feeds the shared
// pipeline directly, in-process, the way the original single-machine
// batch tool does.
type appConfig struct {
	pathLists  []string
	inputW     int
	inputH     int
	classes    int
	thresh     float64
	hierThresh float64
	nmsThresh  float64
	logFormat  string
	logLevel   string

	metricsAddr string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	pathLists := flag.String("path-lists", "", "Comma-separated path-list files, one per batch slot")
	inputW := flag.Int("input-w", 416, "Detector input width")
	inputH := flag.Int("input-h", 416, "Detector input height")
	classes := flag.Int("classes", 80, "Number of detector output classes")
	thresh := flag.Float64("thresh", 0.5, "Detection confidence threshold")
	hierThresh := flag.Float64("hier-thresh", 0.5, "Hierarchical softmax threshold")
	nmsThresh := flag.Float64("nms-thresh", 0.45, "Non-max suppression IoU threshold")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9103); empty disables")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	if *pathLists != "" {
		for _, p := range strings.Split(*pathLists, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.pathLists = append(cfg.pathLists, p)
			}
		}
	}
	cfg.inputW = *inputW
	cfg.inputH = *inputH
	cfg.classes = *classes
	cfg.thresh = *thresh
	cfg.hierThresh = *hierThresh
	cfg.nmsThresh = *nmsThresh
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
	if len(c.pathLists) == 0 {
		return fmt.Errorf("path-lists is required (comma-separated, one per batch slot)")
	}
	if c.inputW <= 0 || c.inputH <= 0 {
		return fmt.Errorf("input-w/input-h must be > 0")
	}
	if c.classes <= 0 {
		return fmt.Errorf("classes must be > 0")
	}
	return nil
}

// applyEnvOverrides maps DETECTD_BATCH_* environment variables to config
// fields unless a corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["path-lists"]; !ok {
		if v, ok := get("DETECTD_BATCH_PATH_LISTS"); ok && v != "" {
			var lists []string
			for _, p := range strings.Split(v, ",") {
				p = strings.TrimSpace(p)
				if p != "" {
					lists = append(lists, p)
				}
			}
			c.pathLists = lists
		}
	}
	if _, ok := set["classes"]; !ok {
		if v, ok := get("DETECTD_BATCH_CLASSES"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.classes = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DETECTD_BATCH_CLASSES: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("DETECTD_BATCH_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("DETECTD_BATCH_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("DETECTD_BATCH_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	return firstErr
}
