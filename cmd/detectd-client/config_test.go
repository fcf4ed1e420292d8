package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		serverAddr:  "127.0.0.1:20000",
		pathList:    "paths.txt",
		inputW:      416,
		inputH:      416,
		fps:         0,
		dialTimeout: 5 * time.Second,
		logFormat:   "text",
		logLevel:    "info",
	}
}

func TestConfigValidateOK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"missingPathList", func(c *appConfig) { c.pathList = "" }},
		{"badInputW", func(c *appConfig) { c.inputW = 0 }},
		{"badInputH", func(c *appConfig) { c.inputH = 0 }},
		{"badDialTimeout", func(c *appConfig) { c.dialTimeout = 0 }},
		{"negativeFPS", func(c *appConfig) { c.fps = -1 }},
	}
	for _, tc := range tests {
		c := baseConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestConfigValidateNilReceiver(t *testing.T) {
	var c *appConfig
	if err := c.validate(); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
