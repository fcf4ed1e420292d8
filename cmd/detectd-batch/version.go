package main

// Overridden at build time via -ldflags, e.g.:
//   -X main.version=1.2.3 -X main.commit=abcdef -X main.date=2026-07-31
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
