// Package config handles configuration loading for leadwatch.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. Every key has a default; a missing file is not an error for
// callers that use LoadOrDefault.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from LEADWATCH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/leadwatch/leadwatch.yaml
//  3. ~/.config/leadwatch/leadwatch.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  base_url: "${LEADWATCH_BACKEND_URL}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	conversation:
//	  poll_interval: "5s"
//	triage:
//	  poll_interval: "10s"
//
// # Configuration Sections
//
// Backend:
//
//	backend:
//	  base_url: "http://localhost:8000"
//	  timeout: "10s"
//
// Conversation store:
//
//	conversation:
//	  poll_interval: "5s"
//	  auto_scroll: true
//
// Triage list store:
//
//	triage:
//	  limit: 20
//	  poll_interval: "10s"
//	  auto_refresh: true
//
// Web UI:
//
//	web:
//	  listen_addr: "127.0.0.1:8777"
//	  metrics: true
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
