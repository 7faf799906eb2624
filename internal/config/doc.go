// Package config handles configuration loading for the coven widget.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Every tunable the session engine uses (backoff ladder, rate
// limit, inactivity cadence, handover delay) has a default from Defaults, so
// a minimal file only names the widget key and the backend URL.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the -config flag
//  2. Path from COVEN_WIDGET_CONFIG environment variable
//  3. ~/.config/coven/widget.yaml
//
// # Environment Variable Expansion
//
//	backend:
//	  token: "${COVEN_WIDGET_TOKEN}"
//
// # Configuration Sections
//
//	widget:
//	  key: "acme-support"
//	  helpful_threshold: 0.85
//
//	backend:
//	  url: "https://chat.example.com/api"
//	  timeout: "15s"
//
//	storage:
//	  durable: "sqlite"           # memory, sqlite, redis
//	  sqlite_path: "~/.local/share/coven/widget.db"
//	  redis_url: "redis://localhost:6379/0"
//	  redis_ttl: "720h"
//
//	rate_limit:
//	  window: "60s"
//	  max: 10
//
//	sync:
//	  ladder: ["3s", "5s", "10s", "30s", "60s"]
//	  max_idle_polls: 10
//	  seen_limit: 2000
//
//	lifecycle:
//	  inactivity_check: "60s"
//
//	handover:
//	  method: "live_chat"
//	  confirm_delay: "2s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// The same sections are accepted in TOML when the file ends in .toml.
package config
