// Package config handles configuration loading for the veazy client.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults: a missing file is not
// an error for callers that fall back to Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from VEAZY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/veazy/config.yaml
//  3. ~/.config/veazy/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  base_url: "${VEAZY_BACKEND_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	backend:
//	  request_timeout: "30s"
//	upload:
//	  notify_delay: "500ms"
//
// # Configuration Sections
//
// Backend connection:
//
//	backend:
//	  base_url: "http://localhost:8000"
//	  request_timeout: "30s"
//
// Attachment uploads:
//
//	upload:
//	  notify_delay: "500ms"
//
// Local history:
//
//	history:
//	  enabled: true
//	  path: "~/.local/share/veazy/history.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
