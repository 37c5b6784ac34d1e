// Package config handles configuration loading for meshwatch.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from MESHWATCH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/meshwatch/config.yaml
//  3. ~/.config/meshwatch/config.yaml
//
// A missing file is not an error; the defaults below apply. Files with a
// .toml extension are read as TOML, everything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	capture:
//	  path: "${HOME}/mesh/capture.db"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dedupe:
//	  ttl: "30s"
//
// # Example Configuration
//
//	source:
//	  path: ./session.jsonl
//	  format: jsonl            # or capture
//	  events: [onFromRadio, onMessagePacket, onPositionPacket]
//
//	limits:
//	  events: 200              # texts, positions, telemetry
//	  logs: 500
//	  nodes: 200
//
//	dedupe:
//	  enabled: true
//	  ttl: "30s"
//	  max_size: 1024
//
//	http:
//	  addr: "127.0.0.1:8090"
//
//	capture:
//	  path: ""                 # record delivered frames when set
//
//	logging:
//	  level: info              # debug, info, warn, error
//	  format: text             # text or json
package config
