// Package config handles configuration loading for the triage chat client.
//
// # Configuration File
//
// Default location (first match):
//
//  1. Path from TRIAGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/triage/client.yaml
//  3. ~/.config/triage/client.yaml
//
// Files ending in .toml are read as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	store:
//	  api_key: "${SUPABASE_KEY}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	reconcile:
//	  reconnect_delay: "3s"
//	  hint_ttl: "5s"
//
// # Example
//
//	backend:
//	  url: "ws://localhost:8000"
//	session:
//	  user_id: "patient"
//	  room_id: "room_1700000000000"
//	reconcile:
//	  continuation: "author"
//	  terminal_authors: ["execution_agent"]
//	  thought_authors: ["reasoning_agent"]
//	cache:
//	  driver: "memory"
//	store:
//	  driver: "http"
//	  debounce: "1s"
//	logging:
//	  level: "info"
//	  format: "text"
package config
