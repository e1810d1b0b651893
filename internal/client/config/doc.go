// Package config loads runtime configuration for the studyctl CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional TOML file (see parseTOML) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string     base URL of the remote service
//	-d string     path of the local cache database
//	-l string     log level (debug, info, warn, error)
//	-f string     log format (json, text)
//	-i duration   session revalidation interval (e.g. 5m)
//	-t duration   per-request timeout (e.g. 10s)
//	-m string     address to serve Prometheus metrics on; empty disables it
//
// # TOML schema
//
// Durations are strings understood by time.ParseDuration. Keys left out of
// the file keep their default:
//
//	server_url          = "http://127.0.0.1:8080/api"
//	cache_path          = "studyctl.db"
//	request_timeout     = "10s"
//	log_level           = "warn"
//	log_format          = "text"
//	stale_after         = "10m"
//	monitor_interval    = "5m"
//	login_attempts      = 3
//	login_retry_delay   = "1s"
//	session_attempts    = 3
//	session_retry_delay = "500ms"
//	push_path           = "/notes/ws"
//	push_base_delay     = "1s"
//	push_max_attempts   = 5
//	rate_limit          = 20.0
//	rate_burst          = 10
//	metrics_addr        = ""
//
// The package does not read environment variables.
package config
