// Package config provides configuration loading, merging, and path management for agentd.
//
// # Configuration Loading
//
// Load merges configuration from several sources. Later sources win:
//
//  1. Built-in defaults (Default)
//  2. Global config ($XDG_CONFIG_HOME/agent-runtime/agentd.{json,jsonc,yaml,yml})
//  3. Project config (<dir>/agentd.{json,jsonc,yaml,yml})
//  4. AGENTD_CONFIG file, which must exist when set
//  5. <dir>/.env, loaded with godotenv; variables already set are kept
//  6. AGENTD_* environment variables
//
// Zero values in a file leave the earlier value in place. Changing the
// backend kind drops the previous base_url and api_key.
//
// # Supported Formats
//
//   - agentd.json and agentd.jsonc, processed using tidwall/jsonc
//   - agentd.yaml and agentd.yml, decoded with gopkg.in/yaml.v3
//
// Durations are Go duration strings ("100s", "200ms"); bare numbers are seconds.
//
// Extra backends are reached with "<name>/<model>" ids. name defaults to kind
// and must be unique across backend and backends.
//
// # Variable Interpolation
//
//   - {env:VAR_NAME} expands to the environment variable
//   - {file:path} expands to the file's contents, relative to the config file's directory
//
// Example:
//
//	backend:
//	  kind: openai
//	  api_key: "{env:OPENAI_API_KEY}"
//	  model: gpt-4o-mini
//	backends:
//	  - name: gpu
//	    kind: ollama
//	    base_url: http://gpu-box:11434
//	pipeline:
//	  inactivity_timeout: 2m
//	server:
//	  port: 8765
//
// # Environment Variables
//
//   - AGENTD_BACKEND, AGENTD_BASE_URL, AGENTD_API_KEY, AGENTD_MODEL, AGENTD_MAX_TOKENS, AGENTD_TIMEOUT
//   - AGENTD_DEFAULT_MODEL
//   - AGENTD_POLL_INTERVAL, AGENTD_INACTIVITY_TIMEOUT, AGENTD_FALLBACK_TOKENS, AGENTD_FALLBACK_INTERVAL
//   - AGENTD_MAX_CONCURRENT, AGENTD_SHARDS
//   - AGENTD_HOST, AGENTD_PORT, AGENTD_CORS (comma separated)
//   - AGENTD_LOG_LEVEL
//
// OPENAI_API_KEY, ANTHROPIC_API_KEY and ARK_API_KEY fill a missing key for
// their backend kind. OLLAMA_HOST fills a missing Ollama base URL.
//
// # Reloading
//
// Watch uses fsnotify to reload the configuration when a config file changes.
// agentd uses it to apply a new log level without restarting.
package config
