// Package config loads and validates grounding-gateway configuration.
//
// Configuration is YAML with ${VAR_NAME} environment expansion and
// human-readable duration strings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	project:
//	  endpoint: "${AZURE_AI_PROJECT_ENDPOINT}"
//	  token: "${AZURE_AI_PROJECT_TOKEN}"
//	  api_version: "2025-05-01"
//
//	agents:
//	  default_model: "gpt-4o"
//	  request_timeout: "2m"
//	  poll_interval: "2s"
//
//	dispatch:
//	  strict_errors: false
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// The config file is optional: Default() produces a runnable configuration
// that picks up the project endpoint and token from AZURE_AI_PROJECT_ENDPOINT
// and AZURE_AI_PROJECT_TOKEN, since the agent bindings themselves already
// live in the environment.
package config
