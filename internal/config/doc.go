// Package config handles configuration loading for voyage-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, or taken from Default when no file is given. Default runs
// everything in one process: memory store, memory queue, embedded workers
// and the rule-based agents.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from VOYAGE_CONFIG environment variable
//  3. ./config.yaml (current directory)
//  4. ~/.config/voyage/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	agents:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	worker:
//	  backoff_initial: "1s"
//	  backoff_max: "1m"
//	stream:
//	  turn_timeout: "2m"
//
// # Backends
//
//	store:
//	  backend: sqlite        # memory | sqlite | dynamodb
//	  path: "./voyage.db"
//	queue:
//	  backend: sqs           # memory | sqs
//	  url: "${VOYAGE_QUEUE_URL}"
//
// The memory queue only reaches workers in the same process, so it
// requires worker.embedded. With SQS, run "voyage-gateway worker"
// separately to scale consumers.
//
// # Validation
//
// Load validates the result. Validation fails on a missing http address,
// an unknown backend, a backend without its location, or the openai
// planner without an API key.
package config
