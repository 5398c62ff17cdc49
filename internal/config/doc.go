// Package config handles configuration loading, parsing, and validation
// from a .env file, an optional config.yaml and ISPLITTER_-prefixed
// environment variables. It provides type-safe access to the settings of the
// HTTP server, the task queue, the pipeline and the storage, model and status
// backends.
package config
