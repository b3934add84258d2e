// Package server holds the HTTP server configuration.
//
// While the main application entry point handles the server startup, this package
// defines the configuration structure for the listener and the API key.
//
// # Configuration
//
// The Config struct defines the HTTP host and port, the API key and the graceful
// shutdown timeout. Address() renders the listen address passed to fiber.
//
// # Usage
//
// This package is primarily used by the core/config package to embed server settings
// and by the start command to bind the listener and configure authentication.
package server
