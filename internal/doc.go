// Package internal contains the core implementation packages for devsite.
//
// # Package Organization
//
//   - partials: include directive expansion with cycle detection
//   - build: page assembly, asset and dependency mirroring, stylesheet
//     compilation and the startup pipeline
//   - watcher: debounced file system monitoring with filters
//   - devserver: per-category watch subscriptions dispatching rebuilds
//   - server: preview HTTP server with script injection and status pages
//   - websocket: live reload client hub
//   - config: layered configuration, defaults and validation
//   - errors: typed errors and per-file failure collection
//   - logging: structured logging on log/slog
//   - validation: path and URL checks
//   - version: build metadata
//
// # Data Flow
//
//   - Watcher events for a source category reach devserver, which runs the
//     matching build action and any configured follow-up steps
//   - Build actions write into the output tree
//   - A second watcher on the output tree asks the server to reload or
//     restyle connected browsers
package internal
