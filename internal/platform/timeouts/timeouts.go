// Package timeouts defines shared timeout constants used by the host.
package timeouts

import "time"

// HTTPClient caps a single backend API call.
const HTTPClient = 30 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
