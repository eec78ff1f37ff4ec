// Package httpserver provides the shared HTTP serving shell used by the
// pipeline binaries: chi router with standard middleware, structured
// request logging, liveness/readiness/drain endpoints, an optional metrics
// listener and graceful shutdown.
package httpserver
