// Package server implements the TCP broadcast relay.
//
// A single Hub goroutine owns the registry of connected clients and consumes
// connect, disconnect and message events from every connection reader, one at
// a time. The remaining files hold the plumbing around it: the TCP accept
// loop, per-connection readers, configuration, the WebSocket bridge and the
// HTTP routes for health and metrics.
package server
