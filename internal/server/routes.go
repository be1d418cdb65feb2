// Package server wires HTTP handlers into a ServeMux for the relay's HTTP
// surface via routing helpers.
package server

import (
	"net/http"

	"github.com/Tyrowin/tcprelay/internal/metrics"
	"github.com/sirupsen/logrus"
)

// SetupRoutes configures and returns an HTTP ServeMux with the health check,
// metrics, WebSocket bridge and test page routes.
func SetupRoutes(cfg Config, hub *Hub, m *metrics.Metrics, log *logrus.Entry) *http.ServeMux {
	cfg.SetDefaults()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler(hub))
	mux.Handle(cfg.MetricsPath, m.Handler())
	mux.Handle("/ws", NewWebSocketBridge(cfg, hub, log))
	mux.HandleFunc("/test", TestPageHandler(log))
	return mux
}
