// Package metrics exposes the pipeline's Prometheus instrumentation and the
// standalone metrics listener mounted by the HTTP servers.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsIngested counts telemetry events accepted by the aggregator.
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_events_ingested_total",
		Help: "Telemetry events ingested into aggregation windows.",
	})

	// DiagnosticsEmitted counts Diagnostics published to the broker.
	DiagnosticsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_diagnostics_emitted_total",
		Help: "Diagnostics published on the broker.",
	})

	// MalformedPayloads counts broker payloads rejected at the decode boundary.
	MalformedPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_malformed_payloads_total",
		Help: "Broker payloads that failed Diagnostic validation.",
	})

	// DiagnosticsRouted counts Diagnostics appended per track.
	DiagnosticsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_diagnostics_routed_total",
		Help: "Diagnostics appended to a rotation track.",
	}, []string{"track"})

	// Rotations counts file seal-and-reopen transitions per track.
	Rotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_rotations_total",
		Help: "Completed file rotations per track.",
	}, []string{"track"})

	// RotateFailures counts seal attempts that needed a retry.
	RotateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_rotate_failures_total",
		Help: "File seal or flush failures per track.",
	}, []string{"track"})

	// Uploads counts accepted log uploads.
	Uploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_log_uploads_total",
		Help: "Log files accepted by the transfer service.",
	})

	// Downloads counts served log downloads.
	Downloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_log_downloads_total",
		Help: "Log files served to peers.",
	})

	// RejectedRequests counts transfer requests rejected per reason.
	RejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_rejected_requests_total",
		Help: "Transfer requests rejected, by rejection category.",
	}, []string{"reason"})

	// StoredBytes tracks the bytes currently held by the transfer service.
	StoredBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_stored_bytes",
		Help: "Total bytes of stored peer logs.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server on addr. An empty addr returns nil and no
// metrics listener is started.
func New(addr string) *MetricsServer {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{srv: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
