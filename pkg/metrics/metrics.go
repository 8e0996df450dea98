// Package metrics exposes the collector's Prometheus registry over HTTP.
// Metrics are defined next to the code that records them (ratelimit, dedup,
// client, scheduler, sink) and registered through promauto.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the collector.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics until Shutdown is called.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// Listen binds addr and starts serving in the background.
func Listen(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s := &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Budget (pkg/ratelimit):
//   - collector_budget_reservations_total{class, result} (Counter): reserved / denied
//
// Deduplication (pkg/dedup):
//   - collector_dedup_claims_total{result} (Counter): claimed / duplicate
//
// Provider (pkg/client):
//   - collector_provider_requests_total{endpoint, status} (Counter)
//   - collector_provider_request_duration_seconds{endpoint} (Histogram)
//   - collector_provider_errors_total{class} (Counter): client, rate_limit, server, network, decode
//   - collector_provider_retries_total{error_class} (Counter)
//
// Discovery (pkg/discovery):
//   - collector_discovery_league_calls_total{result} (Counter): ok / failed
//   - collector_discovery_players (Gauge): distinct players found by the last discovery
//
// Scheduler (pkg/scheduler):
//   - collector_dispatches_total{stage} (Counter): seed / match
//   - collector_inflight_workers{stage} (Gauge)
//   - collector_dropped_items_total{stage} (Counter)
//   - collector_seed_backlog (Gauge): undispatched seed identities
//   - collector_match_queue_depth (Gauge)
//
// Sink (pkg/sink):
//   - collector_sink_writes_total{result} (Counter): written / duplicate / failed
//   - collector_sink_queue_depth (Gauge)
//
// Example Prometheus Queries:
//
//   # Dispatch rate per stage
//   sum by (stage) (rate(collector_dispatches_total[1m]))
//
//   # Provider error ratio
//   sum(rate(collector_provider_errors_total[5m])) / sum(rate(collector_provider_requests_total[5m]))
//
//   # Budget denial ratio (how often the dispatcher had work but no budget)
//   rate(collector_budget_reservations_total{result="denied"}[5m])
