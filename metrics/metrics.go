// Package metrics exposes the node's Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Drop reasons recorded on lsnp_messages_dropped_total.
const (
	DropMalformed    = "malformed"
	DropMissingField = "missing_field"
	DropBadToken     = "bad_token"
	DropRateLimited  = "rate_limited"
	DropNotFollowed  = "not_followed"
	DropNotMember    = "not_member"
	DropNotAddressed = "not_addressed"
	DropUnknownType  = "unknown_type"
	DropSelf         = "self"
	DropDuplicate    = "duplicate"
	DropRejected     = "rejected"
)

// Transfer outcomes recorded on lsnp_file_transfers_total.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Metrics holds the node's collectors on a private registry, so tests and
// multiple nodes in one process never collide.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	FileTransfers    *prometheus.CounterVec
	GamesFinished    prometheus.Counter
	KnownPeers       prometheus.Gauge
}

// New creates every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lsnp_messages_received_total",
			Help: "Messages received and handled, by TYPE.",
		}, []string{"type"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lsnp_messages_sent_total",
			Help: "Messages sent, by TYPE.",
		}, []string{"type"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lsnp_messages_dropped_total",
			Help: "Messages dropped before handling, by reason.",
		}, []string{"reason"}),
		FileTransfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lsnp_file_transfers_total",
			Help: "Finished file transfers, by outcome.",
		}, []string{"outcome"}),
		GamesFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "lsnp_games_finished_total",
			Help: "Tictactoe games that reached a result.",
		}),
		KnownPeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lsnp_known_peers",
			Help: "Peers currently known to the node.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// keeps the listener off and returns immediately.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logrus.WithFields(logrus.Fields{
		"function": "Serve",
		"addr":     addr,
	}).Info("Serving Prometheus metrics")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
