// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dexwatch/internal/model"
)

const namespace = "dexwatch"

// Metrics holds every pipeline counter. It satisfies the observer interfaces
// of the watcher, classifier, fanout and pipeline packages.
type Metrics struct {
	Registry *prometheus.Registry

	published   *prometheus.CounterVec
	missing     *prometheus.CounterVec
	classified  *prometheus.CounterVec
	dropped     prometheus.Counter
	decoded     prometheus.Counter
	lagged      *prometheus.CounterVec
	writes      *prometheus.CounterVec
	writeErrors *prometheus.CounterVec
	restarts    *prometheus.CounterVec
}

// New creates and registers the counters on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_published_total",
			Help:      "Items fetched and published by a chain watcher.",
		}, []string{"feed"}),
		missing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_missing_total",
			Help:      "Notified hashes the node no longer knew about.",
		}, []string{"feed"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_matched_total",
			Help:      "Transactions republished by the classifier, by role.",
		}, []string{"role"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_dropped_total",
			Help:      "Transactions to unknown destinations.",
		}),
		decoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_decoded_total",
			Help:      "Successful input or output decodes of matched transactions.",
		}),
		lagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_lagged_messages_total",
			Help:      "Messages skipped by subscribers that fell behind a broadcast channel.",
		}, []string{"subscriber"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_writes_total",
			Help:      "Successful writes by fanout consumers.",
		}, []string{"consumer"}),
		writeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_write_errors_total",
			Help:      "Failed writes by fanout consumers.",
		}, []string{"consumer"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_restarts_total",
			Help:      "Supervised task restarts.",
		}, []string{"task"}),
	}

	m.Registry.MustRegister(
		m.published, m.missing, m.classified, m.dropped, m.decoded,
		m.lagged, m.writes, m.writeErrors, m.restarts,
	)
	return m
}

func (m *Metrics) Published(feed string) { m.published.WithLabelValues(feed).Inc() }

func (m *Metrics) Missing(feed string) { m.missing.WithLabelValues(feed).Inc() }

func (m *Metrics) Classified(role model.Role) { m.classified.WithLabelValues(role.String()).Inc() }

func (m *Metrics) Dropped() { m.dropped.Inc() }

func (m *Metrics) Decoded(n int) { m.decoded.Add(float64(n)) }

func (m *Metrics) Lagged(subscriber string, skipped uint64) {
	m.lagged.WithLabelValues(subscriber).Add(float64(skipped))
}

func (m *Metrics) Written(consumer string) { m.writes.WithLabelValues(consumer).Inc() }

func (m *Metrics) WriteFailed(consumer string) { m.writeErrors.WithLabelValues(consumer).Inc() }

func (m *Metrics) Restarted(task string) { m.restarts.WithLabelValues(task).Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
