// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerifyTotal counts Verify calls by verifier and outcome
	// (hit, miss, shared, cancelled).
	VerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symstate_verify_total",
		Help: "Verify calls by verifier and cache outcome",
	}, []string{"verifier", "outcome"})

	// VerifierDuration tracks how long verifier runs take, cache misses only.
	VerifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "symstate_verifier_duration_seconds",
		Help:    "Verifier run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4m
	}, []string{"verifier", "status"})

	// ProofCacheEntries is the current size of the proof cache.
	ProofCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "symstate_proof_cache_entries",
		Help: "Entries in the proof cache",
	})

	// SymbolsTotal is the number of live symbols in the memory graph.
	SymbolsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "symstate_symbols",
		Help: "Live symbols in the memory graph",
	})

	// SnapshotsTotal counts snapshots actually written (idempotent calls excluded).
	SnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "symstate_snapshots_total",
		Help: "Temporal snapshots created",
	})

	// PersistAttempts counts durable writes by document and result.
	PersistAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symstate_persist_attempts_total",
		Help: "Durable write attempts by document and result",
	}, []string{"document", "result"})

	// HTTPRequests counts API requests by route pattern and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symstate_http_requests_total",
		Help: "HTTP requests by route and status class",
	}, []string{"route", "class"})
)
