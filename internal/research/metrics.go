package research

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepresearch",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Deep search runs by final status (completed, error).",
	}, []string{"status"})

	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepresearch",
		Subsystem: "pipeline",
		Name:      "analyses_total",
		Help:      "Source analyses by outcome (ok, failed).",
	}, []string{"outcome"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepresearch",
		Subsystem: "pipeline",
		Name:      "embedding_cache_lookups_total",
		Help:      "Embedding cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)
