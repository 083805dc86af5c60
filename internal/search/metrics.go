package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepresearch",
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "Search provider queries issued, by outcome.",
	}, []string{"outcome"})

	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "deepresearch",
		Subsystem: "search",
		Name:      "hits_total",
		Help:      "Organic hits parsed from provider result pages.",
	})
)
