package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "deepresearch",
	Subsystem: "scraper",
	Name:      "fetches_total",
	Help:      "Page fetches by outcome (ok, thin, error).",
}, []string{"outcome"})
