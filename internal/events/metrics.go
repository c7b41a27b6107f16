package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillstone",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Domain events accepted for fan-out, by kind.",
	}, []string{"kind"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillstone",
		Subsystem: "events",
		Name:      "deliveries_total",
		Help:      "Per-recipient delivery attempts, by kind and outcome.",
	}, []string{"kind", "outcome"})
)
