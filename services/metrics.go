package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fallbacks_total",
			Help: "Number of feed queries that fell back to the global tier",
		},
		[]string{"tab"},
	)

	staleFetchDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_stale_fetch_drops_total",
			Help: "Number of page fetch results discarded due to a stale generation",
		},
	)

	optimisticRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_optimistic_rollbacks_total",
			Help: "Number of optimistic mutations rolled back after a remote failure",
		},
		[]string{"kind"},
	)

	feedResyncsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_resyncs_total",
			Help: "Number of forced full feed resyncs",
		},
	)

	realtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_realtime_events_total",
			Help: "Realtime delta tracker events by source",
		},
		[]string{"source"}, // "push", "poll"
	)
)
