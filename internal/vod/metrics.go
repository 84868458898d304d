package vod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vod_origin_requests_total",
		Help: "VOD requests by kind and outcome.",
	}, []string{"kind", "outcome"})

	metricBytesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_origin_served_bytes_total",
		Help: "Media and manifest bytes written to clients.",
	})

	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vod_origin_worker_queue_depth",
		Help: "Fragment-assembly jobs waiting for a worker.",
	})

	metricCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vod_origin_presentation_cache_entries",
		Help: "Presentations held in the LRU cache.",
	})
)
