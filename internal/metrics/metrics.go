package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PartsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_parts_total",
		Help: "Multipart parts accepted by the object store",
	})
	PartBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_part_bytes_total",
		Help: "Bytes sent in accepted multipart parts",
	})
	PartRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_part_retries_total",
		Help: "Failed part attempts that were retried or exhausted the budget",
	})
	UploadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_completed_total",
		Help: "Multipart uploads finalized",
	})
	UploadsAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_aborted_total",
		Help: "Multipart uploads aborted",
	})

	PublishStages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_stage_total",
		Help: "Publish pipeline stage transitions",
	}, []string{"stage", "outcome"})
	PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "publish_duration_seconds",
		Help:    "Time taken to encode and publish a video",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	})
	ActivePublishes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "publish_active",
		Help: "Publish pipelines currently running",
	})

	CatalogInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_inserts_total",
		Help: "Catalog record inserts by backend and outcome",
	}, []string{"driver", "outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route pattern and status code",
	}, []string{"route", "status"})
)
