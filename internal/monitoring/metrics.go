package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal tracks song acquisitions by status and device mode
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kordia_downloads_total",
			Help: "Total number of song downloads",
		},
		[]string{"status", "mode"},
	)

	// DownloadDuration tracks download duration in seconds by mode
	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kordia_download_duration_seconds",
			Help:    "Song download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
		},
		[]string{"mode"},
	)

	// DownloadBytesTotal tracks audio bytes written to the local cache
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kordia_download_bytes_total",
			Help: "Total audio bytes written to the content cache",
		},
	)

	// ActiveDownloads tracks number of in-flight downloads
	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kordia_active_downloads",
			Help: "Number of in-flight downloads",
		},
	)

	// RegistrySize tracks the length of the local song registry
	RegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kordia_registry_songs",
			Help: "Songs in the local offline registry",
		},
	)

	// ReconcileLookups tracks reconciliation results per song
	ReconcileLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kordia_reconcile_lookups_total",
			Help: "Cache residency lookups by outcome",
		},
		[]string{"outcome"}, // resident, absent, error
	)

	// ReconcileDuration tracks whole pass duration
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kordia_reconcile_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PlaybackEvents tracks engine transitions and failures
	PlaybackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kordia_playback_events_total",
			Help: "Playback engine events",
		},
		[]string{"event"}, // play, superseded, failed, ended, next, previous
	)

	// APIRequestsTotal tracks catalog requests by endpoint and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kordia_api_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"endpoint", "status"},
	)

	// APIRequestDuration tracks catalog request duration
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kordia_api_request_duration_seconds",
			Help:    "Catalog API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// CacheOperations tracks content cache calls
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kordia_cache_operations_total",
			Help: "Content cache operations by namespace, operation and result",
		},
		[]string{"namespace", "op", "result"},
	)

	// ErrorsTotal tracks errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kordia_errors_total",
			Help: "Total number of errors handled at operation boundaries",
		},
		[]string{"type"},
	)

	// ControlRequestsTotal tracks control API requests by route and status
	ControlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kordia_control_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"route", "status"},
	)
)

// RecordDownloadStart records the start of a download
func RecordDownloadStart() {
	ActiveDownloads.Inc()
}

// RecordDownloadComplete records a completed download
func RecordDownloadComplete(mode string, duration time.Duration, bytes int64) {
	DownloadsTotal.WithLabelValues("completed", mode).Inc()
	DownloadDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if bytes > 0 {
		DownloadBytesTotal.Add(float64(bytes))
	}
	ActiveDownloads.Dec()
}

// RecordDownloadFailed records a failed download
func RecordDownloadFailed(mode string) {
	DownloadsTotal.WithLabelValues("failed", mode).Inc()
	ActiveDownloads.Dec()
}

// UpdateRegistrySize updates the registry size metric
func UpdateRegistrySize(size int) {
	RegistrySize.Set(float64(size))
}

// RecordReconcileLookup records one residency lookup
func RecordReconcileLookup(outcome string) {
	ReconcileLookups.WithLabelValues(outcome).Inc()
}

// RecordReconcilePass records a whole reconciliation pass
func RecordReconcilePass(duration time.Duration) {
	ReconcileDuration.Observe(duration.Seconds())
}

// RecordPlaybackEvent records a playback engine event
func RecordPlaybackEvent(event string) {
	PlaybackEvents.WithLabelValues(event).Inc()
}

// RecordAPIRequest records a catalog API request
func RecordAPIRequest(endpoint string, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCacheOperation records a content cache call
func RecordCacheOperation(namespace, op, result string) {
	CacheOperations.WithLabelValues(namespace, op, result).Inc()
}

// RecordError records an error
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordControlRequest records a request to the local control API
func RecordControlRequest(route string, status int) {
	ControlRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
