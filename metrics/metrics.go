package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagestudio",
			Name:      "provider_requests_total",
			Help:      "Total remote model requests by purpose, model and result",
		},
		[]string{"purpose", "model", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagestudio",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of remote model requests by purpose and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"purpose", "model"},
	)

	exhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagestudio",
			Name:      "providers_exhausted_total",
			Help:      "Requests for which every configured model failed",
		},
		[]string{"purpose"},
	)

	fallbackPrompts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imagestudio",
			Name:      "fallback_prompts_total",
			Help:      "Prompts synthesized locally from pixel statistics",
		},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagestudio",
			Name:      "caption_cache_lookups_total",
			Help:      "Caption cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagestudio",
			Name:      "image_downloads_total",
			Help:      "Image URL downloads by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(providerReqs, providerLatency, exhausted, fallbackPrompts, cacheLookups, downloads)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// ObserveProvider records one remote model call and its latency.
func ObserveProvider(purpose, model, result string, dur time.Duration) {
	providerReqs.WithLabelValues(purpose, model, result).Inc()
	providerLatency.WithLabelValues(purpose, model).Observe(dur.Seconds())
}

// IncExhausted counts requests for which every model endpoint failed.
func IncExhausted(purpose string) { exhausted.WithLabelValues(purpose).Inc() }

// IncFallback counts prompts synthesized from local image analysis.
func IncFallback() { fallbackPrompts.Inc() }

// IncCache counts caption cache lookups by result.
func IncCache(result string) { cacheLookups.WithLabelValues(result).Inc() }

// IncDownload counts user-requested image downloads by result.
func IncDownload(result string) { downloads.WithLabelValues(result).Inc() }
