package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	fetches         *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	cacheStoreFail  *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	enqueues        *prometheus.CounterVec
	replays         *prometheus.CounterVec
	deadLetters     prometheus.Counter
	refreshes       *prometheus.CounterVec
	refreshBatches  *prometheus.CounterVec
	installs        *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	replayDuration  prometheus.Histogram
	queueDepth      prometheus.Gauge
	connectedPages  prometheus.Gauge
	generationInfo  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_fetch_total",
		Help: "Total intercepted requests",
	}, []string{"strategy", "outcome"})

	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_cache_requests_total",
		Help: "Total cache lookups",
	}, []string{"strategy", "status"})

	cacheStoreFail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_cache_store_fail_total",
		Help: "Total failed cache writes",
	}, []string{"strategy"})

	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_fallback_total",
		Help: "Total fallback responses served",
	}, []string{"kind"})

	enqueues := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_enqueue_total",
		Help: "Total queue enqueue attempts",
	}, []string{"result"})

	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_replay_total",
		Help: "Total queue item replays",
	}, []string{"result"})

	deadLetters := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_replay_dead_letter_total",
		Help: "Total queue items moved to the dead-letter list",
	})

	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_refresh_total",
		Help: "Total manifest URL refresh attempts",
	}, []string{"result"})

	refreshBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_refresh_batch_total",
		Help: "Total periodic refresh batches",
	}, []string{"result"})

	installs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_install_total",
		Help: "Total install attempts",
	}, []string{"result"})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_fetch_duration_seconds",
		Help:    "Intercepted request handling duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	replayDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "worker_replay_duration_seconds",
		Help:    "Per-item replay duration",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_queue_depth",
		Help: "Pending items in the durable sync queue",
	})

	connectedPages := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_connected_pages",
		Help: "Pages connected to the notification hub",
	})

	generationInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_generation_info",
		Help: "Current cache generation (value is always 1)",
	}, []string{"generation"})

	registry.MustRegister(fetches, cacheRequests, cacheStoreFail, fallbacks,
		enqueues, replays, deadLetters, refreshes, refreshBatches, installs,
		fetchDuration, replayDuration, queueDepth, connectedPages, generationInfo)

	return &Metrics{
		registry:       registry,
		fetches:        fetches,
		cacheRequests:  cacheRequests,
		cacheStoreFail: cacheStoreFail,
		fallbacks:      fallbacks,
		enqueues:       enqueues,
		replays:        replays,
		deadLetters:    deadLetters,
		refreshes:      refreshes,
		refreshBatches: refreshBatches,
		installs:       installs,
		fetchDuration:  fetchDuration,
		replayDuration: replayDuration,
		queueDepth:     queueDepth,
		connectedPages: connectedPages,
		generationInfo: generationInfo,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(strategy string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(strategy, outcome).Inc()
	m.fetchDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheRequest(strategy string, status string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(strategy, status).Inc()
}

func (m *Metrics) RecordCacheStoreFail(strategy string) {
	if m == nil {
		return
	}
	m.cacheStoreFail.WithLabelValues(strategy).Inc()
}

func (m *Metrics) RecordFallback(kind string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordEnqueue(result string) {
	if m == nil {
		return
	}
	m.enqueues.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordReplay(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(result).Inc()
	m.replayDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordDeadLetter() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRefreshBatch(result string) {
	if m == nil {
		return
	}
	m.refreshBatches.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordInstall(result string) {
	if m == nil {
		return
	}
	m.installs.WithLabelValues(result).Inc()
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) SetConnectedPages(count int) {
	if m == nil {
		return
	}
	m.connectedPages.Set(float64(count))
}

func (m *Metrics) SetGeneration(name string) {
	if m == nil {
		return
	}
	m.generationInfo.Reset()
	if name != "" {
		m.generationInfo.WithLabelValues(name).Set(1)
	}
}
