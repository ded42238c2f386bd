package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoname_requests_total",
		Help: "Total number of geoname HTTP requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoname_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	LookupDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoname_lookup_duration_ms",
		Help:    "Index construction plus nearest lookup in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	EmptyResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoname_empty_results_total",
		Help: "Total number of lookups without a city in range",
	})
	InvalidAttributeTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoname_invalid_attribute_total",
		Help: "Total number of calls rejected for an unknown attribute",
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoname_cache_hits_total",
		Help: "Result cache hits by tier",
	}, []string{"tier"})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoname_cache_misses_total",
		Help: "Result cache misses",
	})
	DatasetCities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geoname_dataset_cities",
		Help: "Number of cities in the loaded atlas dataset",
	})
	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoname_dataset_refresh_total",
		Help: "Scheduled dataset refresh runs by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(LookupDurationMs)
	prometheus.MustRegister(EmptyResultsTotal)
	prometheus.MustRegister(InvalidAttributeTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(DatasetCities)
	prometheus.MustRegister(RefreshTotal)
}

// 文档注释：返回 Prometheus 指标处理器
// 背景：在主入口挂载到 /metrics。
func Handler() http.Handler { return promhttp.Handler() }
