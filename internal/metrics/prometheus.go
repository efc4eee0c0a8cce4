package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	requestDuration *prometheus.HistogramVec
	refreshTotal    *prometheus.CounterVec
	cacheLoadTotal  *prometheus.CounterVec
}

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medportal_client_request_duration_seconds",
		Help:    "Duration of API calls issued by the medportal client.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medportal_client_token_refresh_total",
		Help: "Token refresh calls issued by the medportal client.",
	}, []string{"outcome"})
	cacheLoadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medportal_client_cache_load_total",
		Help: "Producer invocations performed by the client cache.",
	}, []string{"outcome"})
)

func NewPrometheusObserver() ClientObserver {
	return &prometheusObserver{
		requestDuration: requestDuration,
		refreshTotal:    refreshTotal,
		cacheLoadTotal:  cacheLoadTotal,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) ObserveRequest(method string, status int, seconds float64) {
	p.requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(seconds)
}

func (p *prometheusObserver) RecordRefresh(success bool) {
	p.refreshTotal.WithLabelValues(outcome(success)).Inc()
}

func (p *prometheusObserver) RecordCacheLoad(success bool) {
	p.cacheLoadTotal.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
