package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/emoteev/prebid-server/config"
	metricsconfig "github.com/emoteev/prebid-server/pbsmetrics/config"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newPrometheusServer exposes the prometheus engine's registry at /metrics on its own port.
func newPrometheusServer(cfg *config.Configuration, metrics *metricsconfig.DetailedMetricsEngine) (*http.Server, error) {
	if metrics == nil || metrics.PrometheusMetrics == nil {
		return nil, errors.New("prometheus port configured, but no prometheus metrics engine was built")
	}
	proMetrics := metrics.PrometheusMetrics

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(proMetrics.Registry, promhttp.HandlerOpts{
		ErrorLog:            loggerForPrometheus{},
		MaxRequestsInFlight: 5,
	}))
	return &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.Metrics.Prometheus.Port),
		Handler: mux,
	}, nil
}

type loggerForPrometheus struct{}

func (loggerForPrometheus) Println(v ...interface{}) {
	glog.Warningln(v...)
}
