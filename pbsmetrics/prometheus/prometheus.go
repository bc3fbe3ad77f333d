package prometheusmetrics

import (
	"strconv"
	"time"

	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/emoteev/prebid-server/pbsmetrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Defines the actual Prometheus metrics we will be using. Satisfies interface MetricsEngine
type Metrics struct {
	Registry      *prometheus.Registry
	connCounter   prometheus.Gauge
	connError     *prometheus.CounterVec
	imps          *prometheus.CounterVec
	requests      *prometheus.CounterVec
	reqTimer      *prometheus.HistogramVec
	adaptRequests *prometheus.CounterVec
	adaptErrors   *prometheus.CounterVec
	adaptTimer    *prometheus.HistogramVec
	adaptBids     *prometheus.CounterVec
	adaptPrices   *prometheus.HistogramVec
	cookieSync    *prometheus.CounterVec
	userSync      *prometheus.CounterVec
}

// NewMetrics constructs the appropriate options for the Prometheus metrics. Needs to be fed the promethus config
// Its own function to keep the metric creation function cleaner.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	// define the buckets for timers
	timerBuckets := prometheus.LinearBuckets(0.05, 0.05, 20)
	timerBuckets = append(timerBuckets, []float64{1.5, 2.0, 3.0, 5.0, 10.0, 50.0}...)

	standardLabelNames := []string{"source", "type", "pubid", "browser", "status"}
	adapterLabelNames := []string{"source", "type", "pubid", "browser", "bids", "adapter"}
	bidLabelNames := append([]string{"bidtype", "hasadm"}, adapterLabelNames...)

	metrics := Metrics{Registry: prometheus.NewRegistry()}
	metrics.connCounter = newConnCounter(cfg)
	metrics.connError = newCounter(cfg, "active_connections_total",
		"Errors reported on the connections coming in.",
		[]string{"ErrorType"},
	)
	metrics.imps = newCounter(cfg, "imps_requested_total",
		"Total number of impressions requested through PBS.",
		standardLabelNames,
	)
	metrics.requests = newCounter(cfg, "requests_total",
		"Total number of requests made to PBS.",
		standardLabelNames,
	)
	metrics.reqTimer = newHistogram(cfg, "request_time_seconds",
		"Seconds to resolve each PBS request.",
		standardLabelNames, timerBuckets,
	)
	metrics.adaptRequests = newCounter(cfg, "adapter_requests_total",
		"Number of requests sent out to each bidder.",
		adapterLabelNames,
	)
	metrics.adaptErrors = newCounter(cfg, "adapter_errors_total",
		"Number of unique error types seen in each request to an adapter.",
		[]string{"adapter", "error"},
	)
	metrics.adaptTimer = newHistogram(cfg, "adapter_time_seconds",
		"Seconds to resolve each request to a bidder.",
		adapterLabelNames, timerBuckets,
	)
	metrics.adaptBids = newCounter(cfg, "adapter_bids_recieved_total",
		"Number of bids recieved from each bidder.",
		bidLabelNames,
	)
	metrics.adaptPrices = newHistogram(cfg, "adapter_prices",
		"Value of the bids from each bidder.",
		adapterLabelNames, prometheus.LinearBuckets(0.1, 0.1, 200),
	)
	metrics.cookieSync = newCounter(cfg, "cookie_sync_requests_total",
		"Number of cookie sync requests recieved.",
		[]string{"status"},
	)
	metrics.userSync = newCounter(cfg, "usersync_total",
		"Number of user syncs offered or blocked by /cookie_sync",
		[]string{"action", "bidder"},
	)

	metrics.Registry.MustRegister(
		metrics.connCounter,
		metrics.connError,
		metrics.imps,
		metrics.requests,
		metrics.reqTimer,
		metrics.adaptRequests,
		metrics.adaptErrors,
		metrics.adaptTimer,
		metrics.adaptBids,
		metrics.adaptPrices,
		metrics.cookieSync,
		metrics.userSync,
	)
	return &metrics
}

func newConnCounter(cfg config.PrometheusMetrics) prometheus.Gauge {
	opts := prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "active_connections",
		Help:      "Current number of active (open) connections.",
	}
	return prometheus.NewGauge(opts)
}

func newCounter(cfg config.PrometheusMetrics, name string, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	return prometheus.NewCounterVec(opts, labels)
}

func newHistogram(cfg config.PrometheusMetrics, name string, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	return prometheus.NewHistogramVec(opts, labels)
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.connCounter.Inc()
	} else {
		me.connError.WithLabelValues("accept_error").Inc()
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.connCounter.Dec()
	} else {
		me.connError.WithLabelValues("close_error").Inc()
	}
}

func (me *Metrics) RecordRequest(labels pbsmetrics.Labels) {
	me.requests.With(resolveLabels(labels)).Inc()
}

func (me *Metrics) RecordImps(labels pbsmetrics.Labels, numImps int) {
	me.imps.With(resolveLabels(labels)).Add(float64(numImps))
}

func (me *Metrics) RecordRequestTime(labels pbsmetrics.Labels, length time.Duration) {
	me.reqTimer.With(resolveLabels(labels)).Observe(length.Seconds())
}

func (me *Metrics) RecordAdapterRequest(labels pbsmetrics.AdapterLabels) {
	me.adaptRequests.With(resolveAdapterLabels(labels)).Inc()
	for err := range labels.AdapterErrors {
		me.adaptErrors.With(prometheus.Labels{
			"adapter": string(labels.Adapter),
			"error":   string(err),
		}).Inc()
	}
}

func (me *Metrics) RecordAdapterBidReceived(labels pbsmetrics.AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	me.adaptBids.With(resolveBidLabels(labels, bidType, hasAdm)).Inc()
}

func (me *Metrics) RecordAdapterPrice(labels pbsmetrics.AdapterLabels, cpm float64) {
	me.adaptPrices.With(resolveAdapterLabels(labels)).Observe(cpm)
}

func (me *Metrics) RecordAdapterTime(labels pbsmetrics.AdapterLabels, length time.Duration) {
	me.adaptTimer.With(resolveAdapterLabels(labels)).Observe(length.Seconds())
}

func (me *Metrics) RecordCookieSync(labels pbsmetrics.Labels) {
	me.cookieSync.With(prometheus.Labels{"status": string(labels.RequestStatus)}).Inc()
}

func (me *Metrics) RecordUserSync(labels pbsmetrics.UserSyncLabels) {
	me.userSync.With(prometheus.Labels{
		"action": string(labels.Action),
		"bidder": string(labels.Bidder),
	}).Inc()
}

func resolveLabels(labels pbsmetrics.Labels) prometheus.Labels {
	return prometheus.Labels{
		"source":  string(labels.Source),
		"type":    string(labels.RType),
		"pubid":   labels.PubID,
		"browser": string(labels.Browser),
		"status":  string(labels.RequestStatus),
	}
}

func resolveAdapterLabels(labels pbsmetrics.AdapterLabels) prometheus.Labels {
	return prometheus.Labels{
		"source":  string(labels.Source),
		"type":    string(labels.RType),
		"pubid":   labels.PubID,
		"browser": string(labels.Browser),
		"bids":    string(labels.AdapterBids),
		"adapter": string(labels.Adapter),
	}
}

func resolveBidLabels(labels pbsmetrics.AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) prometheus.Labels {
	bidLabels := resolveAdapterLabels(labels)
	bidLabels["bidtype"] = string(bidType)
	bidLabels["hasadm"] = strconv.FormatBool(hasAdm)
	return bidLabels
}
