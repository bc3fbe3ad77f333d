package prometheusmetrics

import (
	"testing"
	"time"

	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/emoteev/prebid-server/pbsmetrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestConnectionMetrics(t *testing.T) {
	proMetrics := newTestMetricsEngine()

	proMetrics.RecordConnectionAccept(true)
	proMetrics.RecordConnectionAccept(true)
	proMetrics.RecordConnectionClose(true)
	proMetrics.RecordConnectionAccept(true)
	proMetrics.RecordConnectionAccept(false)
	proMetrics.RecordConnectionClose(false)

	metricConn := dto.Metric{}
	metricConnErrA := dto.Metric{}
	metricConnErrC := dto.Metric{}
	proMetrics.connCounter.Write(&metricConn)
	proMetrics.connError.WithLabelValues("accept_error").Write(&metricConnErrA)
	proMetrics.connError.WithLabelValues("close_error").Write(&metricConnErrC)

	assert.Equal(t, 2.0, metricConn.GetGauge().GetValue(), "connCounter")
	assert.Equal(t, 1.0, metricConnErrA.GetCounter().GetValue(), "connError[accept_error]")
	assert.Equal(t, 1.0, metricConnErrC.GetCounter().GetValue(), "connError[close_error]")
}

func TestRequestMetrics(t *testing.T) {
	proMetrics := newTestMetricsEngine()

	proMetrics.RecordRequest(labels[0])
	proMetrics.RecordRequest(labels[1])
	proMetrics.RecordRequest(labels[0])
	proMetrics.RecordImps(labels[0], 3)
	proMetrics.RecordRequestTime(labels[0], 20*time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, proMetrics.requests.With(resolveLabels(labels[0])).Write), "requests[0]")
	assert.Equal(t, 1.0, counterValue(t, proMetrics.requests.With(resolveLabels(labels[1])).Write), "requests[1]")
	assert.Equal(t, 0.0, counterValue(t, proMetrics.requests.With(resolveLabels(labels[2])).Write), "requests[2]")
	assert.Equal(t, 3.0, counterValue(t, proMetrics.imps.With(resolveLabels(labels[0])).Write), "imps[0]")

	metric := dto.Metric{}
	proMetrics.reqTimer.With(resolveLabels(labels[0])).(interface{ Write(*dto.Metric) error }).Write(&metric)
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount(), "reqTimer[0]")
}

func TestAdapterMetrics(t *testing.T) {
	proMetrics := newTestMetricsEngine()

	proMetrics.RecordAdapterRequest(adapterLabels[0])
	proMetrics.RecordAdapterRequest(adapterLabels[1])
	proMetrics.RecordAdapterBidReceived(adapterLabels[0], openrtb_ext.BidTypeBanner, true)
	proMetrics.RecordAdapterPrice(adapterLabels[0], 1.25)
	proMetrics.RecordAdapterTime(adapterLabels[0], 150*time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, proMetrics.adaptRequests.With(resolveAdapterLabels(adapterLabels[0])).Write), "adaptRequests[0]")
	assert.Equal(t, 1.0, counterValue(t, proMetrics.adaptErrors.WithLabelValues("emoteev", string(pbsmetrics.AdapterErrorTimeout)).Write), "adaptErrors[timeout]")
	assert.Equal(t, 1.0, counterValue(t, proMetrics.adaptBids.With(resolveBidLabels(adapterLabels[0], openrtb_ext.BidTypeBanner, true)).Write), "adaptBids")

	metric := dto.Metric{}
	proMetrics.adaptPrices.With(resolveAdapterLabels(adapterLabels[0])).(interface{ Write(*dto.Metric) error }).Write(&metric)
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount(), "adaptPrices")
	assert.Equal(t, 1.25, metric.GetHistogram().GetSampleSum(), "adaptPrices sum")
}

func TestCookieSyncMetrics(t *testing.T) {
	proMetrics := newTestMetricsEngine()

	proMetrics.RecordCookieSync(pbsmetrics.Labels{RequestStatus: pbsmetrics.RequestStatusOK})
	proMetrics.RecordUserSync(pbsmetrics.UserSyncLabels{Action: pbsmetrics.SyncActionOffered, Bidder: openrtb_ext.BidderEmoteev})
	proMetrics.RecordUserSync(pbsmetrics.UserSyncLabels{Action: pbsmetrics.SyncActionOffered, Bidder: openrtb_ext.BidderEmoteev})

	assert.Equal(t, 1.0, counterValue(t, proMetrics.cookieSync.WithLabelValues("ok").Write), "cookieSync[ok]")
	assert.Equal(t, 2.0, counterValue(t, proMetrics.userSync.WithLabelValues("offered", "emoteev").Write), "userSync[offered]")
}

func TestEnginesHaveSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestMetricsEngine()
		newTestMetricsEngine()
	})
}

func newTestMetricsEngine() *Metrics {
	return NewMetrics(config.PrometheusMetrics{
		Port:      8080,
		Namespace: "prebid",
		Subsystem: "",
	})
}

func counterValue(t *testing.T, write func(*dto.Metric) error) float64 {
	t.Helper()
	metric := dto.Metric{}
	if err := write(&metric); err != nil {
		t.Fatalf("Failed to read metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

var labels = []pbsmetrics.Labels{
	{
		Source:        pbsmetrics.DemandWeb,
		RType:         pbsmetrics.ReqTypeORTB2Web,
		PubID:         "Pub1",
		Browser:       pbsmetrics.BrowserSafari,
		RequestStatus: pbsmetrics.RequestStatusOK,
	},
	{
		Source:        pbsmetrics.DemandApp,
		RType:         pbsmetrics.ReqTypeORTB2App,
		PubID:         "Pub2",
		Browser:       pbsmetrics.BrowserOther,
		RequestStatus: pbsmetrics.RequestStatusBadInput,
	},
	{
		Source:        pbsmetrics.DemandWeb,
		RType:         pbsmetrics.ReqTypeORTB2Web,
		PubID:         "Pub3",
		Browser:       pbsmetrics.BrowserOther,
		RequestStatus: pbsmetrics.RequestStatusErr,
	},
}

var adapterLabels = []pbsmetrics.AdapterLabels{
	{
		Source:      pbsmetrics.DemandWeb,
		RType:       pbsmetrics.ReqTypeORTB2Web,
		Adapter:     openrtb_ext.BidderEmoteev,
		PubID:       "Pub1",
		Browser:     pbsmetrics.BrowserSafari,
		AdapterBids: pbsmetrics.AdapterBidPresent,
	},
	{
		Source:      pbsmetrics.DemandWeb,
		RType:       pbsmetrics.ReqTypeORTB2Web,
		Adapter:     openrtb_ext.BidderEmoteev,
		PubID:       "Pub1",
		Browser:     pbsmetrics.BrowserOther,
		AdapterBids: pbsmetrics.AdapterBidNone,
		AdapterErrors: map[pbsmetrics.AdapterError]struct{}{
			pbsmetrics.AdapterErrorTimeout: {},
		},
	},
}
