package pbsmetrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/golang/glog"
	"github.com/rcrowley/go-metrics"
)

// Metrics is the go-metrics implementation of the MetricsEngine interface
type Metrics struct {
	MetricsRegistry            metrics.Registry
	ConnectionCounter          metrics.Counter
	ConnectionAcceptErrorMeter metrics.Meter
	ConnectionCloseErrorMeter  metrics.Meter
	ImpMeter                   metrics.Meter
	AppRequestMeter            metrics.Meter
	SafariRequestMeter         metrics.Meter
	RequestTimer               metrics.Timer
	RequestStatuses            map[RequestType]map[RequestStatus]metrics.Meter
	CookieSyncMeter            metrics.Meter
	CookieSyncStatuses         map[RequestStatus]metrics.Meter
	userSyncOffered            map[openrtb_ext.BidderName]metrics.Meter
	userSyncPrivacyBlocked     map[openrtb_ext.BidderName]metrics.Meter
	userSyncErr                map[openrtb_ext.BidderName]metrics.Meter

	AdapterMetrics map[openrtb_ext.BidderName]*AdapterMetrics
	// Don't export accountMetrics because we need helper functions here to insure its properly populated dynamically
	accountMetrics        map[string]*accountMetrics
	accountMetricsRWMutex sync.RWMutex

	exchanges []openrtb_ext.BidderName
}

// AdapterMetrics houses the metrics for a particular adapter
type AdapterMetrics struct {
	NoBidMeter        metrics.Meter
	BidMeter          metrics.Meter
	ErrorMeters       map[AdapterError]metrics.Meter
	RequestMeter      metrics.Meter
	RequestTimer      metrics.Timer
	PriceHistogram    metrics.Histogram
	BidsReceivedMeter metrics.Meter
	MarkupMetrics     map[openrtb_ext.BidType]*MarkupDeliveryMetrics
}

type MarkupDeliveryMetrics struct {
	AdmMeter  metrics.Meter
	NurlMeter metrics.Meter
}

type accountMetrics struct {
	requestMeter      metrics.Meter
	bidsReceivedMeter metrics.Meter
	priceHistogram    metrics.Histogram
	adapterMetrics    map[openrtb_ext.BidderName]*AdapterMetrics
}

// Defining an "unknown" bidder
const unknownBidder openrtb_ext.BidderName = "unknown"

// NewBlankMetrics creates a new Metrics object with all blank metrics object. This may also be useful for
// testing routines to ensure that no metrics are written anywhere.
func NewBlankMetrics(registry metrics.Registry, exchanges []openrtb_ext.BidderName) *Metrics {
	blankMeter := &metrics.NilMeter{}
	newMetrics := &Metrics{
		MetricsRegistry:            registry,
		ConnectionCounter:          metrics.NilCounter{},
		ConnectionAcceptErrorMeter: blankMeter,
		ConnectionCloseErrorMeter:  blankMeter,
		ImpMeter:                   blankMeter,
		AppRequestMeter:            blankMeter,
		SafariRequestMeter:         blankMeter,
		RequestTimer:               &metrics.NilTimer{},
		RequestStatuses:            make(map[RequestType]map[RequestStatus]metrics.Meter),
		CookieSyncMeter:            blankMeter,
		CookieSyncStatuses:         make(map[RequestStatus]metrics.Meter),
		userSyncOffered:            make(map[openrtb_ext.BidderName]metrics.Meter),
		userSyncPrivacyBlocked:     make(map[openrtb_ext.BidderName]metrics.Meter),
		userSyncErr:                make(map[openrtb_ext.BidderName]metrics.Meter),

		AdapterMetrics: make(map[openrtb_ext.BidderName]*AdapterMetrics, len(exchanges)),
		accountMetrics: make(map[string]*accountMetrics),

		exchanges: exchanges,
	}
	for _, a := range exchanges {
		newMetrics.AdapterMetrics[a] = makeBlankAdapterMetrics()
	}

	for _, t := range RequestTypes() {
		newMetrics.RequestStatuses[t] = make(map[RequestStatus]metrics.Meter)
		for _, s := range RequestStatuses() {
			newMetrics.RequestStatuses[t][s] = blankMeter
		}
	}
	for _, s := range RequestStatuses() {
		newMetrics.CookieSyncStatuses[s] = blankMeter
	}

	return newMetrics
}

// NewMetrics creates a new Metrics object with needed metrics defined. The code always tries to
// record the metrics, which effectively noop when a blank meter or timer is in place.
func NewMetrics(registry metrics.Registry, exchanges []openrtb_ext.BidderName) *Metrics {
	newMetrics := NewBlankMetrics(registry, exchanges)
	newMetrics.ConnectionCounter = metrics.GetOrRegisterCounter("active_connections", registry)
	newMetrics.ConnectionAcceptErrorMeter = metrics.GetOrRegisterMeter("connection_accept_errors", registry)
	newMetrics.ConnectionCloseErrorMeter = metrics.GetOrRegisterMeter("connection_close_errors", registry)
	newMetrics.ImpMeter = metrics.GetOrRegisterMeter("imps_requested", registry)
	newMetrics.SafariRequestMeter = metrics.GetOrRegisterMeter("safari_requests", registry)
	newMetrics.AppRequestMeter = metrics.GetOrRegisterMeter("app_requests", registry)
	newMetrics.RequestTimer = metrics.GetOrRegisterTimer("request_time", registry)
	newMetrics.CookieSyncMeter = metrics.GetOrRegisterMeter("cookie_sync_requests", registry)
	for stat := range newMetrics.CookieSyncStatuses {
		newMetrics.CookieSyncStatuses[stat] = metrics.GetOrRegisterMeter("cookie_sync_requests."+string(stat), registry)
	}
	for _, a := range append([]openrtb_ext.BidderName{unknownBidder}, exchanges...) {
		newMetrics.userSyncOffered[a] = metrics.GetOrRegisterMeter(fmt.Sprintf("usersync.%s.offered", string(a)), registry)
		newMetrics.userSyncPrivacyBlocked[a] = metrics.GetOrRegisterMeter(fmt.Sprintf("usersync.%s.privacy_blocked", string(a)), registry)
		newMetrics.userSyncErr[a] = metrics.GetOrRegisterMeter(fmt.Sprintf("usersync.%s.errors", string(a)), registry)
	}
	for _, a := range exchanges {
		registerAdapterMetrics(registry, "adapter", string(a), newMetrics.AdapterMetrics[a])
	}
	for typ, statusMap := range newMetrics.RequestStatuses {
		for stat := range statusMap {
			statusMap[stat] = metrics.GetOrRegisterMeter("requests."+string(stat)+"."+string(typ), registry)
		}
	}
	return newMetrics
}

// Part of setting up blank metrics, the adapter metrics.
func makeBlankAdapterMetrics() *AdapterMetrics {
	blankMeter := &metrics.NilMeter{}
	newAdapter := &AdapterMetrics{
		NoBidMeter:        blankMeter,
		BidMeter:          blankMeter,
		ErrorMeters:       make(map[AdapterError]metrics.Meter),
		RequestMeter:      blankMeter,
		RequestTimer:      &metrics.NilTimer{},
		PriceHistogram:    &metrics.NilHistogram{},
		BidsReceivedMeter: blankMeter,
		MarkupMetrics:     make(map[openrtb_ext.BidType]*MarkupDeliveryMetrics),
	}
	for _, err := range AdapterErrors() {
		newAdapter.ErrorMeters[err] = blankMeter
	}
	for _, t := range openrtb_ext.BidTypes() {
		newAdapter.MarkupMetrics[t] = &MarkupDeliveryMetrics{
			AdmMeter:  blankMeter,
			NurlMeter: blankMeter,
		}
	}
	return newAdapter
}

func registerAdapterMetrics(registry metrics.Registry, adapterOrAccount string, exchange string, am *AdapterMetrics) {
	prefix := adapterOrAccount + "." + exchange
	am.NoBidMeter = metrics.GetOrRegisterMeter(prefix+".requests.nobid", registry)
	am.BidMeter = metrics.GetOrRegisterMeter(prefix+".requests.gotbids", registry)
	for err := range am.ErrorMeters {
		am.ErrorMeters[err] = metrics.GetOrRegisterMeter(prefix+".requests."+string(err), registry)
	}
	am.RequestMeter = metrics.GetOrRegisterMeter(prefix+".requests", registry)
	am.RequestTimer = metrics.GetOrRegisterTimer(prefix+".request_time", registry)
	am.PriceHistogram = metrics.GetOrRegisterHistogram(prefix+".prices", registry, metrics.NewExpDecaySample(1028, 0.015))
	am.BidsReceivedMeter = metrics.GetOrRegisterMeter(prefix+".bids_received", registry)
	for bidType := range am.MarkupMetrics {
		am.MarkupMetrics[bidType] = &MarkupDeliveryMetrics{
			AdmMeter:  metrics.GetOrRegisterMeter(prefix+"."+string(bidType)+".adm_bids_received", registry),
			NurlMeter: metrics.GetOrRegisterMeter(prefix+"."+string(bidType)+".nurl_bids_received", registry),
		}
	}
}

// getAccountMetrics gets or registers the account metrics for account "id".
// There is no getBlankAccountMetrics() as all metrics are generated dynamically.
func (me *Metrics) getAccountMetrics(id string) *accountMetrics {
	me.accountMetricsRWMutex.RLock()
	am, ok := me.accountMetrics[id]
	me.accountMetricsRWMutex.RUnlock()
	if ok {
		return am
	}

	me.accountMetricsRWMutex.Lock()
	defer me.accountMetricsRWMutex.Unlock()

	if am, ok = me.accountMetrics[id]; ok {
		return am
	}
	am = &accountMetrics{}
	am.requestMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.requests", id), me.MetricsRegistry)
	am.bidsReceivedMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.bids_received", id), me.MetricsRegistry)
	am.priceHistogram = metrics.GetOrRegisterHistogram(fmt.Sprintf("account.%s.prices", id), me.MetricsRegistry, metrics.NewExpDecaySample(1028, 0.015))
	am.adapterMetrics = make(map[openrtb_ext.BidderName]*AdapterMetrics, len(me.exchanges))
	for _, a := range me.exchanges {
		am.adapterMetrics[a] = makeBlankAdapterMetrics()
		registerAdapterMetrics(me.MetricsRegistry, fmt.Sprintf("account.%s", id), string(a), am.adapterMetrics[a])
	}

	me.accountMetrics[id] = am
	return am
}

// RecordRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordRequest(labels Labels) {
	if statuses, ok := me.RequestStatuses[labels.RType]; ok {
		if meter, ok := statuses[labels.RequestStatus]; ok {
			meter.Mark(1)
		}
	}
	if labels.Source == DemandApp {
		me.AppRequestMeter.Mark(1)
	} else if labels.Browser == BrowserSafari {
		me.SafariRequestMeter.Mark(1)
	}

	if labels.PubID != "" {
		me.getAccountMetrics(labels.PubID).requestMeter.Mark(1)
	}
}

func (me *Metrics) RecordImps(labels Labels, numImps int) {
	me.ImpMeter.Mark(int64(numImps))
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.ConnectionCounter.Inc(1)
	} else {
		me.ConnectionAcceptErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.ConnectionCounter.Dec(1)
	} else {
		me.ConnectionCloseErrorMeter.Mark(1)
	}
}

// RecordRequestTime implements a part of the MetricsEngine interface. The calling code is responsible
// for determining the call duration.
func (me *Metrics) RecordRequestTime(labels Labels, length time.Duration) {
	// Only record times for successful requests, as we don't have labels to screen out bad requests.
	if labels.RequestStatus == RequestStatusOK {
		me.RequestTimer.Update(length)
	}
}

// RecordAdapterRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordAdapterRequest(labels AdapterLabels) {
	am, ok := me.AdapterMetrics[labels.Adapter]
	if !ok {
		glog.Errorf("Trying to run adapter metrics on %s: adapter metrics not found", string(labels.Adapter))
		return
	}
	am.RequestMeter.Mark(1)
	if labels.PubID != "" {
		me.getAccountMetrics(labels.PubID).adapterMetrics[labels.Adapter].RequestMeter.Mark(1)
	}

	switch labels.AdapterBids {
	case AdapterBidNone:
		am.NoBidMeter.Mark(1)
	case AdapterBidPresent:
		am.BidMeter.Mark(1)
	}
	for err := range labels.AdapterErrors {
		if meter, ok := am.ErrorMeters[err]; ok {
			meter.Mark(1)
		}
	}
}

// RecordAdapterBidReceived implements a part of the MetricsEngine interface.
// This tracks how many bids from each Bidder use `adm` vs. `nurl.
func (me *Metrics) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	am, ok := me.AdapterMetrics[labels.Adapter]
	if !ok {
		glog.Errorf("Trying to run adapter bid metrics on %s: adapter metrics not found", string(labels.Adapter))
		return
	}

	am.BidsReceivedMeter.Mark(1)
	if labels.PubID != "" {
		acct := me.getAccountMetrics(labels.PubID)
		acct.bidsReceivedMeter.Mark(1)
		acct.adapterMetrics[labels.Adapter].BidsReceivedMeter.Mark(1)
	}

	if metricsForType, ok := am.MarkupMetrics[bidType]; ok {
		if hasAdm {
			metricsForType.AdmMeter.Mark(1)
		} else {
			metricsForType.NurlMeter.Mark(1)
		}
	} else {
		glog.Errorf("bid/adm metrics map entry does not exist for type %s. This is a bug, and should be reported.", bidType)
	}
}

// RecordAdapterPrice implements a part of the MetricsEngine interface. Generates a histogram of winning bid prices
func (me *Metrics) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	am, ok := me.AdapterMetrics[labels.Adapter]
	if !ok {
		glog.Errorf("Trying to run adapter price metrics on %s: adapter metrics not found", string(labels.Adapter))
		return
	}
	am.PriceHistogram.Update(int64(cpm))
	if labels.PubID != "" {
		acct := me.getAccountMetrics(labels.PubID)
		acct.priceHistogram.Update(int64(cpm))
		acct.adapterMetrics[labels.Adapter].PriceHistogram.Update(int64(cpm))
	}
}

// RecordAdapterTime implements a part of the MetricsEngine interface. Records the adapter response time
func (me *Metrics) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	am, ok := me.AdapterMetrics[labels.Adapter]
	if !ok {
		glog.Errorf("Trying to run adapter latency metrics on %s: adapter metrics not found", string(labels.Adapter))
		return
	}
	am.RequestTimer.Update(length)
	if labels.PubID != "" {
		me.getAccountMetrics(labels.PubID).adapterMetrics[labels.Adapter].RequestTimer.Update(length)
	}
}

// RecordCookieSync implements a part of the MetricsEngine interface. Records a cookie sync request
func (me *Metrics) RecordCookieSync(labels Labels) {
	me.CookieSyncMeter.Mark(1)
	if meter, ok := me.CookieSyncStatuses[labels.RequestStatus]; ok {
		meter.Mark(1)
	}
}

// RecordUserSync implements a part of the MetricsEngine interface. Records what /cookie_sync did for one bidder
func (me *Metrics) RecordUserSync(labels UserSyncLabels) {
	switch labels.Action {
	case SyncActionOffered:
		doMark(labels.Bidder, me.userSyncOffered)
	case SyncActionPrivacyBlocked:
		doMark(labels.Bidder, me.userSyncPrivacyBlocked)
	case SyncActionErr:
		doMark(labels.Bidder, me.userSyncErr)
	}
}

func doMark(bidder openrtb_ext.BidderName, meters map[openrtb_ext.BidderName]metrics.Meter) {
	if met, ok := meters[bidder]; ok {
		met.Mark(1)
	} else if met, ok := meters[unknownBidder]; ok {
		met.Mark(1)
	}
}
