package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/emoteev/prebid-server/adapters"
	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/errortypes"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/emoteev/prebid-server/pbsmetrics"
	"github.com/emoteev/prebid-server/privacy"
	"github.com/golang/glog"
	"github.com/mxmCherry/openrtb"
)

// Exchange runs Auctions. Implementations must be threadsafe, and will be shared across many goroutines.
type Exchange interface {
	// HoldAuction executes an OpenRTB v2.5 Auction.
	HoldAuction(ctx context.Context, bidRequest *openrtb.BidRequest, labels pbsmetrics.Labels) (*openrtb.BidResponse, error)
}

type exchange struct {
	adapterMap map[openrtb_ext.BidderName]adaptedBidder
	me         pbsmetrics.MetricsEngine
	privacy    privacy.Enforcer
}

// Container to pass out response ext data from the goroutines running requestBid
type seatResponseExtra struct {
	ResponseTimeMillis int
	Errors             []openrtb_ext.ExtBidderError
	Warnings           []openrtb_ext.ExtBidderError
}

// prependErrors files the errors ahead of the ones already collected, split by severity.
func (extra *seatResponseExtra) prependErrors(errs []error) {
	extra.Errors = append(errsToBidderErrors(errortypes.FatalOnly(errs)), extra.Errors...)
	extra.Warnings = append(errsToBidderErrors(errortypes.WarningOnly(errs)), extra.Warnings...)
}

type bidResponseWrapper struct {
	adapterBids  *pbsOrtbSeatBid
	adapterExtra *seatResponseExtra
	bidder       openrtb_ext.BidderName
}

// NewExchange builds an Exchange calling every enabled bidder of the host config.
func NewExchange(client *http.Client, cfg *config.Configuration, metricsEngine pbsmetrics.MetricsEngine, infos adapters.BidderInfos) (Exchange, []error) {
	adapterMap, errs := newAdapterMap(client, cfg, infos)
	return &exchange{
		adapterMap: adapterMap,
		me:         metricsEngine,
		privacy: privacy.Enforcer{
			GDPRDefaultValue: cfg.GDPR.DefaultValue,
			EnforceCCPA:      cfg.CCPA.Enforce,
		},
	}, errs
}

func (e *exchange) HoldAuction(ctx context.Context, bidRequest *openrtb.BidRequest, labels pbsmetrics.Labels) (*openrtb.BidResponse, error) {
	cleanRequests, errs := cleanOpenRTBRequests(bidRequest, e.adapterMap)
	e.applyPrivacy(bidRequest, cleanRequests)

	adapterBids, adapterExtra := e.getAllBids(ctx, cleanRequests, labels)

	for bidderName, bidderErrs := range errs {
		extra, ok := adapterExtra[bidderName]
		if !ok {
			extra = &seatResponseExtra{}
			adapterExtra[bidderName] = extra
		}
		extra.prependErrors(bidderErrs)
	}

	return e.buildBidResponse(bidRequest, adapterBids, adapterExtra)
}

// applyPrivacy strips the user identifiers from every bidder request when the regulations
// attached to the auction forbid sharing them.
func (e *exchange) applyPrivacy(bidRequest *openrtb.BidRequest, cleanRequests map[openrtb_ext.BidderName]*openrtb.BidRequest) {
	policies, err := privacy.ReadPoliciesFromRequest(bidRequest)
	if err != nil {
		glog.V(2).Infof("Unreadable privacy signals, user IDs will be removed: %v", err)
	}
	if err == nil && e.privacy.AllowsUserIDs(policies) {
		return
	}
	for _, req := range cleanRequests {
		privacy.ScrubUserIDs(req)
	}
}

// getAllBids calls every bidder in parallel and waits for their responses.
func (e *exchange) getAllBids(ctx context.Context, cleanRequests map[openrtb_ext.BidderName]*openrtb.BidRequest, labels pbsmetrics.Labels) (map[openrtb_ext.BidderName]*pbsOrtbSeatBid, map[openrtb_ext.BidderName]*seatResponseExtra) {
	// Set up pointers to the bid results
	adapterBids := make(map[openrtb_ext.BidderName]*pbsOrtbSeatBid, len(cleanRequests))
	adapterExtra := make(map[openrtb_ext.BidderName]*seatResponseExtra, len(cleanRequests))
	chBids := make(chan *bidResponseWrapper, len(cleanRequests))

	for bidderName, req := range cleanRequests {
		// Here we actually call the adapters and collect the bids.
		go func(bidderName openrtb_ext.BidderName, request *openrtb.BidRequest) {
			adapterLabels := pbsmetrics.AdapterLabels{
				Source:  labels.Source,
				RType:   labels.RType,
				Adapter: bidderName,
				PubID:   labels.PubID,
				Browser: labels.Browser,
			}
			reqInfo := adapters.NewExtraRequestInfo()

			start := time.Now()
			bids, err := e.adapterMap[bidderName].requestBid(ctx, request, bidderName, &reqInfo)
			elapsed := time.Since(start)

			// Add in time reporting
			ae := &seatResponseExtra{
				ResponseTimeMillis: int(elapsed / time.Millisecond),
			}
			ae.prependErrors(err)
			e.recordAdapterMetrics(adapterLabels, bids, err, elapsed)

			chBids <- &bidResponseWrapper{
				adapterBids:  bids,
				adapterExtra: ae,
				bidder:       bidderName,
			}
		}(bidderName, req)
	}

	// Wait for the bidders to do their thing
	for i := 0; i < len(cleanRequests); i++ {
		brw := <-chBids
		adapterExtra[brw.bidder] = brw.adapterExtra
		if brw.adapterBids != nil {
			adapterBids[brw.bidder] = brw.adapterBids
		}
	}

	return adapterBids, adapterExtra
}

func (e *exchange) recordAdapterMetrics(labels pbsmetrics.AdapterLabels, seatBid *pbsOrtbSeatBid, errs []error, elapsed time.Duration) {
	labels.AdapterErrors = make(map[pbsmetrics.AdapterError]struct{})
	for _, err := range errs {
		labels.AdapterErrors[adapterErrorLabel(err)] = struct{}{}
	}
	if seatBid == nil || len(seatBid.bids) == 0 {
		labels.AdapterBids = pbsmetrics.AdapterBidNone
	} else {
		labels.AdapterBids = pbsmetrics.AdapterBidPresent
		for _, bid := range seatBid.bids {
			e.me.RecordAdapterBidReceived(labels, bid.bidType, bid.bid.AdM != "")
			e.me.RecordAdapterPrice(labels, bid.bid.Price)
		}
	}
	e.me.RecordAdapterRequest(labels)
	e.me.RecordAdapterTime(labels, elapsed)
}

func adapterErrorLabel(err error) pbsmetrics.AdapterError {
	switch errortypes.ReadCode(err) {
	case errortypes.TimeoutErrorCode:
		return pbsmetrics.AdapterErrorTimeout
	case errortypes.BadInputErrorCode:
		return pbsmetrics.AdapterErrorBadInput
	case errortypes.BadServerResponseErrorCode:
		return pbsmetrics.AdapterErrorBadServerResponse
	}
	if errortypes.IsWarning(err) {
		return pbsmetrics.AdapterErrorWarning
	}
	return pbsmetrics.AdapterErrorUnknown
}

func errsToBidderErrors(errs []error) []openrtb_ext.ExtBidderError {
	serialized := make([]openrtb_ext.ExtBidderError, len(errs))
	for i, err := range errs {
		serialized[i].Code = errortypes.ReadCode(err)
		serialized[i].Message = err.Error()
	}
	return serialized
}

// buildBidResponse assembles the OpenRTB response out of the bids and debugging data of every seat.
func (e *exchange) buildBidResponse(bidRequest *openrtb.BidRequest, adapterBids map[openrtb_ext.BidderName]*pbsOrtbSeatBid, adapterExtra map[openrtb_ext.BidderName]*seatResponseExtra) (*openrtb.BidResponse, error) {
	bidResponse := &openrtb.BidResponse{
		ID:      bidRequest.ID,
		SeatBid: make([]openrtb.SeatBid, 0, len(adapterBids)),
	}

	responseExt := openrtb_ext.ExtBidResponse{
		Errors:             make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderError, len(adapterExtra)),
		Warnings:           make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderError, len(adapterExtra)),
		ResponseTimeMillis: make(map[openrtb_ext.BidderName]int, len(adapterExtra)),
	}
	if bidRequest.Test == 1 {
		responseExt.Debug = &openrtb_ext.ExtResponseDebug{
			HttpCalls: make(map[openrtb_ext.BidderName][]*openrtb_ext.ExtHttpCall),
		}
	}

	for bidderName, extra := range adapterExtra {
		if len(extra.Errors) > 0 {
			responseExt.Errors[bidderName] = extra.Errors
		}
		if len(extra.Warnings) > 0 {
			responseExt.Warnings[bidderName] = extra.Warnings
		}
		responseExt.ResponseTimeMillis[bidderName] = extra.ResponseTimeMillis
	}

	for bidderName, seatBid := range adapterBids {
		if responseExt.Debug != nil && len(seatBid.httpCalls) > 0 {
			responseExt.Debug.HttpCalls[bidderName] = seatBid.httpCalls
		}
		if len(seatBid.bids) == 0 {
			continue
		}
		sb, errs := makeSeatBid(bidderName, seatBid)
		if len(errs) > 0 {
			responseExt.Errors[bidderName] = append(responseExt.Errors[bidderName], errsToBidderErrors(errs)...)
		}
		if len(sb.Bid) == 0 {
			continue
		}
		if bidResponse.Cur == "" {
			bidResponse.Cur = seatBid.currency
		}
		bidResponse.SeatBid = append(bidResponse.SeatBid, sb)
	}

	ext, err := json.Marshal(responseExt)
	if err != nil {
		return nil, fmt.Errorf("Failed to marshal the bid response ext: %v", err)
	}
	bidResponse.Ext = json.RawMessage(ext)
	return bidResponse, nil
}

// makeSeatBid copies the bids of a seat, moving their ext under "bidder" next to the prebid type.
func makeSeatBid(bidderName openrtb_ext.BidderName, seatBid *pbsOrtbSeatBid) (openrtb.SeatBid, []error) {
	var errs []error
	sb := openrtb.SeatBid{
		Seat: string(bidderName),
		Bid:  make([]openrtb.Bid, 0, len(seatBid.bids)),
	}
	for _, pbsBid := range seatBid.bids {
		bid := *pbsBid.bid
		ext, err := json.Marshal(openrtb_ext.ExtBid{
			Prebid: &openrtb_ext.ExtBidPrebid{Type: pbsBid.bidType},
			Bidder: json.RawMessage(pbsBid.bid.Ext),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("Error writing SeatBid.Bid[%s].Ext: %v", bid.ID, err))
			continue
		}
		bid.Ext = json.RawMessage(ext)
		sb.Bid = append(sb.Bid, bid)
	}
	return sb, errs
}
