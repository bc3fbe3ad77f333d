package exchange

import (
	"encoding/json"
	"fmt"

	"github.com/emoteev/prebid-server/errortypes"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/mxmCherry/openrtb"
)

// cleanOpenRTBRequests splits the input request into requests which are sanitized for each bidder. Intended behavior is:
//
//   1. BidRequest.Imp[].Ext will only contain a "bidder" field which has the params for the intended Bidder.
//   2. Every BidRequest.Imp[] requested by a bidder is sent to that bidder, and no others.
//   3. Bidders which are not enabled on this host get a warning instead of a request.
func cleanOpenRTBRequests(orig *openrtb.BidRequest, adapterMap map[openrtb_ext.BidderName]adaptedBidder) (map[openrtb_ext.BidderName]*openrtb.BidRequest, map[openrtb_ext.BidderName][]error) {
	impsByBidder, errs := splitImps(orig.Imp, adapterMap)

	requestsByBidder := make(map[openrtb_ext.BidderName]*openrtb.BidRequest, len(impsByBidder))
	for bidder, imps := range impsByBidder {
		reqCopy := *orig
		reqCopy.Imp = imps
		requestsByBidder[bidder] = &reqCopy
	}
	return requestsByBidder, errs
}

// splitImps takes a list of Imps and returns a map of imps which have been sanitized for each bidder.
func splitImps(imps []openrtb.Imp, adapterMap map[openrtb_ext.BidderName]adaptedBidder) (map[openrtb_ext.BidderName][]openrtb.Imp, map[openrtb_ext.BidderName][]error) {
	impsByBidder := make(map[openrtb_ext.BidderName][]openrtb.Imp)
	errs := make(map[openrtb_ext.BidderName][]error)

	for _, imp := range imps {
		bidderParams, err := readBidderParams(imp.Ext)
		if err != nil {
			continue
		}

		for bidderName, params := range bidderParams {
			bidder, ok := openrtb_ext.GetBidderName(bidderName)
			if !ok {
				continue
			}
			if _, enabled := adapterMap[bidder]; !enabled {
				errs[bidder] = append(errs[bidder], &errortypes.Warning{
					Message:     fmt.Sprintf("imp %s: %s is disabled on this host", imp.ID, bidderName),
					WarningCode: errortypes.UnknownWarningCode,
				})
				continue
			}

			impExt, err := json.Marshal(map[string]json.RawMessage{"bidder": params})
			if err != nil {
				errs[bidder] = append(errs[bidder], err)
				continue
			}
			impCopy := imp
			impCopy.Ext = json.RawMessage(impExt)
			impsByBidder[bidder] = append(impsByBidder[bidder], impCopy)
		}
	}

	return impsByBidder, errs
}

// readBidderParams returns the params of every bidder named in imp.ext, either as a top level
// key or under imp.ext.prebid.bidder. The latter wins when both are present.
func readBidderParams(ext json.RawMessage) (map[string]json.RawMessage, error) {
	var impExt map[string]json.RawMessage
	if err := json.Unmarshal(ext, &impExt); err != nil {
		return nil, err
	}

	params := make(map[string]json.RawMessage, len(impExt))
	for key, value := range impExt {
		if key == "prebid" {
			continue
		}
		params[key] = value
	}

	if prebidExt, ok := impExt["prebid"]; ok {
		var prebid openrtb_ext.ExtImpPrebid
		if err := json.Unmarshal(prebidExt, &prebid); err != nil {
			return nil, err
		}
		for bidder, value := range prebid.Bidder {
			params[bidder] = value
		}
	}
	return params, nil
}
