package emoteev

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"text/template"

	"github.com/buger/jsonparser"
	"github.com/emoteev/prebid-server/adapters"
	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/errortypes"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/gofrs/uuid"
	"github.com/golang/glog"
	"github.com/mxmCherry/openrtb"
)

type EmoteevAdapter struct {
	bidderCode string
	endpoint   *template.Template
	info       extraInfo
	newBidID   func() (string, error)
}

// Builder builds a new instance of the Emoteev adapter for the given bidder with the given config.
func Builder(bidderName openrtb_ext.BidderName, cfg config.Adapter) (adapters.Bidder, error) {
	endpoint, err := template.New("endpointTemplate").Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("unable to parse endpoint url template: %v", err)
	}

	info, err := parseExtraInfo(cfg.ExtraAdapterInfo)
	if err != nil {
		return nil, err
	}

	return &EmoteevAdapter{
		bidderCode: string(bidderName),
		endpoint:   endpoint,
		info:       info,
		newBidID:   generateBidID,
	}, nil
}

func generateBidID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MakeRequests sends every valid impression to Emoteev in a single request.
func (a *EmoteevAdapter) MakeRequests(request *openrtb.BidRequest, reqInfo *adapters.ExtraRequestInfo) ([]*adapters.RequestData, []error) {
	var errs []error

	crumbs := readCrumbs(request)
	validBidRequests := make([]bidRequest, 0, len(request.Imp))
	for i := range request.Imp {
		imp := &request.Imp[i]

		var bidderExt adapters.ExtImpBidder
		if err := json.Unmarshal(imp.Ext, &bidderExt); err != nil {
			errs = append(errs, invalidImp(imp, "ext.bidder not provided"))
			continue
		}

		conformed := conformBidRequest(request, imp, json.RawMessage(bidderExt.Bidder), crumbs)
		if !isBidRequestValid(a.bidderCode, conformed) {
			errs = append(errs, invalidImp(imp, "requires a non empty adSpaceId and at least one [width, height] banner size"))
			continue
		}
		validBidRequests = append(validBidRequests, conformed)
	}

	if len(validBidRequests) == 0 {
		return nil, errs
	}

	parameters := pageParameters(request)
	uri, err := endpointURL(a.endpoint, resolveEnv(parameters.Get(envParameter), a.info.Env))
	if err != nil {
		return nil, append(errs, &errortypes.BadInput{Message: fmt.Sprintf("unable to resolve emoteev endpoint: %v", err)})
	}

	payload, payloadErrs := requestsPayload(validBidRequests, request, a.info, parameters)
	errs = append(errs, payloadErrs...)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, append(errs, err)
	}

	return []*adapters.RequestData{{
		Method:  "POST",
		Uri:     uri,
		Body:    body,
		Headers: makeHeaders(request),
	}}, errs
}

func invalidImp(imp *openrtb.Imp, reason string) error {
	return &errortypes.Warning{
		Message:     fmt.Sprintf("imp %s ignored by emoteev: %s", imp.ID, reason),
		WarningCode: errortypes.InvalidImpWarningCode,
	}
}

// isBidRequestValid reports whether Emoteev can bid on the impression.
func isBidRequestValid(bidderCode string, bid bidRequest) bool {
	return bidderCode == string(openrtb_ext.BidderEmoteev) &&
		isTruthy(bid.Params, "adSpaceId") &&
		validateSizes(bid.Sizes)
}

// isTruthy follows javascript truthiness: false, 0, "" and null are falsy, objects and arrays are not.
func isTruthy(data []byte, keys ...string) bool {
	value, dataType, _, err := jsonparser.Get(data, keys...)
	if err != nil {
		return false
	}
	switch dataType {
	case jsonparser.String:
		return len(value) > 0
	case jsonparser.Number:
		number, err := jsonparser.ParseFloat(value)
		return err == nil && number != 0
	case jsonparser.Boolean:
		truth, err := jsonparser.ParseBoolean(value)
		return err == nil && truth
	case jsonparser.Object, jsonparser.Array:
		return true
	default:
		return false
	}
}

func validateSizes(sizes [][]uint64) bool {
	for _, size := range sizes {
		if len(size) == 2 {
			return true
		}
	}
	return false
}

// bidResult is one element of Emoteev's response body.
type bidResult struct {
	RequestID  string       `json:"requestId"`
	CPM        float64      `json:"cpm"`
	Width      uint64       `json:"width"`
	Height     uint64       `json:"height"`
	Ad         string       `json:"ad"`
	TTL        int          `json:"ttl"`
	CreativeID flexibleText `json:"creativeId"`
	NetRevenue bool         `json:"netRevenue"`
	Currency   string       `json:"currency"`
}

// flexibleText accepts both JSON strings and numbers.
type flexibleText string

func (t *flexibleText) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = flexibleText(s)
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("expected a string or a number, got %s", data)
	}
	*t = flexibleText(data)
	return nil
}

type bidExt struct {
	TTL        int  `json:"ttl"`
	NetRevenue bool `json:"netRevenue"`
}

// interpretResponse returns the bid results exactly as Emoteev sent them.
func interpretResponse(body []byte) ([]bidResult, error) {
	var results []bidResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// MakeBids turns Emoteev's results into banner bids on the matching impressions.
func (a *EmoteevAdapter) MakeBids(internalRequest *openrtb.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	if response.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if response.StatusCode != http.StatusOK {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("Unexpected status code: %d. Run with request.debug = 1 for more info", response.StatusCode),
		}}
	}

	results, err := interpretResponse(response.Body)
	if err != nil {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("bad emoteev response: %v", err),
		}}
	}

	impIDs := make(map[string]bool, len(internalRequest.Imp))
	for _, imp := range internalRequest.Imp {
		impIDs[imp.ID] = true
	}

	var errs []error
	bidResponse := adapters.NewBidderResponseWithBidsCapacity(len(results))
	if len(results) > 0 && results[0].Currency != "" {
		bidResponse.Currency = results[0].Currency
	}
	for _, result := range results {
		if !impIDs[result.RequestID] {
			errs = append(errs, &errortypes.BadServerResponse{
				Message: fmt.Sprintf("emoteev bid for unknown request id %q", result.RequestID),
			})
			continue
		}

		bid, err := a.makeBid(result)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		bidResponse.Bids = append(bidResponse.Bids, &adapters.TypedBid{
			Bid:     bid,
			BidType: openrtb_ext.BidTypeBanner,
		})
	}

	glog.V(2).Infof("emoteev returned %d results, %d usable", len(results), len(bidResponse.Bids))
	return bidResponse, errs
}

func (a *EmoteevAdapter) makeBid(result bidResult) (*openrtb.Bid, error) {
	id, err := a.newBidID()
	if err != nil {
		return nil, fmt.Errorf("unable to generate bid id: %v", err)
	}

	ext, err := json.Marshal(bidExt{TTL: result.TTL, NetRevenue: result.NetRevenue})
	if err != nil {
		return nil, err
	}

	return &openrtb.Bid{
		ID:    id,
		ImpID: result.RequestID,
		Price: result.CPM,
		AdM:   result.Ad,
		CrID:  string(result.CreativeID),
		W:     result.Width,
		H:     result.Height,
		Ext:   ext,
	}, nil
}
