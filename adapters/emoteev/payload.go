package emoteev

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/emoteev/prebid-server/errortypes"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/mxmCherry/openrtb"
	"golang.org/x/text/currency"
)

// bidRequest is one impression in the shape Emoteev expects.
type bidRequest struct {
	Params          json.RawMessage   `json:"params"`
	Crumbs          map[string]string `json:"crumbs,omitempty"`
	Sizes           [][]uint64        `json:"sizes"`
	BidID           string            `json:"bidId"`
	BidderRequestID string            `json:"bidderRequestId"`
}

type refererInfo struct {
	Referer    string   `json:"referer"`
	ReachedTop bool     `json:"reachedTop"`
	NumIframes int      `json:"numIframes"`
	Stack      []string `json:"stack"`
}

// conformBidRequest builds the Emoteev view of an impression.
func conformBidRequest(request *openrtb.BidRequest, imp *openrtb.Imp, params json.RawMessage, crumbs map[string]string) bidRequest {
	return bidRequest{
		Params:          params,
		Crumbs:          crumbs,
		Sizes:           impSizes(imp),
		BidID:           imp.ID,
		BidderRequestID: request.ID,
	}
}

// impSizes lists the banner formats as [w, h] pairs, falling back to banner.w/h.
// Flexible formats without a fixed size are left out.
func impSizes(imp *openrtb.Imp) [][]uint64 {
	sizes := [][]uint64{}
	if imp.Banner == nil {
		return sizes
	}
	for _, format := range imp.Banner.Format {
		if format.W != 0 && format.H != 0 {
			sizes = append(sizes, []uint64{format.W, format.H})
		}
	}
	if len(sizes) == 0 && imp.Banner.W != nil && imp.Banner.H != nil && *imp.Banner.W != 0 && *imp.Banner.H != 0 {
		sizes = append(sizes, []uint64{*imp.Banner.W, *imp.Banner.H})
	}
	return sizes
}

// readCrumbs returns the first party identifiers Emoteev reads from the user.
func readCrumbs(request *openrtb.BidRequest) map[string]string {
	if request.User == nil || len(request.User.Ext) == 0 {
		return nil
	}
	var userExt openrtb_ext.ExtUser
	if err := json.Unmarshal(request.User.Ext, &userExt); err != nil {
		return nil
	}
	if pubcid, ok := userExt.PubCommonID(); ok {
		return map[string]string{"pubcid": pubcid}
	}
	return nil
}

func readRefererInfo(request *openrtb.BidRequest) refererInfo {
	info := refererInfo{ReachedTop: true, Stack: []string{}}
	if request.Site != nil && request.Site.Page != "" {
		info.Referer = request.Site.Page
		info.Stack = []string{request.Site.Page}
	}
	return info
}

// readCurrency returns the first request currency, if it is an ISO 4217 code.
func readCurrency(request *openrtb.BidRequest) (string, error) {
	if len(request.Cur) == 0 {
		return "", nil
	}
	unit, err := currency.ParseISO(request.Cur[0])
	if err != nil {
		return "", &errortypes.Warning{
			Message:     fmt.Sprintf("request.cur[0] %q is not a currency code, sending none to emoteev", request.Cur[0]),
			WarningCode: errortypes.InvalidCurrencyWarningCode,
		}
	}
	return unit.String(), nil
}

// requestsPayload builds the outgoing body. The resolved overrides replace top level fields wholesale.
func requestsPayload(validBidRequests []bidRequest, request *openrtb.BidRequest, info extraInfo, parameters url.Values) (map[string]interface{}, []error) {
	var errs []error

	payload := map[string]interface{}{
		"akPbjsVersion": adapterVersion,
		"bidRequests":   validBidRequests,
		"debug":         resolveDebug(parameters.Get(debugParameter), info.Debug),
		"language":      "",
		"refererInfo":   readRefererInfo(request),
		"deviceInfo":    readDeviceInfo(request.Device),
		"userAgent":     "",
	}
	if request.Device != nil {
		payload["language"] = request.Device.Language
		payload["userAgent"] = request.Device.UA
	}

	cur, err := readCurrency(request)
	if err != nil {
		errs = append(errs, err)
	} else if cur != "" {
		payload["currency"] = cur
	}

	for key, value := range resolveOverrides(parameters.Get(overridesParameter), info.Overrides) {
		payload[key] = value
	}
	return payload, errs
}

func makeHeaders(request *openrtb.BidRequest) http.Header {
	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")

	if request.Device != nil {
		if request.Device.UA != "" {
			headers.Add("User-Agent", request.Device.UA)
		}
		if request.Device.IP != "" {
			headers.Add("X-Forwarded-For", request.Device.IP)
		}
		if request.Device.Language != "" {
			headers.Add("Accept-Language", request.Device.Language)
		}
	}
	if request.Site != nil && request.Site.Page != "" {
		headers.Add("Referer", request.Site.Page)
	}
	return headers
}
