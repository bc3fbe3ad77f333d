package openrtb2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/exchange"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/emoteev/prebid-server/pbsmetrics"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/mxmCherry/openrtb"
)

// NewEndpoint returns the /openrtb2/auction handler.
func NewEndpoint(ex exchange.Exchange, validator openrtb_ext.BidderParamValidator, cfg *config.Configuration, met pbsmetrics.MetricsEngine) (httprouter.Handle, error) {
	if ex == nil || validator == nil || cfg == nil || met == nil {
		return nil, errors.New("NewEndpoint requires non-nil arguments.")
	}

	return httprouter.Handle((&endpointDeps{ex, validator, cfg, met}).Auction), nil
}

type endpointDeps struct {
	ex              exchange.Exchange
	paramsValidator openrtb_ext.BidderParamValidator
	cfg             *config.Configuration
	metricsEngine   pbsmetrics.MetricsEngine
}

func (deps *endpointDeps) Auction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	labels := pbsmetrics.Labels{
		Source:        pbsmetrics.DemandUnknown,
		RType:         pbsmetrics.ReqTypeORTB2Web,
		PubID:         "",
		Browser:       pbsmetrics.BrowserFromUserAgent(r.UserAgent()),
		RequestStatus: pbsmetrics.RequestStatusOK,
	}
	defer func() {
		deps.metricsEngine.RecordRequest(labels)
		deps.metricsEngine.RecordRequestTime(labels, time.Since(start))
	}()

	req, errL := deps.parseRequest(r)
	if len(errL) > 0 {
		labels.RequestStatus = pbsmetrics.RequestStatusBadInput
		w.WriteHeader(http.StatusBadRequest)
		for _, err := range errL {
			fmt.Fprintf(w, "Invalid request: %s\n", err.Error())
		}
		return
	}

	labels = fillLabels(labels, req)
	deps.metricsEngine.RecordImps(labels, len(req.Imp))

	ctx, cancel := auctionContext(r.Context(), start, req.TMax)
	defer cancel()

	response, err := deps.ex.HoldAuction(ctx, req, labels)
	if err != nil {
		labels.RequestStatus = pbsmetrics.RequestStatusErr
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Critical error while running the auction: %v", err)
		glog.Errorf("/openrtb2/auction Critical error: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(response); err != nil {
		glog.Errorf("/openrtb2/auction Failed to send response: %v", err)
	}
}

// auctionContext bounds the auction by tmax, measured from when the request arrived.
func auctionContext(parent context.Context, start time.Time, tmax int64) (context.Context, context.CancelFunc) {
	if tmax <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithDeadline(parent, start.Add(time.Duration(tmax)*time.Millisecond))
}

func fillLabels(labels pbsmetrics.Labels, req *openrtb.BidRequest) pbsmetrics.Labels {
	if req.App != nil {
		labels.Source = pbsmetrics.DemandApp
		labels.RType = pbsmetrics.ReqTypeORTB2App
		if req.App.Publisher != nil {
			labels.PubID = req.App.Publisher.ID
		}
	} else if req.Site != nil {
		labels.Source = pbsmetrics.DemandWeb
		if req.Site.Publisher != nil {
			labels.PubID = req.Site.Publisher.ID
		}
	}
	return labels
}

// parseRequest turns the HTTP request into an OpenRTB request.
//
// If the errors list is empty, then the returned request is valid enough to run an auction.
// If the errors list has at least one element, then no guarantees are made about the returned request.
func (deps *endpointDeps) parseRequest(httpRequest *http.Request) (req *openrtb.BidRequest, errs []error) {
	req = &openrtb.BidRequest{}

	requestJson, err := readBody(httpRequest.Body, deps.cfg.MaxRequestSize)
	if err != nil {
		errs = []error{err}
		return
	}

	if err := json.Unmarshal(requestJson, req); err != nil {
		errs = []error{err}
		return
	}

	setImplicitFields(httpRequest, req)

	if err := deps.validateRequest(req); err != nil {
		errs = []error{err}
		return
	}
	return
}

func readBody(body io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		return ioutil.ReadAll(body)
	}
	lr := &io.LimitedReader{R: body, N: maxSize + 1}
	requestJson, err := ioutil.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(requestJson)) > maxSize {
		return nil, fmt.Errorf("request size exceeded max size of %d bytes.", maxSize)
	}
	return requestJson, nil
}

func (deps *endpointDeps) validateRequest(req *openrtb.BidRequest) error {
	if req.ID == "" {
		return errors.New("request missing required field: \"id\"")
	}

	if req.TMax < 0 {
		return fmt.Errorf("request.tmax must be nonnegative. Got %d", req.TMax)
	}

	if len(req.Imp) < 1 {
		return errors.New("request.imp must contain at least one element.")
	}

	if req.Site != nil && req.App != nil {
		return errors.New("request.site or request.app must be defined, but not both.")
	}

	impIDs := make(map[string]int, len(req.Imp))
	for index := range req.Imp {
		imp := &req.Imp[index]
		if firstIndex, ok := impIDs[imp.ID]; ok {
			return fmt.Errorf("request.imp[%d].id and request.imp[%d].id are both \"%s\". Imp IDs must be unique.", firstIndex, index, imp.ID)
		}
		impIDs[imp.ID] = index

		if err := deps.validateImp(imp, index); err != nil {
			return err
		}
	}
	return nil
}

func (deps *endpointDeps) validateImp(imp *openrtb.Imp, index int) error {
	if imp.ID == "" {
		return fmt.Errorf("request.imp[%d] missing required field: \"id\"", index)
	}

	if imp.Banner == nil && imp.Video == nil && imp.Audio == nil && imp.Native == nil {
		return fmt.Errorf("request.imp[%d] must contain at least one of \"banner\", \"video\", \"audio\", or \"native\"", index)
	}

	if err := validateBanner(imp.Banner, index); err != nil {
		return err
	}

	if err := validatePmp(imp.PMP, index); err != nil {
		return err
	}

	return deps.validateImpExt(imp.Ext, index)
}

func validateBanner(banner *openrtb.Banner, impIndex int) error {
	if banner == nil {
		return nil
	}

	for fmtIndex, format := range banner.Format {
		if err := validateFormat(&format, impIndex, fmtIndex); err != nil {
			return err
		}
	}
	return nil
}

func validateFormat(format *openrtb.Format, impIndex int, formatIndex int) error {
	usesHW := format.W != 0 || format.H != 0
	usesRatios := format.WMin != 0 || format.WRatio != 0 || format.HRatio != 0
	if usesHW && usesRatios {
		return fmt.Errorf("Request imp[%d].banner.format[%d] should define *either* {w, h} *or* {wmin, wratio, hratio}, but not both. If both are valid, send two \"format\" objects in the request.", impIndex, formatIndex)
	}
	if !usesHW && !usesRatios {
		return fmt.Errorf("Request imp[%d].banner.format[%d] should define *either* {w, h} (for static size requirements) *or* {wmin, wratio, hratio} (for flexible sizes) to be non-zero.", impIndex, formatIndex)
	}
	if usesHW && (format.W == 0 || format.H == 0) {
		return fmt.Errorf("Request imp[%d].banner.format[%d] must define non-zero \"h\" and \"w\" properties.", impIndex, formatIndex)
	}
	if usesRatios && (format.WMin == 0 || format.WRatio == 0 || format.HRatio == 0) {
		return fmt.Errorf("Request imp[%d].banner.format[%d] must define non-zero \"wmin\", \"wratio\", and \"hratio\" properties.", impIndex, formatIndex)
	}
	return nil
}

func validatePmp(pmp *openrtb.PMP, impIndex int) error {
	if pmp == nil {
		return nil
	}

	for dealIndex, deal := range pmp.Deals {
		if deal.ID == "" {
			return fmt.Errorf("request.imp[%d].pmp.deals[%d] missing required field: \"id\"", impIndex, dealIndex)
		}
	}
	return nil
}

// validateImpExt checks the bidder params found at imp.ext.{bidder} and imp.ext.prebid.bidder.{bidder}.
func (deps *endpointDeps) validateImpExt(ext json.RawMessage, impIndex int) error {
	if len(ext) == 0 {
		return fmt.Errorf("request.imp[%d].ext is required", impIndex)
	}

	var bidderExts map[string]json.RawMessage
	if err := json.Unmarshal(ext, &bidderExts); err != nil {
		return fmt.Errorf("request.imp[%d].ext is invalid: %v", impIndex, err)
	}

	if prebidJSON, ok := bidderExts["prebid"]; ok {
		var prebid openrtb_ext.ExtImpPrebid
		if err := json.Unmarshal(prebidJSON, &prebid); err != nil {
			return fmt.Errorf("request.imp[%d].ext.prebid is invalid: %v", impIndex, err)
		}
		delete(bidderExts, "prebid")
		for bidder, params := range prebid.Bidder {
			bidderExts[bidder] = params
		}
	}

	if len(bidderExts) < 1 {
		return fmt.Errorf("request.imp[%d].ext must contain at least one bidder", impIndex)
	}

	for bidder, params := range bidderExts {
		bidderName, isValid := openrtb_ext.GetBidderName(bidder)
		if !isValid {
			return fmt.Errorf("request.imp[%d].ext contains unknown bidder: %s", impIndex, bidder)
		}
		if err := deps.paramsValidator.Validate(bidderName, params); err != nil {
			return fmt.Errorf("request.imp[%d].ext.%s failed validation.\n%v", impIndex, bidder, err)
		}
	}

	return nil
}

// setImplicitFields fills in the request fields the HTTP request already carries.
func setImplicitFields(httpReq *http.Request, bidReq *openrtb.BidRequest) {
	if bidReq.App == nil {
		setDeviceImplicitly(httpReq, bidReq)
		setSiteImplicitly(httpReq, bidReq)
	}
}

func setDeviceImplicitly(httpReq *http.Request, bidReq *openrtb.BidRequest) {
	if bidReq.Device == nil {
		bidReq.Device = &openrtb.Device{}
	}
	if bidReq.Device.UA == "" {
		bidReq.Device.UA = httpReq.UserAgent()
	}
	if bidReq.Device.IP == "" && bidReq.Device.IPv6 == "" {
		ip := clientIP(httpReq)
		if parsed := net.ParseIP(ip); parsed != nil {
			if parsed.To4() != nil {
				bidReq.Device.IP = ip
			} else {
				bidReq.Device.IPv6 = ip
			}
		}
	}
}

func setSiteImplicitly(httpReq *http.Request, bidReq *openrtb.BidRequest) {
	if bidReq.Site == nil {
		return
	}
	if bidReq.Site.Page == "" {
		bidReq.Site.Page = httpReq.Referer()
	}
}

// clientIP prefers the first address in X-Forwarded-For over the connection's remote address.
func clientIP(httpReq *http.Request) string {
	if forwarded := httpReq.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if host, _, err := net.SplitHostPort(httpReq.RemoteAddr); err == nil {
		return host
	}
	return httpReq.RemoteAddr
}
