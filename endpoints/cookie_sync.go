package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/emoteev/prebid-server/pbsmetrics"
	"github.com/emoteev/prebid-server/privacy"
	"github.com/emoteev/prebid-server/privacy/ccpa"
	"github.com/emoteev/prebid-server/privacy/gdpr"
	"github.com/emoteev/prebid-server/usersync"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
)

// NewCookieSyncEndpoint returns the /cookie_sync handler. It tells the page which user syncs
// to run for the requested bidders.
func NewCookieSyncEndpoint(syncers map[openrtb_ext.BidderName]usersync.Usersyncer, cfg *config.Configuration, metrics pbsmetrics.MetricsEngine) httprouter.Handle {
	deps := &cookieSyncDeps{
		syncers:        syncers,
		maxRequestSize: cfg.MaxRequestSize,
		enforcer: privacy.Enforcer{
			GDPRDefaultValue: cfg.GDPR.DefaultValue,
			EnforceCCPA:      cfg.CCPA.Enforce,
		},
		metrics: metrics,
	}
	return deps.Endpoint
}

type cookieSyncDeps struct {
	syncers        map[openrtb_ext.BidderName]usersync.Usersyncer
	maxRequestSize int64
	enforcer       privacy.Enforcer
	metrics        pbsmetrics.MetricsEngine
}

func (deps *cookieSyncDeps) Endpoint(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	labels := pbsmetrics.Labels{
		Source:        pbsmetrics.DemandWeb,
		RType:         pbsmetrics.ReqTypeORTB2Web,
		Browser:       pbsmetrics.BrowserFromUserAgent(r.UserAgent()),
		RequestStatus: pbsmetrics.RequestStatusOK,
	}
	defer func() {
		deps.metrics.RecordCookieSync(labels)
	}()

	parsedReq, err := deps.parseRequest(r)
	if err != nil {
		labels.RequestStatus = pbsmetrics.RequestStatusBadInput
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Invalid request: %v\n", err)
		return
	}

	options := parsedReq.SyncOptions.toUsersync(r.Referer())
	allowed := deps.enforcer.AllowsSync(parsedReq.policies)

	csResp := cookieSyncResponse{
		Status:       cookieSyncStatus,
		BidderStatus: make([]*usersync.CookieSyncBidders, 0, len(parsedReq.Bidders)),
	}
	for _, bidder := range parsedReq.Bidders {
		bidderName := openrtb_ext.BidderName(bidder)
		if !allowed {
			deps.metrics.RecordUserSync(pbsmetrics.UserSyncLabels{Action: pbsmetrics.SyncActionPrivacyBlocked, Bidder: bidderName})
			continue
		}

		newSync := &usersync.CookieSyncBidders{
			BidderCode: bidder,
			NoCookie:   true,
		}
		syncs, err := deps.syncers[bidderName].GetUsersyncInfo(parsedReq.policies, options)
		if err != nil {
			glog.Errorf("Failed to get usersync info for %s: %v", bidder, err)
			deps.metrics.RecordUserSync(pbsmetrics.UserSyncLabels{Action: pbsmetrics.SyncActionErr, Bidder: bidderName})
			newSync.Error = err.Error()
			csResp.BidderStatus = append(csResp.BidderStatus, newSync)
			continue
		}
		if len(syncs) == 0 {
			continue
		}
		newSync.UsersyncInfo = syncs
		deps.metrics.RecordUserSync(pbsmetrics.UserSyncLabels{Action: pbsmetrics.SyncActionOffered, Bidder: bidderName})
		csResp.BidderStatus = append(csResp.BidderStatus, newSync)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(csResp); err != nil {
		glog.Errorf("Failed to write /cookie_sync response: %v", err)
	}
}

func (deps *cookieSyncDeps) parseRequest(r *http.Request) (*cookieSyncRequest, error) {
	bodyBytes, err := readBody(r.Body, deps.maxRequestSize)
	if err != nil {
		return nil, err
	}
	if len(bodyBytes) == 0 {
		bodyBytes = []byte("{}")
	}

	biddersJSON, err := parseBidders(bodyBytes)
	if err != nil {
		return nil, err
	}

	parsedReq := &cookieSyncRequest{}
	if err := json.Unmarshal(bodyBytes, parsedReq); err != nil {
		return nil, fmt.Errorf("JSON parsing failed: %v", err)
	}

	// Sync every configured bidder when the caller doesn't name any.
	if len(biddersJSON) == 0 {
		parsedReq.Bidders = make([]string, 0, len(deps.syncers))
		for bidder := range deps.syncers {
			parsedReq.Bidders = append(parsedReq.Bidders, string(bidder))
		}
	}
	parsedReq.filterUnknownBidders(deps.syncers)
	parsedReq.filterToLimit()

	policies, err := parsedReq.readPolicies()
	if err != nil {
		return nil, err
	}
	parsedReq.policies = policies
	return parsedReq, nil
}

// readBody reads at most maxSize bytes. A maxSize of 0 means no limit.
func readBody(body io.Reader, maxSize int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if maxSize <= 0 {
		return ioutil.ReadAll(body)
	}
	lr := &io.LimitedReader{R: body, N: maxSize + 1}
	bodyBytes, err := ioutil.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("Failed to read request body: %v", err)
	}
	if int64(len(bodyBytes)) > maxSize {
		return nil, fmt.Errorf("request size exceeded max size of %d bytes.", maxSize)
	}
	return bodyBytes, nil
}

func parseBidders(request []byte) ([]byte, error) {
	value, dataType, _, err := jsonparser.Get(request, "bidders")
	if err == jsonparser.KeyPathNotFoundError {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("JSON parsing failed: %v", err)
	}
	if dataType == jsonparser.Null {
		return nil, nil
	}
	if dataType != jsonparser.Array {
		return nil, errors.New("request.bidders must be an array of strings")
	}
	return value, nil
}

const cookieSyncStatus = "ok"

type cookieSyncRequest struct {
	Bidders     []string          `json:"bidders"`
	GDPR        *int              `json:"gdpr"`
	Consent     string            `json:"gdpr_consent"`
	USPrivacy   string            `json:"us_privacy"`
	Limit       int               `json:"limit"`
	SyncOptions cookieSyncOptions `json:"syncOptions"`

	policies privacy.Policies
}

type cookieSyncOptions struct {
	IframeEnabled *bool `json:"iframeEnabled"`
	PixelEnabled  *bool `json:"pixelEnabled"`
}

// toUsersync fills in the Prebid.js userSync defaults: iframes off, pixels on.
func (o cookieSyncOptions) toUsersync(pageURL string) usersync.SyncOptions {
	options := usersync.SyncOptions{
		IframeEnabled: false,
		PixelEnabled:  true,
		PageURL:       pageURL,
	}
	if o.IframeEnabled != nil {
		options.IframeEnabled = *o.IframeEnabled
	}
	if o.PixelEnabled != nil {
		options.PixelEnabled = *o.PixelEnabled
	}
	return options
}

func (req *cookieSyncRequest) readPolicies() (privacy.Policies, error) {
	gdprPolicy := gdpr.Policy{Consent: req.Consent}
	if req.GDPR != nil {
		gdprPolicy.Signal = strconv.Itoa(*req.GDPR)
	}
	if err := gdprPolicy.Validate(); err != nil {
		return privacy.Policies{}, err
	}

	ccpaPolicy := ccpa.Policy{Consent: req.USPrivacy}
	if err := ccpa.ValidateConsent(ccpaPolicy.Consent); err != nil {
		return privacy.Policies{}, fmt.Errorf("us_privacy %v", err)
	}
	return privacy.Policies{GDPR: gdprPolicy, CCPA: ccpaPolicy}, nil
}

func (req *cookieSyncRequest) filterUnknownBidders(syncers map[openrtb_ext.BidderName]usersync.Usersyncer) {
	known := make([]string, 0, len(req.Bidders))
	seen := make(map[string]struct{}, len(req.Bidders))
	for _, bidder := range req.Bidders {
		if _, ok := syncers[openrtb_ext.BidderName(bidder)]; !ok {
			continue
		}
		if _, dup := seen[bidder]; dup {
			continue
		}
		seen[bidder] = struct{}{}
		known = append(known, bidder)
	}
	req.Bidders = known
}

func (req *cookieSyncRequest) filterToLimit() {
	if req.Limit <= 0 {
		return
	}

	if req.Limit >= len(req.Bidders) {
		return
	}

	// Modified Fisher-Yates: only the first Limit slots need to be shuffled in.
	for i := 0; i < req.Limit; i++ {
		j := rand.Intn(len(req.Bidders)-i) + i
		req.Bidders[i], req.Bidders[j] = req.Bidders[j], req.Bidders[i]
	}
	req.Bidders = req.Bidders[:req.Limit]
}

type cookieSyncResponse struct {
	Status       string                        `json:"status"`
	BidderStatus []*usersync.CookieSyncBidders `json:"bidder_status"`
}
