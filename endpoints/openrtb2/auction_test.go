package openrtb2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/emoteev/prebid-server/pbsmetrics"
	metricsConf "github.com/emoteev/prebid-server/pbsmetrics/config"
	"github.com/julienschmidt/httprouter"
	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// TestGoodRequests makes sure that the auction runs properly-formatted bids correctly.
func TestGoodRequests(t *testing.T) {
	for _, requestData := range validRequests {
		ex := &mockExchange{}
		endpoint := newTestEndpoint(t, ex, &metricsConf.DummyMetricsEngine{})

		recorder := httptest.NewRecorder()
		endpoint(recorder, httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(requestData)), nil)

		if !assert.Equal(t, http.StatusOK, recorder.Code, "Request data was %s. Response: %s", requestData, recorder.Body.String()) {
			continue
		}
		assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

		var response openrtb.BidResponse
		if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
			t.Fatalf("Error unmarshalling response: %s", err.Error())
		}
		assert.Equal(t, "some-request-id", response.ID)
	}
}

// TestBadRequests makes sure we return 400's on bad requests.
func TestBadRequests(t *testing.T) {
	for _, badRequest := range invalidRequests {
		ex := &mockExchange{}
		endpoint := newTestEndpoint(t, ex, &metricsConf.DummyMetricsEngine{})

		recorder := httptest.NewRecorder()
		endpoint(recorder, httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(badRequest)), nil)

		assert.Equal(t, http.StatusBadRequest, recorder.Code, "Input was: %s", badRequest)
		assert.True(t, strings.HasPrefix(recorder.Body.String(), "Invalid request: "), "Input was: %s", badRequest)
		assert.Nil(t, ex.gotRequest, "Input was: %s", badRequest)
	}
}

func TestNilArguments(t *testing.T) {
	validator := newTestValidator(t)
	cfg := &config.Configuration{}
	met := &metricsConf.DummyMetricsEngine{}

	_, err := NewEndpoint(nil, validator, cfg, met)
	assert.Error(t, err, "nil Exchange")

	_, err = NewEndpoint(&mockExchange{}, nil, cfg, met)
	assert.Error(t, err, "nil BidderParamValidator")

	_, err = NewEndpoint(&mockExchange{}, validator, nil, met)
	assert.Error(t, err, "nil Configuration")

	_, err = NewEndpoint(&mockExchange{}, validator, cfg, nil)
	assert.Error(t, err, "nil MetricsEngine")
}

// TestExchangeError makes sure we return a 500 if the exchange auction fails.
func TestExchangeError(t *testing.T) {
	endpoint := newTestEndpoint(t, &mockExchange{err: errors.New("auction failed")}, &metricsConf.DummyMetricsEngine{})

	recorder := httptest.NewRecorder()
	endpoint(recorder, httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(validRequests[0])), nil)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestMaxRequestSize(t *testing.T) {
	ex := &mockExchange{}
	handle, err := NewEndpoint(ex, newTestValidator(t), &config.Configuration{MaxRequestSize: 10}, &metricsConf.DummyMetricsEngine{})
	if err != nil {
		t.Fatalf("NewEndpoint returned unexpected error %v", err)
	}

	recorder := httptest.NewRecorder()
	handle(recorder, httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(validRequests[0])), nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "request size exceeded max size of 10 bytes.")
}

func TestImplicitDeviceAndSite(t *testing.T) {
	ex := &mockExchange{}
	endpoint := newTestEndpoint(t, ex, &metricsConf.DummyMetricsEngine{})

	body := `{"id":"some-request-id","site":{},` +
		`"imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`
	request := httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(body))
	request.Header.Set("User-Agent", "test-agent")
	request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	request.Header.Set("Referer", "https://publisher.com/article?emoteev.env=staging")
	endpoint(httptest.NewRecorder(), request, nil)

	if assert.NotNil(t, ex.gotRequest) {
		assert.Equal(t, "test-agent", ex.gotRequest.Device.UA)
		assert.Equal(t, "203.0.113.7", ex.gotRequest.Device.IP)
		assert.Equal(t, "https://publisher.com/article?emoteev.env=staging", ex.gotRequest.Site.Page)
	}
}

func TestImplicitFieldsKeepExplicitValues(t *testing.T) {
	ex := &mockExchange{}
	endpoint := newTestEndpoint(t, ex, &metricsConf.DummyMetricsEngine{})

	body := `{"id":"some-request-id","site":{"page":"https://explicit.com"},"device":{"ua":"explicit-agent","ip":"198.51.100.1"},` +
		`"imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`
	request := httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(body))
	request.Header.Set("User-Agent", "test-agent")
	request.Header.Set("Referer", "https://publisher.com/article")
	endpoint(httptest.NewRecorder(), request, nil)

	if assert.NotNil(t, ex.gotRequest) {
		assert.Equal(t, "explicit-agent", ex.gotRequest.Device.UA)
		assert.Equal(t, "198.51.100.1", ex.gotRequest.Device.IP)
		assert.Equal(t, "https://explicit.com", ex.gotRequest.Site.Page)
	}
}

func TestRemoteAddrFallback(t *testing.T) {
	request := httptest.NewRequest("POST", "/openrtb2/auction", nil)
	request.RemoteAddr = "192.0.2.10:4567"
	assert.Equal(t, "192.0.2.10", clientIP(request))
}

func TestTimeoutContext(t *testing.T) {
	ex := &mockExchange{}
	endpoint := newTestEndpoint(t, ex, &metricsConf.DummyMetricsEngine{})

	body := `{"id":"some-request-id","tmax":500,"site":{"page":"https://publisher.com"},` +
		`"imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`
	before := time.Now()
	endpoint(httptest.NewRecorder(), httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(body)), nil)

	if assert.True(t, ex.gotDeadlineOK, "the auction context should have a deadline") {
		assert.True(t, ex.gotDeadline.After(before))
		assert.True(t, ex.gotDeadline.Before(before.Add(time.Second)))
	}
}

func TestNoTimeoutWithoutTMax(t *testing.T) {
	ex := &mockExchange{}
	endpoint := newTestEndpoint(t, ex, &metricsConf.DummyMetricsEngine{})

	endpoint(httptest.NewRecorder(), httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(validRequests[0])), nil)

	assert.False(t, ex.gotDeadlineOK)
}

func TestAuctionLabels(t *testing.T) {
	ex := &mockExchange{}
	endpoint := newTestEndpoint(t, ex, &metricsConf.DummyMetricsEngine{})

	body := `{"id":"some-request-id","site":{"page":"https://publisher.com","publisher":{"id":"pub-1"}},` +
		`"imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`
	request := httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(body))
	request.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.0.3 Safari/605.1.15")
	endpoint(httptest.NewRecorder(), request, nil)

	assert.Equal(t, pbsmetrics.Labels{
		Source:        pbsmetrics.DemandWeb,
		RType:         pbsmetrics.ReqTypeORTB2Web,
		PubID:         "pub-1",
		Browser:       pbsmetrics.BrowserSafari,
		RequestStatus: pbsmetrics.RequestStatusOK,
	}, ex.gotLabels)
}

func TestAuctionMetrics(t *testing.T) {
	metrics := &pbsmetrics.MetricsEngineMock{}
	metrics.On("RecordRequest", mock.Anything).Return()
	metrics.On("RecordRequestTime", mock.Anything, mock.Anything).Return()
	metrics.On("RecordImps", mock.Anything, mock.Anything).Return()

	endpoint := newTestEndpoint(t, &mockExchange{}, metrics)
	endpoint(httptest.NewRecorder(), httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(validRequests[1])), nil)

	expectedLabels := pbsmetrics.Labels{
		Source:        pbsmetrics.DemandWeb,
		RType:         pbsmetrics.ReqTypeORTB2Web,
		Browser:       pbsmetrics.BrowserOther,
		RequestStatus: pbsmetrics.RequestStatusOK,
	}
	metrics.AssertCalled(t, "RecordRequest", expectedLabels)
	metrics.AssertCalled(t, "RecordImps", expectedLabels, 2)
	metrics.AssertCalled(t, "RecordRequestTime", expectedLabels, mock.Anything)
}

func TestAuctionMetricsBadInput(t *testing.T) {
	metrics := &pbsmetrics.MetricsEngineMock{}
	metrics.On("RecordRequest", mock.Anything).Return()
	metrics.On("RecordRequestTime", mock.Anything, mock.Anything).Return()

	endpoint := newTestEndpoint(t, &mockExchange{}, metrics)
	endpoint(httptest.NewRecorder(), httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(`{`)), nil)

	metrics.AssertCalled(t, "RecordRequest", pbsmetrics.Labels{
		Source:        pbsmetrics.DemandUnknown,
		RType:         pbsmetrics.ReqTypeORTB2Web,
		Browser:       pbsmetrics.BrowserOther,
		RequestStatus: pbsmetrics.RequestStatusBadInput,
	})
	metrics.AssertNotCalled(t, "RecordImps", mock.Anything, mock.Anything)
}

func TestAppLabels(t *testing.T) {
	req := &openrtb.BidRequest{App: &openrtb.App{Publisher: &openrtb.Publisher{ID: "app-pub"}}}
	labels := fillLabels(pbsmetrics.Labels{}, req)
	assert.Equal(t, pbsmetrics.DemandApp, labels.Source)
	assert.Equal(t, pbsmetrics.ReqTypeORTB2App, labels.RType)
	assert.Equal(t, "app-pub", labels.PubID)
}

func newTestValidator(t *testing.T) openrtb_ext.BidderParamValidator {
	t.Helper()
	validator, err := openrtb_ext.NewBidderParamsValidator("../../static/bidder-params")
	if err != nil {
		t.Fatalf("Failed to build the bidder params validator: %v", err)
	}
	return validator
}

func newTestEndpoint(t *testing.T, ex *mockExchange, met pbsmetrics.MetricsEngine) httprouter.Handle {
	t.Helper()
	handle, err := NewEndpoint(ex, newTestValidator(t), &config.Configuration{MaxRequestSize: 1024 * 256}, met)
	if err != nil {
		t.Fatalf("NewEndpoint returned unexpected error %v", err)
	}
	return handle
}

type mockExchange struct {
	err           error
	gotRequest    *openrtb.BidRequest
	gotLabels     pbsmetrics.Labels
	gotDeadline   time.Time
	gotDeadlineOK bool
}

func (m *mockExchange) HoldAuction(ctx context.Context, bidRequest *openrtb.BidRequest, labels pbsmetrics.Labels) (*openrtb.BidResponse, error) {
	m.gotRequest = bidRequest
	m.gotLabels = labels
	m.gotDeadline, m.gotDeadlineOK = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	return &openrtb.BidResponse{ID: bidRequest.ID}, nil
}

var validRequests = []string{
	`{
		"id": "some-request-id",
		"site": {"page": "https://publisher.com/article"},
		"imp": [{
			"id": "my-imp-id",
			"banner": {"format": [{"w": 300, "h": 250}, {"w": 300, "h": 600}]},
			"ext": {"emoteev": {"adSpaceId": 5}}
		}]
	}`,
	`{
		"id": "some-request-id",
		"site": {"page": "https://publisher.com/article"},
		"imp": [{
			"id": "imp-1",
			"banner": {"format": [{"w": 300, "h": 250}]},
			"ext": {"emoteev": {"adSpaceId": "5"}}
		}, {
			"id": "imp-2",
			"banner": {"format": [{"w": 728, "h": 90}]},
			"ext": {"prebid": {"bidder": {"emoteev": {"adSpaceId": 6}}}}
		}]
	}`,
	`{
		"id": "some-request-id",
		"tmax": 1000,
		"site": {"page": "https://publisher.com/article", "publisher": {"id": "pub-1"}},
		"user": {"ext": {"consent": "BONV8oqONXwgmADACHENAO7pqzAAppY", "eids": [{"source": "pubcid.org", "uids": [{"id": "abc"}]}]}},
		"regs": {"ext": {"gdpr": 1, "us_privacy": "1NYN"}},
		"imp": [{
			"id": "my-imp-id",
			"banner": {"format": [{"wmin": 50, "wratio": 2, "hratio": 1}]},
			"ext": {"emoteev": {"adSpaceId": 5}}
		}]
	}`,
}

var invalidRequests = []string{
	`{`,
	`{"id":"some-request-id","imp":[]}`,
	`{"imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","tmax":-2,"imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","site":{},"app":{},"imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","imp":[{"banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250,"wratio":1}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"pmp":{"deals":[{}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"appnexus":{"placementId":1}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":0}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"prebid":{"bidder":{"emoteev":{"adSpaceId":""}}}}}]}`,
	`{"id":"some-request-id","imp":[{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"prebid":"bad"}}]}`,
	`{"id":"some-request-id","imp":[` +
		`{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}},` +
		`{"id":"imp-1","banner":{"format":[{"w":300,"h":250}]},"ext":{"emoteev":{"adSpaceId":5}}}]}`,
}
