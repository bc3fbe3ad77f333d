package emoteev

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/emoteev/prebid-server/adapters"
	"github.com/emoteev/prebid-server/adapters/adapterstest"
	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/errortypes"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"
)

const testEndpoint = "{{.Host}}/api/prebid/bid"

func newTestBidder(t *testing.T, extraInfo string) *EmoteevAdapter {
	bidder, err := Builder(openrtb_ext.BidderEmoteev, config.Adapter{Endpoint: testEndpoint, ExtraAdapterInfo: extraInfo})
	if err != nil {
		t.Fatalf("Builder returned unexpected error %v", err)
	}
	emoteevBidder := bidder.(*EmoteevAdapter)
	emoteevBidder.newBidID = func() (string, error) { return "test-bid-id", nil }
	return emoteevBidder
}

func TestJsonSamples(t *testing.T) {
	adapterstest.RunJSONBidderTest(t, "emoteevtest", newTestBidder(t, ""))
}

func TestBuilderRejectsBadConfig(t *testing.T) {
	_, err := Builder(openrtb_ext.BidderEmoteev, config.Adapter{Endpoint: "{{.Host"})
	assert.Error(t, err, "endpoint template")

	_, err = Builder(openrtb_ext.BidderEmoteev, config.Adapter{Endpoint: testEndpoint, ExtraAdapterInfo: "{"})
	assert.Error(t, err, "extra_info")
}

func TestConfigEnvironmentAndOverrides(t *testing.T) {
	bidder := newTestBidder(t, `{"env":"staging","debug":true,"overrides":{"language":"fr"}}`)

	reqs, errs := bidder.MakeRequests(validRequest(""), &adapters.ExtraRequestInfo{})

	assert.Empty(t, errs)
	if assert.Len(t, reqs, 1) {
		assert.Equal(t, "https://prebid-staging.emoteev.com/api/prebid/bid", reqs[0].Uri)
		assert.Equal(t, "POST", reqs[0].Method)
		assert.Equal(t, "application/json;charset=utf-8", reqs[0].Headers.Get("Content-Type"))

		var body map[string]json.RawMessage
		assert.NoError(t, json.Unmarshal(reqs[0].Body, &body))
		assert.JSONEq(t, `true`, string(body["debug"]))
		assert.JSONEq(t, `"fr"`, string(body["language"]))
	}
}

func TestPageParametersBeatConfig(t *testing.T) {
	bidder := newTestBidder(t, `{"env":"staging","debug":true,"overrides":{"language":"fr"}}`)
	page := "https://publisher.example/?emoteevEnv=production&emoteevDebug=false&emoteevOverrides=%7B%22language%22%3A%22de%22%7D"

	reqs, errs := bidder.MakeRequests(validRequest(page), &adapters.ExtraRequestInfo{})

	assert.Empty(t, errs)
	if assert.Len(t, reqs, 1) {
		assert.Equal(t, "https://prebid.emoteev.com/api/prebid/bid", reqs[0].Uri)

		var body map[string]json.RawMessage
		assert.NoError(t, json.Unmarshal(reqs[0].Body, &body))
		assert.JSONEq(t, `false`, string(body["debug"]))
		assert.JSONEq(t, `"de"`, string(body["language"]))
	}
}

func TestInvalidCurrencyIsAWarning(t *testing.T) {
	bidder := newTestBidder(t, "")
	request := validRequest("")
	request.Cur = []string{"EURO"}

	reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})

	assert.Len(t, reqs, 1)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, errortypes.InvalidCurrencyWarningCode, errortypes.ReadCode(errs[0]))
		assert.False(t, errortypes.ContainsFatalError(errs))
	}

	var body map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	_, hasCurrency := body["currency"]
	assert.False(t, hasCurrency)
}

func TestInvalidImpsAreWarnings(t *testing.T) {
	bidder := newTestBidder(t, "")
	request := validRequest("")
	request.Imp = append(request.Imp, openrtb.Imp{ID: "broken", Ext: json.RawMessage(`not json`)})

	reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})

	assert.Len(t, reqs, 1)
	if assert.Len(t, errs, 1) {
		assert.IsType(t, &errortypes.Warning{}, errs[0])
		assert.Equal(t, errortypes.InvalidImpWarningCode, errortypes.ReadCode(errs[0]))
	}
}

func TestIsBidRequestValid(t *testing.T) {
	testCases := []struct {
		description string
		bidderCode  string
		params      string
		sizes       [][]uint64
		expected    bool
	}{
		{description: "numeric ad space", bidderCode: "emoteev", params: `{"adSpaceId":12}`, sizes: [][]uint64{{300, 250}}, expected: true},
		{description: "string ad space", bidderCode: "emoteev", params: `{"adSpaceId":"12"}`, sizes: [][]uint64{{300, 250}}, expected: true},
		{description: "one good size is enough", bidderCode: "emoteev", params: `{"adSpaceId":12}`, sizes: [][]uint64{{300}, {300, 250}}, expected: true},
		{description: "wrong bidder code", bidderCode: "other", params: `{"adSpaceId":12}`, sizes: [][]uint64{{300, 250}}, expected: false},
		{description: "missing ad space", bidderCode: "emoteev", params: `{}`, sizes: [][]uint64{{300, 250}}, expected: false},
		{description: "zero ad space", bidderCode: "emoteev", params: `{"adSpaceId":0}`, sizes: [][]uint64{{300, 250}}, expected: false},
		{description: "empty ad space", bidderCode: "emoteev", params: `{"adSpaceId":""}`, sizes: [][]uint64{{300, 250}}, expected: false},
		{description: "null ad space", bidderCode: "emoteev", params: `{"adSpaceId":null}`, sizes: [][]uint64{{300, 250}}, expected: false},
		{description: "no sizes", bidderCode: "emoteev", params: `{"adSpaceId":12}`, sizes: [][]uint64{}, expected: false},
		{description: "no two element size", bidderCode: "emoteev", params: `{"adSpaceId":12}`, sizes: [][]uint64{{300}, {300, 250, 1}}, expected: false},
		{description: "params missing", bidderCode: "emoteev", params: ``, sizes: [][]uint64{{300, 250}}, expected: false},
	}

	for _, test := range testCases {
		bid := bidRequest{Params: json.RawMessage(test.params), Sizes: test.sizes}
		assert.Equal(t, test.expected, isBidRequestValid(test.bidderCode, bid), test.description)
	}
}

func TestIsTruthy(t *testing.T) {
	testCases := []struct {
		json     string
		expected bool
	}{
		{json: `{"v":true}`, expected: true},
		{json: `{"v":false}`, expected: false},
		{json: `{"v":1.5}`, expected: true},
		{json: `{"v":-1}`, expected: true},
		{json: `{"v":0.0}`, expected: false},
		{json: `{"v":"x"}`, expected: true},
		{json: `{"v":{}}`, expected: true},
		{json: `{"v":[]}`, expected: true},
		{json: `{"v":null}`, expected: false},
		{json: `{}`, expected: false},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expected, isTruthy([]byte(test.json), "v"), test.json)
	}
}

func TestInterpretResponseIsIdentity(t *testing.T) {
	body := []byte(`[{"requestId":"a","cpm":1,"width":300,"height":250,"ad":"<b/>","ttl":30,"creativeId":"c","netRevenue":true,"currency":"USD"}]`)

	results, err := interpretResponse(body)

	assert.NoError(t, err)
	assert.Equal(t, []bidResult{{
		RequestID:  "a",
		CPM:        1,
		Width:      300,
		Height:     250,
		Ad:         "<b/>",
		TTL:        30,
		CreativeID: "c",
		NetRevenue: true,
		Currency:   "USD",
	}}, results)
}

func TestFlexibleText(t *testing.T) {
	var result bidResult
	assert.NoError(t, json.Unmarshal([]byte(`{"creativeId":12.5}`), &result))
	assert.Equal(t, flexibleText("12.5"), result.CreativeID)

	assert.Error(t, json.Unmarshal([]byte(`{"creativeId":true}`), &result))
}

func TestMakeBidsStatusCodes(t *testing.T) {
	bidder := newTestBidder(t, "")
	request := validRequest("")

	resp, errs := bidder.MakeBids(request, &adapters.RequestData{}, &adapters.ResponseData{StatusCode: 204})
	assert.Nil(t, resp)
	assert.Empty(t, errs)

	for _, status := range []int{400, 404, 500, 503} {
		resp, errs = bidder.MakeBids(request, &adapters.RequestData{}, &adapters.ResponseData{StatusCode: status})
		assert.Nil(t, resp, "status %d", status)
		if assert.Len(t, errs, 1, "status %d", status) {
			assert.IsType(t, &errortypes.BadServerResponse{}, errs[0], "status %d", status)
		}
	}
}

func TestMakeBidsCurrencyFromFirstResult(t *testing.T) {
	bidder := newTestBidder(t, "")

	resp, errs := bidder.MakeBids(validRequest(""), &adapters.RequestData{}, &adapters.ResponseData{
		StatusCode: 200,
		Body:       []byte(`[{"requestId":"nope","cpm":1,"currency":"EUR"},{"requestId":"imp-1","cpm":2,"width":300,"height":250,"ad":"x","currency":"USD"}]`),
	})

	assert.Len(t, errs, 1)
	if assert.Len(t, resp.Bids, 1) {
		assert.Equal(t, "imp-1", resp.Bids[0].Bid.ImpID)
	}
	assert.Equal(t, "EUR", resp.Currency)
}

func TestMakeBidsIDFailure(t *testing.T) {
	bidder := newTestBidder(t, "")
	bidder.newBidID = func() (string, error) { return "", errors.New("no entropy") }

	resp, errs := bidder.MakeBids(validRequest(""), &adapters.RequestData{}, &adapters.ResponseData{
		StatusCode: 200,
		Body:       []byte(`[{"requestId":"imp-1","cpm":1,"width":300,"height":250,"ad":"x","ttl":30,"creativeId":"c","netRevenue":true,"currency":"USD"}]`),
	})

	assert.Len(t, errs, 1)
	assert.Empty(t, resp.Bids)
}

func TestGeneratedBidIDsAreUnique(t *testing.T) {
	first, err := generateBidID()
	assert.NoError(t, err)
	second, err := generateBidID()
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Len(t, first, 36)
}

func validRequest(page string) *openrtb.BidRequest {
	return &openrtb.BidRequest{
		ID: "request-id",
		Imp: []openrtb.Imp{{
			ID:     "imp-1",
			Banner: &openrtb.Banner{Format: []openrtb.Format{{W: 300, H: 250}}},
			Ext:    json.RawMessage(`{"bidder":{"adSpaceId":1}}`),
		}},
		Site: &openrtb.Site{Page: page},
	}
}
