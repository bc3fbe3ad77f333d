package exchange

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emoteev/prebid-server/adapters"
	"github.com/emoteev/prebid-server/errortypes"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"
)

func TestSingleRequest(t *testing.T) {
	var gotHeader string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Content-Type")
		gotBody, _ = ioutil.ReadAll(r.Body)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`bad`))
	}))
	defer server.Close()

	bidder := &statusBidder{uri: server.URL}
	seatBid, errs := adaptBidder(bidder, server.Client()).requestBid(context.Background(), &openrtb.BidRequest{}, openrtb_ext.BidderEmoteev, &adapters.ExtraRequestInfo{})

	assert.Empty(t, errs)
	assert.Equal(t, "application/json", gotHeader)
	assert.Equal(t, `{"id":"req"}`, string(gotBody))
	assert.Equal(t, http.StatusBadRequest, bidder.gotStatus, "non 2xx statuses are handed to the bidder")
	assert.Equal(t, "bad", bidder.gotBody)
	if assert.NotNil(t, seatBid) {
		assert.Empty(t, seatBid.httpCalls, "debug info is only captured for test requests")
	}
}

func TestRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, errs := adaptBidder(&statusBidder{uri: server.URL}, server.Client()).requestBid(ctx, &openrtb.BidRequest{}, openrtb_ext.BidderEmoteev, &adapters.ExtraRequestInfo{})

	if assert.Len(t, errs, 1) {
		_, isTimeout := errs[0].(*errortypes.Timeout)
		assert.True(t, isTimeout, "expected a Timeout, got %v", errs[0])
	}
}

func TestConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	uri := server.URL
	server.Close()

	_, errs := adaptBidder(&statusBidder{uri: uri}, http.DefaultClient).requestBid(context.Background(), &openrtb.BidRequest{Test: 1}, openrtb_ext.BidderEmoteev, &adapters.ExtraRequestInfo{})

	if assert.Len(t, errs, 1) {
		_, isTimeout := errs[0].(*errortypes.Timeout)
		assert.False(t, isTimeout)
	}
}

func TestNoRequestsNoErrors(t *testing.T) {
	seatBid, errs := adaptBidder(&recordingBidder{}, http.DefaultClient).requestBid(context.Background(), &openrtb.BidRequest{}, openrtb_ext.BidderEmoteev, &adapters.ExtraRequestInfo{})

	assert.Nil(t, seatBid)
	if assert.Len(t, errs, 1) {
		_, ok := errs[0].(*errortypes.FailedToRequestBids)
		assert.True(t, ok)
	}
}

func TestMultiRequestCurrencyMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Query().Get("cur")))
	}))
	defer server.Close()

	bidder := &currencyBidder{uris: []string{server.URL + "?cur=USD", server.URL + "?cur=EUR"}}
	seatBid, errs := adaptBidder(bidder, server.Client()).requestBid(context.Background(), &openrtb.BidRequest{}, openrtb_ext.BidderEmoteev, &adapters.ExtraRequestInfo{})

	if assert.Len(t, errs, 1) {
		_, ok := errs[0].(*errortypes.BadServerResponse)
		assert.True(t, ok)
	}
	if assert.NotNil(t, seatBid) {
		assert.Len(t, seatBid.bids, 1)
	}
}

func TestMakeExt(t *testing.T) {
	ext := makeExt(&httpCallInfo{
		request:  &adapters.RequestData{Uri: "http://emoteev.test", Body: []byte(`{}`)},
		response: &adapters.ResponseData{StatusCode: 200, Body: []byte(`[]`)},
	})
	assert.Equal(t, &openrtb_ext.ExtHttpCall{Uri: "http://emoteev.test", RequestBody: `{}`, ResponseBody: `[]`, Status: 200}, ext)

	failed := makeExt(&httpCallInfo{
		request: &adapters.RequestData{Uri: "http://emoteev.test"},
		err:     assert.AnError,
	})
	assert.Equal(t, 0, failed.Status)
	assert.Empty(t, failed.ResponseBody)
}

// statusBidder records the response the exchange hands over and never bids.
type statusBidder struct {
	uri       string
	gotStatus int
	gotBody   string
}

func (b *statusBidder) MakeRequests(request *openrtb.BidRequest, reqInfo *adapters.ExtraRequestInfo) ([]*adapters.RequestData, []error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return []*adapters.RequestData{{
		Method:  "POST",
		Uri:     b.uri,
		Body:    []byte(`{"id":"req"}`),
		Headers: headers,
	}}, nil
}

func (b *statusBidder) MakeBids(internalRequest *openrtb.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	b.gotStatus = response.StatusCode
	b.gotBody = string(response.Body)
	return nil, nil
}

// currencyBidder makes one request per uri and bids in the currency the server echoes back.
type currencyBidder struct {
	uris []string
}

func (b *currencyBidder) MakeRequests(request *openrtb.BidRequest, reqInfo *adapters.ExtraRequestInfo) ([]*adapters.RequestData, []error) {
	reqs := make([]*adapters.RequestData, 0, len(b.uris))
	for _, uri := range b.uris {
		reqs = append(reqs, &adapters.RequestData{Method: "GET", Uri: uri})
	}
	return reqs, nil
}

func (b *currencyBidder) MakeBids(internalRequest *openrtb.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	return &adapters.BidderResponse{
		Currency: string(response.Body),
		Bids: []*adapters.TypedBid{{
			Bid:     &openrtb.Bid{ID: string(response.Body), Price: 1},
			BidType: openrtb_ext.BidTypeBanner,
		}},
	}, nil
}
