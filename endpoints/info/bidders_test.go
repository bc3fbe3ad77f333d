package info

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emoteev/prebid-server/adapters"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

func testInfos() adapters.BidderInfos {
	return adapters.BidderInfos{
		"emoteev": adapters.BidderInfo{
			Maintainer: &adapters.MaintainerInfo{Email: "engineering@emoteev.io"},
			Capabilities: &adapters.CapabilitiesInfo{
				Site: &adapters.PlatformInfo{MediaTypes: []openrtb_ext.BidType{openrtb_ext.BidTypeBanner}},
			},
		},
	}
}

func TestBiddersEndpoint(t *testing.T) {
	endpoint := NewBiddersEndpoint(testInfos())

	r := httptest.NewRecorder()
	endpoint(r, httptest.NewRequest("GET", "/info/bidders", nil), nil)

	assert.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "application/json", r.Header().Get("Content-Type"))
	var bidders []string
	if err := json.Unmarshal(r.Body.Bytes(), &bidders); err != nil {
		t.Fatalf("Failed to unmarshal /info/bidders response: %v", err)
	}
	assert.Equal(t, []string{"emoteev"}, bidders)
}

func TestBidderDetailsEndpoint(t *testing.T) {
	endpoint := NewBidderDetailsEndpoint(testInfos())

	r := httptest.NewRecorder()
	endpoint(r, httptest.NewRequest("GET", "/info/bidders/emoteev", nil), httprouter.Params{{Key: "bidderName", Value: "emoteev"}})

	assert.Equal(t, http.StatusOK, r.Code)
	assert.JSONEq(t, `{"maintainer":{"email":"engineering@emoteev.io"},"capabilities":{"site":{"mediaTypes":["banner"]}}}`, r.Body.String())
}

func TestBidderDetailsEndpointUnknownBidder(t *testing.T) {
	endpoint := NewBidderDetailsEndpoint(testInfos())

	r := httptest.NewRecorder()
	endpoint(r, httptest.NewRequest("GET", "/info/bidders/appnexus", nil), httprouter.Params{{Key: "bidderName", Value: "appnexus"}})

	assert.Equal(t, http.StatusNotFound, r.Code)
}
