package info

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/emoteev/prebid-server/adapters"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
)

// NewBiddersEndpoint implements /info/bidders
func NewBiddersEndpoint(infos adapters.BidderInfos) httprouter.Handle {
	bidderNames := make([]string, 0, len(infos))
	for name := range infos {
		bidderNames = append(bidderNames, name)
	}
	sort.Strings(bidderNames)

	biddersJson, err := json.Marshal(bidderNames)
	if err != nil {
		glog.Fatalf("error creating /info/bidders endpoint response: %v", err)
	}

	return httprouter.Handle(func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(biddersJson); err != nil {
			glog.Errorf("error writing response to /info/bidders: %v", err)
		}
	})
}

// NewBidderDetailsEndpoint implements /info/bidders/*
func NewBidderDetailsEndpoint(infos adapters.BidderInfos) httprouter.Handle {
	responses := make(map[string][]byte, len(infos))
	for name, info := range infos {
		jsonData, err := json.Marshal(info)
		if err != nil {
			glog.Fatalf("error creating /info/bidders/%s endpoint response: %v", name, err)
		}
		responses[name] = jsonData
	}

	return httprouter.Handle(func(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		forBidder := ps.ByName("bidderName")
		response, ok := responses[forBidder]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(response); err != nil {
			glog.Errorf("error writing response to /info/bidders/%s: %v", forBidder, err)
		}
	})
}
