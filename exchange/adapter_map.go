package exchange

import (
	"fmt"
	"net/http"

	"github.com/emoteev/prebid-server/adapters"
	"github.com/emoteev/prebid-server/adapters/emoteev"
	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/openrtb_ext"
)

// The adapterBuilders map contains a Builder for every bidder the server can call.
// Please keep this list alphabetized to minimize merge conflicts.
func newAdapterBuilders() map[openrtb_ext.BidderName]adapters.Builder {
	return map[openrtb_ext.BidderName]adapters.Builder{
		openrtb_ext.BidderEmoteev: emoteev.Builder,
	}
}

// newAdapterMap builds an adaptedBidder for every enabled bidder of the host config.
// Bidders missing from the config or flagged as disabled are left out.
func newAdapterMap(client *http.Client, cfg *config.Configuration, infos adapters.BidderInfos) (map[openrtb_ext.BidderName]adaptedBidder, []error) {
	return buildAdapterMap(newAdapterBuilders(), client, cfg, infos)
}

func buildAdapterMap(builders map[openrtb_ext.BidderName]adapters.Builder, client *http.Client, cfg *config.Configuration, infos adapters.BidderInfos) (map[openrtb_ext.BidderName]adaptedBidder, []error) {
	var errs []error
	exchanges := make(map[openrtb_ext.BidderName]adaptedBidder, len(builders))

	for bidderName, builder := range builders {
		adapterCfg, ok := cfg.Adapters[string(bidderName)]
		if !ok || adapterCfg.Disabled {
			continue
		}

		bidder, err := builder(bidderName, adapterCfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%v: %v", bidderName, err))
			continue
		}

		info, ok := infos[string(bidderName)]
		if !ok {
			errs = append(errs, fmt.Errorf("%v: bidder info not found", bidderName))
			continue
		}

		exchanges[bidderName] = adaptBidder(adapters.EnforceBidderInfo(bidder, info), client)
	}

	return exchanges, errs
}
