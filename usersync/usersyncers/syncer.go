package usersyncers

import (
	"fmt"

	"github.com/emoteev/prebid-server/adapters/emoteev"
	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/emoteev/prebid-server/usersync"
)

type syncerBuilder func(cfg config.Adapter) (usersync.Usersyncer, error)

var syncerBuilders = map[openrtb_ext.BidderName]syncerBuilder{
	openrtb_ext.BidderEmoteev: emoteev.NewEmoteevSyncer,
}

// NewSyncerMap returns a map of all the usersyncer objects for the enabled adapters.
// The same keys should exist in this map as in the exchange's bidder map.
func NewSyncerMap(cfg *config.Configuration) (map[openrtb_ext.BidderName]usersync.Usersyncer, []error) {
	syncers := make(map[openrtb_ext.BidderName]usersync.Usersyncer, len(syncerBuilders))
	var errs []error
	for bidderName, builder := range syncerBuilders {
		adapterCfg, ok := cfg.Adapters[string(bidderName)]
		if !ok || adapterCfg.Disabled {
			continue
		}
		syncer, err := builder(adapterCfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", bidderName, err))
			continue
		}
		syncers[bidderName] = syncer
	}
	return syncers, errs
}
