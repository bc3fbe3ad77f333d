package openrtb_ext

import "encoding/json"

// ExtImpEmoteev defines the contract for bidrequest.imp[i].ext.emoteev
type ExtImpEmoteev struct {
	// AdSpaceID is kept raw: Emoteev accepts numeric and string identifiers and
	// echoes them back unchanged.
	AdSpaceID json.RawMessage `json:"adSpaceId"`
}
