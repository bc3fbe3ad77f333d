package usersync

import (
	"github.com/emoteev/prebid-server/privacy"
)

// Usersyncer builds the user syncs a bidder asks the browser to perform.
type Usersyncer interface {
	// GetUsersyncInfo returns the syncs, in the order they should be run, allowed by the
	// options. An empty slice means the bidder has nothing to sync.
	GetUsersyncInfo(privacyPolicies privacy.Policies, options SyncOptions) ([]*UsersyncInfo, error)

	// FamilyName identifies the space of cookies for this usersyncer.
	// For example, if this Usersyncer syncs with adnxs.com, then this
	// should return "adnxs".
	FamilyName() string
}

// SyncOptions describes what the requesting page can run.
type SyncOptions struct {
	IframeEnabled bool
	PixelEnabled  bool
	// PageURL is the address of the page asking for syncs, usually the request's Referer.
	PageURL string
}

// UsersyncInfo describes one sync the browser should perform.
type UsersyncInfo struct {
	URL         string `json:"url,omitempty"`
	Type        string `json:"type,omitempty"`
	SupportCORS bool   `json:"supportCORS,omitempty"`
}

// CookieSyncBidders tells /cookie_sync callers which syncs to run for each bidder.
type CookieSyncBidders struct {
	BidderCode   string          `json:"bidder"`
	NoCookie     bool            `json:"no_cookie,omitempty"`
	UsersyncInfo []*UsersyncInfo `json:"usersync,omitempty"`
	Error        string          `json:"error,omitempty"`
}
