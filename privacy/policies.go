package privacy

import (
	"github.com/emoteev/prebid-server/privacy/ccpa"
	"github.com/emoteev/prebid-server/privacy/gdpr"
	"github.com/mxmCherry/openrtb"
)

// Policies represents the privacy regulations for an OpenRTB bid request.
type Policies struct {
	GDPR gdpr.Policy
	CCPA ccpa.Policy
}

// ReadPoliciesFromRequest extracts the privacy policies from an OpenRTB bid request.
func ReadPoliciesFromRequest(req *openrtb.BidRequest) (Policies, error) {
	gdprPolicy, err := gdpr.ReadFromRequest(req)
	if err != nil {
		return Policies{}, err
	}

	ccpaPolicy, err := ccpa.ReadFromRequest(req)
	if err != nil {
		return Policies{}, err
	}

	return Policies{GDPR: gdprPolicy, CCPA: ccpaPolicy}, nil
}

// Enforcer decides which user data the host may share with bidders.
type Enforcer struct {
	GDPRDefaultValue string
	EnforceCCPA      bool
}

// AllowsUserIDs returns false if the policies forbid sharing user identifiers with bidders.
func (e Enforcer) AllowsUserIDs(p Policies) bool {
	if e.EnforceCCPA && p.CCPA.ShouldEnforce() {
		return false
	}
	return p.GDPR.AllowsUserIDs(e.GDPRDefaultValue)
}

// AllowsSync returns false if no user sync may be offered under the policies.
func (e Enforcer) AllowsSync(p Policies) bool {
	return e.AllowsUserIDs(p)
}

// ScrubUserIDs removes the user identifiers a bidder could use to recognize the user.
// The request is shallow-copied so the caller's User is left intact.
func ScrubUserIDs(req *openrtb.BidRequest) {
	if req.User == nil {
		return
	}
	userCopy := *req.User
	userCopy.ID = ""
	userCopy.BuyerUID = ""
	userCopy.Ext = nil
	req.User = &userCopy
}
