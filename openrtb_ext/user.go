package openrtb_ext

// ExtUser defines the contract for bidrequest.user.ext
type ExtUser struct {
	// Consent is a GDPR consent string. See "Advised Extensions" of
	// https://iabtechlab.com/wp-content/uploads/2018/02/OpenRTB_Advisory_GDPR_2018-02.pdf
	Consent string `json:"consent,omitempty"`

	Eids []ExtUserEid `json:"eids,omitempty"`
}

// ExtUserEid defines the contract for bidrequest.user.ext.eids
// Responsible for the Universal User ID support: establishing pseudonymous IDs for users.
type ExtUserEid struct {
	Source string          `json:"source"`
	ID     string          `json:"id,omitempty"`
	Uids   []ExtUserEidUid `json:"uids,omitempty"`
}

// ExtUserEidUid defines the contract for bidrequest.user.ext.eids[i].uids[j]
type ExtUserEidUid struct {
	ID    string `json:"id"`
	Atype int    `json:"atype,omitempty"`
}

// PubCommonIDSource is the eid source under which Prebid.js reports the PubCommon ID.
const PubCommonIDSource = "pubcid.org"

// PubCommonID returns the first PubCommon ID carried in the eids, if any.
func (ext *ExtUser) PubCommonID() (string, bool) {
	for _, eid := range ext.Eids {
		if eid.Source != PubCommonIDSource {
			continue
		}
		if eid.ID != "" {
			return eid.ID, true
		}
		for _, uid := range eid.Uids {
			if uid.ID != "" {
				return uid.ID, true
			}
		}
	}
	return "", false
}
