package gdpr

import (
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/mxmCherry/openrtb"
	"github.com/prebid/go-gdpr/vendorconsent"
)

// Policy represents the GDPR regulatory information from an OpenRTB bid request.
type Policy struct {
	Signal  string
	Consent string
}

// ReadFromRequest extracts the GDPR regulatory information from an OpenRTB bid request.
// The signal comes from request.regs.ext.gdpr and the consent from request.user.ext.consent.
func ReadFromRequest(req *openrtb.BidRequest) (Policy, error) {
	var policy Policy
	if req == nil {
		return policy, nil
	}

	if req.Regs != nil && len(req.Regs.Ext) > 0 {
		signal, err := jsonparser.GetInt(req.Regs.Ext, "gdpr")
		switch err {
		case nil:
			policy.Signal = fmt.Sprintf("%d", signal)
		case jsonparser.KeyPathNotFoundError:
		default:
			return Policy{}, fmt.Errorf("error reading request.regs.ext.gdpr: %s", err)
		}
	}

	if req.User != nil && len(req.User.Ext) > 0 {
		consent, err := jsonparser.GetString(req.User.Ext, "consent")
		switch err {
		case nil:
			policy.Consent = consent
		case jsonparser.KeyPathNotFoundError:
		default:
			return Policy{}, fmt.Errorf("error reading request.user.ext.consent: %s", err)
		}
	}

	return policy, nil
}

// Applies resolves whether GDPR applies, falling back to the host default when the
// request carries no signal.
func (p Policy) Applies(defaultValue string) bool {
	signal := p.Signal
	if signal == "" {
		signal = defaultValue
	}
	return signal == "1"
}

// Validate returns an error if the signal is malformed or the consent string cannot be parsed.
func (p Policy) Validate() error {
	if p.Signal != "" && p.Signal != "0" && p.Signal != "1" {
		return fmt.Errorf("gdpr signal must be 0 or 1, got %s", p.Signal)
	}
	if p.Signal == "1" && p.Consent == "" {
		return errors.New("gdpr_consent is required if gdpr=1")
	}
	return ValidateConsent(p.Consent)
}

// ValidateConsent returns an error if a non-empty consent string is not a valid IAB consent string.
func ValidateConsent(consent string) error {
	if consent == "" {
		return nil
	}
	if _, err := vendorconsent.ParseString(consent); err != nil {
		return fmt.Errorf("gdpr_consent was invalid. %v", err)
	}
	return nil
}

// AllowsUserIDs returns false when GDPR applies and the consent string is missing or unusable.
func (p Policy) AllowsUserIDs(defaultValue string) bool {
	if !p.Applies(defaultValue) {
		return true
	}
	return p.Consent != "" && ValidateConsent(p.Consent) == nil
}
