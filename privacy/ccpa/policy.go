package ccpa

import (
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/mxmCherry/openrtb"
)

// Policy represents the CCPA regulatory information from an OpenRTB bid request.
type Policy struct {
	Consent string
}

const (
	allowedVersion   = '1'
	notApplicable    = '-'
	optOutSaleYes    = 'Y'
	optOutSaleNo     = 'N'
	consentLength    = 4
	optOutSaleIndex  = 2
	noticeIndex      = 1
	lspaCoveredIndex = 3
)

// ReadFromRequest extracts the CCPA regulatory information from an OpenRTB bid request.
func ReadFromRequest(req *openrtb.BidRequest) (Policy, error) {
	if req == nil || req.Regs == nil || len(req.Regs.Ext) == 0 {
		return Policy{}, nil
	}

	consent, err := jsonparser.GetString(req.Regs.Ext, "us_privacy")
	if err == jsonparser.KeyPathNotFoundError {
		return Policy{}, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("error reading request.regs.ext: %s", err)
	}
	return Policy{Consent: consent}, nil
}

// Validate returns an error if the CCPA consent string does not adhere to the IAB spec.
func (p Policy) Validate() error {
	if err := ValidateConsent(p.Consent); err != nil {
		return fmt.Errorf("request.regs.ext.us_privacy %s", err)
	}
	return nil
}

// ValidateConsent returns an error if the CCPA consent string does not adhere to the IAB spec.
func ValidateConsent(consent string) error {
	if consent == "" {
		return nil
	}

	if len(consent) != consentLength {
		return errors.New("must contain 4 characters")
	}

	if consent[0] != allowedVersion {
		return errors.New("must specify version 1")
	}

	for _, i := range []int{noticeIndex, optOutSaleIndex, lspaCoveredIndex} {
		if !isValidFlag(consent[i]) {
			return fmt.Errorf("must specify 'N', 'Y', or '-' for index %d", i)
		}
	}

	return nil
}

func isValidFlag(c byte) bool {
	return c == optOutSaleYes || c == optOutSaleNo || c == notApplicable
}

// ShouldEnforce returns true when the user has opted out of the sale of their personal information.
// Malformed consent strings are never enforced.
func (p Policy) ShouldEnforce() bool {
	if err := ValidateConsent(p.Consent); err != nil || p.Consent == "" {
		return false
	}
	return p.Consent[optOutSaleIndex] == optOutSaleYes
}
