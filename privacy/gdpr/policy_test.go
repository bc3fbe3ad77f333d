package gdpr

import (
	"encoding/json"
	"testing"

	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"
)

const validConsent = "BONV8oqONXwgmADACHENAO7pqzAAppY"

func TestReadFromRequest(t *testing.T) {
	testCases := []struct {
		description    string
		request        *openrtb.BidRequest
		expectedPolicy Policy
		expectedError  bool
	}{
		{
			description: "Nil Request",
		},
		{
			description: "Signal And Consent",
			request: &openrtb.BidRequest{
				Regs: &openrtb.Regs{Ext: json.RawMessage(`{"gdpr":1}`)},
				User: &openrtb.User{Ext: json.RawMessage(`{"consent":"` + validConsent + `"}`)},
			},
			expectedPolicy: Policy{Signal: "1", Consent: validConsent},
		},
		{
			description:    "Signal Only",
			request:        &openrtb.BidRequest{Regs: &openrtb.Regs{Ext: json.RawMessage(`{"gdpr":0}`)}},
			expectedPolicy: Policy{Signal: "0"},
		},
		{
			description:    "Neither",
			request:        &openrtb.BidRequest{Regs: &openrtb.Regs{Ext: json.RawMessage(`{}`)}, User: &openrtb.User{Ext: json.RawMessage(`{}`)}},
			expectedPolicy: Policy{},
		},
		{
			description:   "Malformed Signal",
			request:       &openrtb.BidRequest{Regs: &openrtb.Regs{Ext: json.RawMessage(`{"gdpr":"yes"}`)}},
			expectedError: true,
		},
		{
			description:   "Malformed Consent",
			request:       &openrtb.BidRequest{User: &openrtb.User{Ext: json.RawMessage(`{"consent":5}`)}},
			expectedError: true,
		},
	}

	for _, test := range testCases {
		policy, err := ReadFromRequest(test.request)
		if test.expectedError {
			assert.Error(t, err, test.description)
			continue
		}
		assert.NoError(t, err, test.description)
		assert.Equal(t, test.expectedPolicy, policy, test.description)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		description   string
		policy        Policy
		expectedError bool
	}{
		{description: "Empty", policy: Policy{}},
		{description: "Not Applicable", policy: Policy{Signal: "0"}},
		{description: "Valid Consent", policy: Policy{Signal: "1", Consent: validConsent}},
		{description: "Missing Consent", policy: Policy{Signal: "1"}, expectedError: true},
		{description: "Unparseable Consent", policy: Policy{Signal: "1", Consent: "garbage"}, expectedError: true},
		{description: "Bad Signal", policy: Policy{Signal: "2"}, expectedError: true},
	}

	for _, test := range testCases {
		err := test.policy.Validate()
		if test.expectedError {
			assert.Error(t, err, test.description)
		} else {
			assert.NoError(t, err, test.description)
		}
	}
}

func TestAllowsUserIDs(t *testing.T) {
	testCases := []struct {
		description  string
		policy       Policy
		defaultValue string
		expected     bool
	}{
		{description: "Not Applicable", policy: Policy{Signal: "0"}, defaultValue: "1", expected: true},
		{description: "Default Applies Without Consent", policy: Policy{}, defaultValue: "1", expected: false},
		{description: "Default Does Not Apply", policy: Policy{}, defaultValue: "0", expected: true},
		{description: "Applies With Consent", policy: Policy{Signal: "1", Consent: validConsent}, defaultValue: "0", expected: true},
		{description: "Applies With Bad Consent", policy: Policy{Signal: "1", Consent: "garbage"}, defaultValue: "0", expected: false},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expected, test.policy.AllowsUserIDs(test.defaultValue), test.description)
	}
}
