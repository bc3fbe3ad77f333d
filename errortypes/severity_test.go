package errortypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsFatalError(t *testing.T) {
	fatal := &BadInput{Message: "fatal"}
	warning := &Warning{Message: "warning", WarningCode: InvalidImpWarningCode}
	unknown := errors.New("unknown")

	testCases := []struct {
		description string
		errs        []error
		expected    bool
	}{
		{description: "None", errs: []error{}, expected: false},
		{description: "Warning", errs: []error{warning}, expected: false},
		{description: "Fatal", errs: []error{fatal}, expected: true},
		{description: "Fatal And Warning", errs: []error{fatal, warning}, expected: true},
		{description: "Unknown", errs: []error{unknown}, expected: true},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expected, ContainsFatalError(test.errs), test.description)
	}
}

func TestFatalOnlyAndWarningOnly(t *testing.T) {
	fatal := &BadServerResponse{Message: "fatal"}
	warning := &Warning{Message: "warning"}
	errs := []error{fatal, warning}

	assert.Equal(t, []error{fatal}, FatalOnly(errs))
	assert.Equal(t, []error{warning}, WarningOnly(errs))
}

func TestReadCode(t *testing.T) {
	assert.Equal(t, TimeoutErrorCode, ReadCode(&Timeout{}))
	assert.Equal(t, BadInputErrorCode, ReadCode(&BadInput{}))
	assert.Equal(t, BadServerResponseErrorCode, ReadCode(&BadServerResponse{}))
	assert.Equal(t, InvalidImpWarningCode, ReadCode(&Warning{WarningCode: InvalidImpWarningCode}))
	assert.Equal(t, UnknownErrorCode, ReadCode(errors.New("any")))
}
