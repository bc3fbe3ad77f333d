package errortypes

// Severity tells whether a bidder error cost the auction its bids or only part of the request.
type Severity int

const (
	SeverityUnknown Severity = iota

	// SeverityFatal errors leave the bidder without a usable response.
	SeverityFatal

	// SeverityWarning errors mean some of the request was dropped, such as an invalid imp,
	// while the rest still went out.
	SeverityWarning
)

// severityOf reports SeverityFatal for errors which don't carry a Severity.
func severityOf(err error) Severity {
	if coder, ok := err.(Coder); ok {
		return coder.Severity()
	}
	return SeverityFatal
}

func isFatal(err error) bool {
	return severityOf(err) == SeverityFatal
}

// IsWarning is true for errors reported as SeverityWarning, which in practice are *Warning.
func IsWarning(err error) bool {
	return severityOf(err) == SeverityWarning
}

// ContainsFatalError is true if any error in the list is fatal.
func ContainsFatalError(errs []error) bool {
	for _, err := range errs {
		if isFatal(err) {
			return true
		}
	}
	return false
}

// FatalOnly keeps the fatal errors, which go to bidresponse.ext.errors.
func FatalOnly(errs []error) []error {
	return filterBySeverity(errs, isFatal)
}

// WarningOnly keeps the warnings, which go to bidresponse.ext.warnings.
func WarningOnly(errs []error) []error {
	return filterBySeverity(errs, IsWarning)
}

func filterBySeverity(errs []error, keep func(error) bool) []error {
	kept := make([]error, 0, len(errs))
	for _, err := range errs {
		if keep(err) {
			kept = append(kept, err)
		}
	}
	return kept
}
