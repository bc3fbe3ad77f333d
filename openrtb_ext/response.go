package openrtb_ext

// ExtBidResponse defines the contract for bidresponse.ext
type ExtBidResponse struct {
	Debug *ExtResponseDebug `json:"debug,omitempty"`
	// Errors defines the contract for bidresponse.ext.errors
	Errors map[BidderName][]ExtBidderError `json:"errors,omitempty"`
	// Warnings defines the contract for bidresponse.ext.warnings
	Warnings map[BidderName][]ExtBidderError `json:"warnings,omitempty"`
	// ResponseTimeMillis defines the contract for bidresponse.ext.responsetimemillis
	ResponseTimeMillis map[BidderName]int `json:"responsetimemillis,omitempty"`
}

// ExtResponseDebug defines the contract for bidresponse.ext.debug
type ExtResponseDebug struct {
	// HttpCalls defines the contract for bidresponse.ext.debug.httpcalls
	HttpCalls map[BidderName][]*ExtHttpCall `json:"httpcalls,omitempty"`
}

// ExtBidderError defines an error object to be returned, consiting of a machine readable error code, and a human readable error message string.
type ExtBidderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ExtHttpCall defines the contract for a bidresponse.ext.debug.httpcalls.{bidder}[i]
type ExtHttpCall struct {
	Uri          string `json:"uri"`
	RequestBody  string `json:"requestbody"`
	ResponseBody string `json:"responsebody"`
	Status       int    `json:"status"`
}

// UserSyncType describes the allowed values for /cookie_sync bidder_status[i].usersync.type
type UserSyncType string

const (
	UserSyncIframe UserSyncType = "iframe"
	UserSyncImage  UserSyncType = "image"
)
