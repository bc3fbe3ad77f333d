package openrtb_ext

// ExtDevice defines the contract for bidrequest.device.ext
type ExtDevice struct {
	Emoteev *ExtDeviceEmoteev `json:"emoteev,omitempty"`
}

// ExtDeviceEmoteev carries the browser metrics Prebid.js collects for Emoteev
// at auction time. Any of them may be missing.
type ExtDeviceEmoteev struct {
	// Viewport is the window inner size.
	Viewport *ExtDeviceDimensions `json:"viewport,omitempty"`
	// Document holds the raw layout metrics of the page.
	Document *ExtDeviceDocument `json:"document,omitempty"`
	WebGL    bool               `json:"webgl,omitempty"`
}

// ExtDeviceDimensions is a width/height pair in CSS pixels.
type ExtDeviceDimensions struct {
	W uint64 `json:"w"`
	H uint64 `json:"h"`
}

// ExtDeviceDocument holds document.documentElement and document.body metrics.
type ExtDeviceDocument struct {
	DocumentElement *ExtDeviceElement `json:"documentElement,omitempty"`
	Body            *ExtDeviceElement `json:"body,omitempty"`
}

// ExtDeviceElement mirrors the client/offset/scroll metrics of a DOM element.
type ExtDeviceElement struct {
	ClientWidth  *uint64 `json:"clientWidth,omitempty"`
	ClientHeight *uint64 `json:"clientHeight,omitempty"`
	OffsetWidth  *uint64 `json:"offsetWidth,omitempty"`
	OffsetHeight *uint64 `json:"offsetHeight,omitempty"`
	ScrollWidth  *uint64 `json:"scrollWidth,omitempty"`
	ScrollHeight *uint64 `json:"scrollHeight,omitempty"`
}
