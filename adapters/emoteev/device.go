package emoteev

import (
	"encoding/json"
	"strconv"

	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/golang/glog"
	"github.com/mxmCherry/openrtb"
)

// dimension is a length in CSS pixels. Unknown lengths are sent to Emoteev as "".
type dimension struct {
	value uint64
	known bool
}

func knownDimension(value uint64) dimension {
	return dimension{value: value, known: true}
}

func optionalDimension(value *uint64) dimension {
	if value == nil {
		return dimension{}
	}
	return knownDimension(*value)
}

func (d dimension) MarshalJSON() ([]byte, error) {
	if !d.known {
		return []byte(`""`), nil
	}
	return []byte(strconv.FormatUint(d.value, 10)), nil
}

type dimensions struct {
	width  dimension
	height dimension
}

type deviceInfo struct {
	BrowserWidth   dimension `json:"browserWidth"`
	BrowserHeight  dimension `json:"browserHeight"`
	DeviceWidth    dimension `json:"deviceWidth"`
	DeviceHeight   dimension `json:"deviceHeight"`
	DocumentWidth  dimension `json:"documentWidth"`
	DocumentHeight dimension `json:"documentHeight"`
	WebGL          bool      `json:"webGL"`
}

// browserMetrics reads device.ext.emoteev. A malformed ext is treated as missing.
func browserMetrics(device *openrtb.Device) *openrtb_ext.ExtDeviceEmoteev {
	if device == nil || len(device.Ext) == 0 {
		return nil
	}
	var ext openrtb_ext.ExtDevice
	if err := json.Unmarshal(device.Ext, &ext); err != nil {
		glog.V(2).Infof("emoteev: ignoring malformed device.ext: %v", err)
		return nil
	}
	return ext.Emoteev
}

// getViewDimensions returns the window inner size, or the client size of the root element
// (the body when the document has none) when the browser did not report a viewport.
func getViewDimensions(metrics *openrtb_ext.ExtDeviceEmoteev) dimensions {
	if metrics == nil {
		return dimensions{}
	}
	if metrics.Viewport != nil {
		return dimensions{
			width:  knownDimension(metrics.Viewport.W),
			height: knownDimension(metrics.Viewport.H),
		}
	}
	if metrics.Document == nil {
		return dimensions{}
	}
	element := metrics.Document.DocumentElement
	if element == nil {
		element = metrics.Document.Body
	}
	if element == nil {
		return dimensions{}
	}
	return dimensions{
		width:  optionalDimension(element.ClientWidth),
		height: optionalDimension(element.ClientHeight),
	}
}

// getDeviceDimensions returns the screen size.
func getDeviceDimensions(device *openrtb.Device) dimensions {
	if device == nil || (device.W == 0 && device.H == 0) {
		return dimensions{}
	}
	return dimensions{
		width:  knownDimension(device.W),
		height: knownDimension(device.H),
	}
}

// getDocumentDimensions returns the largest of the client, offset and scroll sizes of the
// root element. The height also considers the body. Any missing root metric makes that
// dimension unknown.
func getDocumentDimensions(metrics *openrtb_ext.ExtDeviceEmoteev) dimensions {
	if metrics == nil || metrics.Document == nil || metrics.Document.DocumentElement == nil {
		return dimensions{}
	}
	root := metrics.Document.DocumentElement

	var bodyHeight dimension
	if body := metrics.Document.Body; body != nil {
		bodyHeight = maxDimension(optionalDimension(body.OffsetHeight), optionalDimension(body.ScrollHeight))
	} else {
		bodyHeight = knownDimension(0)
	}

	return dimensions{
		width: maxDimension(
			optionalDimension(root.ClientWidth),
			optionalDimension(root.OffsetWidth),
			optionalDimension(root.ScrollWidth),
		),
		height: maxDimension(
			optionalDimension(root.ClientHeight),
			optionalDimension(root.OffsetHeight),
			optionalDimension(root.ScrollHeight),
			bodyHeight,
		),
	}
}

// maxDimension is unknown as soon as one of its inputs is.
func maxDimension(values ...dimension) dimension {
	result := knownDimension(0)
	for _, value := range values {
		if !value.known {
			return dimension{}
		}
		if value.value > result.value {
			result.value = value.value
		}
	}
	return result
}

func isWebGLEnabled(metrics *openrtb_ext.ExtDeviceEmoteev) bool {
	return metrics != nil && metrics.WebGL
}

func getDeviceInfo(deviceDimensions, viewDimensions, documentDimensions dimensions, webGL bool) deviceInfo {
	return deviceInfo{
		BrowserWidth:   viewDimensions.width,
		BrowserHeight:  viewDimensions.height,
		DeviceWidth:    deviceDimensions.width,
		DeviceHeight:   deviceDimensions.height,
		DocumentWidth:  documentDimensions.width,
		DocumentHeight: documentDimensions.height,
		WebGL:          webGL,
	}
}

func readDeviceInfo(device *openrtb.Device) deviceInfo {
	metrics := browserMetrics(device)
	return getDeviceInfo(
		getDeviceDimensions(device),
		getViewDimensions(metrics),
		getDocumentDimensions(metrics),
		isWebGLEnabled(metrics),
	)
}
