package pbsmetrics

import (
	"github.com/mssola/user_agent"
)

// BrowserFromUserAgent labels a request by the browser in its User-Agent header.
func BrowserFromUserAgent(ua string) Browser {
	if ua == "" {
		return BrowserOther
	}
	name, _ := user_agent.New(ua).Browser()
	if name == "Safari" {
		return BrowserSafari
	}
	return BrowserOther
}
