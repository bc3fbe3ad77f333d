package router

import (
	"net/http"
	"net/http/pprof"

	"github.com/emoteev/prebid-server/endpoints"
)

// Admin returns the handler served on the admin port.
func Admin(version, revision string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	versionEndpoint := endpoints.NewVersionEndpoint(version, revision)
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		versionEndpoint(w, r, nil)
	})
	return mux
}
