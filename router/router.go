package router

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/emoteev/prebid-server/adapters"
	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/endpoints"
	infoEndpoints "github.com/emoteev/prebid-server/endpoints/info"
	"github.com/emoteev/prebid-server/endpoints/openrtb2"
	"github.com/emoteev/prebid-server/exchange"
	"github.com/emoteev/prebid-server/openrtb_ext"
	metricsConf "github.com/emoteev/prebid-server/pbsmetrics/config"
	"github.com/emoteev/prebid-server/usersync/usersyncers"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

const (
	schemaDirectory = "static/bidder-params"
	infoDirectory   = "static/bidder-info"
)

// NewJsonDirectoryServer is used to serve .json files from a directory as a single blob. For example,
// given a directory containing the files "a.json" and "b.json", this returns a Handle which serves JSON like:
//
// {
//   "a": { ... content from the file a.json ... },
//   "b": { ... content from the file b.json ... }
// }
//
// This function stores the file contents in memory, and should not be used on large directories.
// If the root directory, or any of the files in it, cannot be read, then the program will exit.
func NewJsonDirectoryServer(schemaDirectory string, validator openrtb_ext.BidderParamValidator) httprouter.Handle {
	// Slurp the files into memory first, since they're small and it minimizes request latency.
	files, err := ioutil.ReadDir(schemaDirectory)
	if err != nil {
		glog.Fatalf("Failed to read directory %s: %v", schemaDirectory, err)
	}

	data := make(map[string]json.RawMessage, len(files))
	for _, file := range files {
		bidder := strings.TrimSuffix(file.Name(), ".json")
		bidderName, isValid := openrtb_ext.GetBidderName(bidder)
		if !isValid {
			glog.Fatalf("Schema exists for an unknown bidder: %s", bidder)
		}
		data[bidder] = json.RawMessage(validator.Schema(bidderName))
	}

	response, err := json.Marshal(data)
	if err != nil {
		glog.Fatalf("Failed to marshal bidder param JSON-schema: %v", err)
	}

	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Add("Content-Type", "application/json")
		w.Write(response)
	}
}

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// SupportCORS lets any origin call the server with credentials, since Prebid.js runs on publisher pages.
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}

type Router struct {
	*httprouter.Router
	MetricsEngine   *metricsConf.DetailedMetricsEngine
	ParamsValidator openrtb_ext.BidderParamValidator
}

func newHTTPClient(cfg config.HTTPClient) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     cfg.MaxConnsPerHost,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     time.Duration(cfg.IdleConnTimeout) * time.Second,
		},
	}
}

// New builds the main server's routes.
func New(cfg *config.Configuration, version, revision string) (r *Router, err error) {
	return newRouter(cfg, version, revision, schemaDirectory, infoDirectory)
}

func newRouter(cfg *config.Configuration, version, revision string, schemaDir string, infoDir string) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}

	bidderList := openrtb_ext.BidderList()
	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg, bidderList)

	r.ParamsValidator, err = openrtb_ext.NewBidderParamsValidator(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("Failed to create the bidder params validator. %v", err)
	}

	bidderInfos, err := adapters.ParseBidderInfos(infoDir, bidderList)
	if err != nil {
		return nil, err
	}

	theExchange, errs := exchange.NewExchange(newHTTPClient(cfg.Client), cfg, r.MetricsEngine, bidderInfos)
	if len(errs) > 0 {
		return nil, fmt.Errorf("Failed to initialize adapters: %v", errs)
	}

	syncers, errs := usersyncers.NewSyncerMap(cfg)
	if len(errs) > 0 {
		return nil, fmt.Errorf("Failed to initialize usersyncers: %v", errs)
	}

	openrtbEndpoint, err := openrtb2.NewEndpoint(theExchange, r.ParamsValidator, cfg, r.MetricsEngine)
	if err != nil {
		return nil, fmt.Errorf("Failed to create the openrtb2 endpoint handler. %v", err)
	}

	r.POST("/openrtb2/auction", openrtbEndpoint)
	r.POST("/cookie_sync", endpoints.NewCookieSyncEndpoint(syncers, cfg, r.MetricsEngine))
	r.GET("/info/bidders", infoEndpoints.NewBiddersEndpoint(bidderInfos))
	r.GET("/info/bidders/:bidderName", infoEndpoints.NewBidderDetailsEndpoint(bidderInfos))
	r.GET("/bidders/params", NewJsonDirectoryServer(schemaDir, r.ParamsValidator))
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))
	r.GET("/version", endpoints.NewVersionEndpoint(version, revision))

	glog.Infof("Routes registered for %d bidders", len(bidderInfos))
	return r, nil
}
