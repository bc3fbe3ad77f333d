package main

import (
	"flag"
	"math/rand"
	"time"

	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/router"
	"github.com/emoteev/prebid-server/server"
	"github.com/golang/glog"
	"github.com/spf13/viper"
)

// Rev and Version hold the binary's git revision and release tag.
// Set at build time using:
//    go build -ldflags "-X main.Rev=`git rev-parse --short HEAD` -X main.Version=`git describe --tags`"
var (
	Rev     string
	Version string
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	if err := serve(Version, Rev, cfg); err != nil {
		glog.Exitf("prebid-server failed: %v", err)
	}
}

const configFileName = "pbs"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(version, revision string, cfg *config.Configuration) error {
	r, err := router.New(cfg, version, revision)
	if err != nil {
		return err
	}

	corsRouter := router.SupportCORS(r)
	return server.Listen(cfg, router.NoCache{Handler: corsRouter}, router.Admin(version, revision), r.MetricsEngine)
}
