package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/pbsmetrics"
	metricsconfig "github.com/emoteev/prebid-server/pbsmetrics/config"
	"github.com/golang/glog"
)

// Listen serves the auction handler, the admin handler and, when a prometheus port is configured,
// the prometheus metrics. It blocks until SIGTERM or SIGINT, then shuts every server down.
func Listen(cfg *config.Configuration, handler http.Handler, adminHandler http.Handler, metrics *metricsconfig.DetailedMetricsEngine) error {
	servers, err := newServers(cfg, handler, adminHandler, metrics)
	if err != nil {
		return err
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, s := range servers {
		ln, err := newListener(s.server.Addr, s.metrics)
		if err != nil {
			closeListeners(listeners)
			return fmt.Errorf("%s server: %v", s.name, err)
		}
		listeners = append(listeners, ln)
	}

	done := make(chan struct{})
	stoppers := make([]chan<- os.Signal, 0, len(servers))
	for i, s := range servers {
		stopper := make(chan os.Signal)
		stoppers = append(stoppers, stopper)
		go shutdownAfterSignals(s.server, stopper, done)
		go runServer(s.server, s.name, listeners[i])
	}

	stopSignals := make(chan os.Signal, 1)
	signal.Notify(stopSignals, syscall.SIGTERM, syscall.SIGINT)
	wait(stopSignals, done, stoppers...)
	return nil
}

// namedServer is one of the HTTP servers run by Listen. Only the main server reports its connections.
type namedServer struct {
	name    string
	server  *http.Server
	metrics pbsmetrics.MetricsEngine
}

func newServers(cfg *config.Configuration, handler http.Handler, adminHandler http.Handler, metrics *metricsconfig.DetailedMetricsEngine) ([]namedServer, error) {
	mainServer := namedServer{name: "Main", server: newMainServer(cfg, handler)}
	if metrics != nil {
		mainServer.metrics = metrics
	}
	servers := []namedServer{mainServer, {name: "Admin", server: newAdminServer(cfg, adminHandler)}}

	if cfg.Metrics.Prometheus.Port != 0 {
		prometheusServer, err := newPrometheusServer(cfg, metrics)
		if err != nil {
			return nil, err
		}
		servers = append(servers, namedServer{name: "Prometheus", server: prometheusServer})
	}
	return servers, nil
}

func closeListeners(listeners []net.Listener) {
	for _, ln := range listeners {
		if err := ln.Close(); err != nil {
			glog.Errorf("Failed to close listener on %s: %v", ln.Addr(), err)
		}
	}
}

const (
	mainReadTimeout  = 15 * time.Second
	mainWriteTimeout = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func newAdminServer(cfg *config.Configuration, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.AdminPort),
		Handler: handler,
	}
}

func newMainServer(cfg *config.Configuration, handler http.Handler) *http.Server {
	var serverHandler = handler
	if cfg.EnableGzip {
		serverHandler = gziphandler.GzipHandler(handler)
	}

	return &http.Server{
		Addr:         cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:      serverHandler,
		ReadTimeout:  mainReadTimeout,
		WriteTimeout: mainWriteTimeout,
	}
}

func runServer(server *http.Server, name string, listener net.Listener) {
	glog.Infof("%s server starting on: %s", name, server.Addr)
	err := server.Serve(listener)
	glog.Errorf("%s server quit with error: %v", name, err)
}

func newListener(address string, metrics pbsmetrics.MetricsEngine) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("Error listening for TCP connections on %s: %v", address, err)
	}

	if metrics != nil {
		ln = &monitorableListener{ln, metrics}
	}

	return ln, nil
}

func wait(inbound <-chan os.Signal, done <-chan struct{}, outbound ...chan<- os.Signal) {
	sig := <-inbound

	for i := 0; i < len(outbound); i++ {
		go sendSignal(outbound[i], sig)
	}

	for i := 0; i < len(outbound); i++ {
		<-done
	}
}

func shutdownAfterSignals(server *http.Server, stopper <-chan os.Signal, done chan<- struct{}) {
	sig := <-stopper

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var s struct{}
	glog.Infof("Stopping %s because of signal: %s", server.Addr, sig.String())
	if err := server.Shutdown(ctx); err != nil {
		glog.Errorf("Failed to shutdown %s: %v", server.Addr, err)
	}
	done <- s
}

func sendSignal(to chan<- os.Signal, sig os.Signal) {
	to <- sig
}
