/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// ap.twtd hosts the Target Wake Time session ledger for the radios of an
// access point, and exposes it over a small REST API for the wifi daemon and
// for diagnosis.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bgwlan/ap_common/aputil"
	"bgwlan/ap_common/objmgr"
	"bgwlan/ap_common/twt"
	"bgwlan/ap_common/twtcfg"

	"github.com/NYTimes/gziphandler"
	apachelog "github.com/lestrrat-go/apache-logformat"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/unrolled/secure"
	"github.com/urfave/negroni"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pname = "ap.twtd"

var (
	diagPort = flag.String("diag-port", ":7090",
		"address for the control API and prometheus metrics")
	settingsFile = flag.String("settings", "/etc/bg/twtd.yaml",
		"YAML file of initial settings")
	accessLog = flag.Bool("access-log", false,
		"log every API request to stderr")
)

type daemon struct {
	slog   *zap.SugaredLogger
	cfg    *twtcfg.Config
	psoc   *objmgr.Psoc
	ledger *twt.Ledger

	latencies *prometheus.SummaryVec
}

func newDaemon(slog *zap.SugaredLogger, fs afero.Fs, path string) (*daemon, error) {
	cfg := twtcfg.New(slog)
	if err := cfg.Load(fs, path); err != nil {
		return nil, errors.Wrap(err, "loading settings")
	}

	psoc := objmgr.NewPsoc(slog)
	d := &daemon{
		slog:   slog,
		cfg:    cfg,
		psoc:   psoc,
		ledger: twt.NewLedger(psoc, cfg, slog),
		latencies: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "twtd_request_seconds",
			Help: "API request handling time, by route.",
		}, []string{"route"}),
	}
	return d, nil
}

func (d *daemon) collectors() []prometheus.Collector {
	return append(d.ledger.Collectors(), d.latencies)
}

// handler wraps the API router in the standard middleware stack.  Requests
// are written to accessLog, if it is non-nil, in combined log format.
func (d *daemon) handler(accessLog io.Writer) http.Handler {
	secureMW := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})

	var h http.Handler = gziphandler.GzipHandler(d.router(true))
	if accessLog != nil {
		h = apachelog.CombinedLog.Wrap(h, accessLog)
	}

	n := negroni.New(negroni.NewRecovery())
	n.Use(negroni.HandlerFunc(secureMW.HandlerFuncWithNext))
	n.UseHandler(h)
	return n
}

func (d *daemon) logSettings() {
	for _, s := range d.cfg.Settings().Describe() {
		d.slog.Infof("  %-28s %s", s.Name, s.Value)
	}
}

// signalLoop runs until the daemon is told to exit.  SIGHUP dumps the current
// settings to the log.
func (d *daemon) signalLoop(ctx context.Context) error {
	sig := make(chan os.Signal, 3)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)

	for {
		select {
		case s := <-sig:
			if s != syscall.SIGHUP {
				d.slog.Infof("Received signal %v", s)
				return nil
			}
			d.logSettings()
		case <-ctx.Done():
			return nil
		}
	}
}

func main() {
	flag.Parse()

	slog := aputil.NewLogger(pname)
	defer slog.Sync()
	slog.Infof("starting")

	d, err := newDaemon(slog, afero.NewOsFs(), *settingsFile)
	if err != nil {
		slog.Fatalf("%s failed to start: %v", pname, err)
	}
	prometheus.MustRegister(d.collectors()...)
	d.logSettings()

	var logTo io.Writer
	if *accessLog {
		logTo = os.Stderr
	}
	srv := &http.Server{
		Addr:    *diagPort,
		Handler: d.handler(logTo),
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		slog.Infof("listening on %s", *diagPort)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := d.signalLoop(ctx)

		sctx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
		return err
	})

	if err = g.Wait(); err != nil {
		slog.Fatalf("%s exiting: %v", pname, err)
	}
	slog.Infof("Cleaning up")
}
