// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Command reduced runs the event-reduction engine as a standalone
// process: it reads an NDJSON event stream from the configured source,
// groups and merges events per spec, and writes consolidated events to
// the configured sink.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/logreduce/reduced/internal/config"
	"github.com/logreduce/reduced/internal/wiring"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("reduced exited with an error")
	}
}

func run() error {
	var cfg config.Config
	flags := pflag.NewFlagSet("reduced", pflag.ContinueOnError)
	cfg.Bind(flags)
	metricsAddr := flags.String("metricsAddr", "", "if set, serve Prometheus metrics on this address")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := cfg.Preflight(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	engine, cleanup, err := wiring.Start(ctx, &cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	err = engine.Driver.Run(ctx, cfg.Reduce.FlushPeriod)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
