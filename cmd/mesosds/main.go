// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command mesosds keeps a live service endpoint map of a Mesos cluster and
// serves it over NATS.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/tochemey/mesosds/config"
	"github.com/tochemey/mesosds/engine"
	natsource "github.com/tochemey/mesosds/eventsource/nats"
	"github.com/tochemey/mesosds/log"
	"github.com/tochemey/mesosds/mirror"
	"github.com/tochemey/mesosds/mirror/consul"
	"github.com/tochemey/mesosds/mirror/etcd"
	"github.com/tochemey/mesosds/registration"
)

const shutdownTimeout = 10 * time.Second

type service interface {
	Stop(ctx context.Context) error
}

func main() {
	configPath := pflag.String("config", "", "path to the YAML configuration file")
	logLevel := pflag.String("log-level", "", "log level, overrides the configuration")
	pflag.Parse()

	if err := run(*configPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "mesosds: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, err := config.Load(config.WithFile(configPath))
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := log.NewZap(cfg.Level(), os.Stdout)
	defer func() {
		_ = logger.Flush()
	}()

	ctx := context.Background()
	source := natsource.NewSource(&natsource.Config{
		Server:  cfg.Nats.URL,
		Subject: cfg.Nats.Subject,
		Master:  cfg.MasterConfig(),
	}, natsource.WithLogger(logger))

	eng := engine.New(source,
		engine.WithLogger(logger),
		engine.WithReconcileInterval(cfg.ReconcileInterval()))

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start the engine: %w", err)
	}

	// stopped in reverse start order
	services := []service{eng}

	if cfg.Registration.Enabled {
		responder := registration.NewResponder(&registration.Config{
			Server:  cfg.Nats.URL,
			Subject: cfg.Nats.Subject,
		}, eng,
			registration.WithLogger(logger),
			registration.WithQueueGroup(cfg.Registration.QueueGroup))

		if err := responder.Start(ctx); err != nil {
			return multierr.Append(fmt.Errorf("failed to start the registration responder: %w", err), stop(logger, services))
		}
		services = append(services, responder)
	}

	if sinks := buildSinks(cfg, logger); len(sinks) > 0 {
		mirroring := mirror.New(eng,
			mirror.WithLogger(logger),
			mirror.WithSyncInterval(cfg.MirrorSyncInterval()),
			mirror.WithSinks(sinks...))

		if err := mirroring.Start(ctx); err != nil {
			return multierr.Append(fmt.Errorf("failed to start the mirror: %w", err), stop(logger, services))
		}
		services = append(services, mirroring)
	}

	logger.Infof("mesosds started, master=(%s) nats=(%s)", cfg.MasterConfig().URL(), cfg.Nats.URL)

	// capture ctrl+c
	interruptSignal := make(chan os.Signal, 1)
	signal.Notify(interruptSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-interruptSignal

	logger.Info("shutting down mesosds")
	return stop(logger, services)
}

func buildSinks(cfg *config.Config, logger log.Logger) []mirror.Sink {
	var sinks []mirror.Sink
	if conf := cfg.Mirror.Etcd; conf != nil {
		sinks = append(sinks, etcd.NewSink(&etcd.Config{
			Endpoints:   conf.Endpoints,
			Prefix:      conf.Prefix,
			TTL:         conf.TTLSeconds,
			DialTimeout: time.Duration(conf.DialTimeoutMS) * time.Millisecond,
			Username:    conf.Username,
			Password:    conf.Password,
		}, logger))
	}

	if conf := cfg.Mirror.Consul; conf != nil {
		sinks = append(sinks, consul.NewSink(&consul.Config{
			Address:    conf.Address,
			Datacenter: conf.Datacenter,
			Token:      conf.Token,
			Tags:       conf.Tags,
		}, logger))
	}
	return sinks
}

func stop(logger log.Logger, services []service) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	for i := len(services) - 1; i >= 0; i-- {
		err = multierr.Append(err, services[i].Stop(ctx))
	}

	if err != nil {
		logger.Errorf("mesosds stopped with errors: %v", err)
	}
	return err
}
