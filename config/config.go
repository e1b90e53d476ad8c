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

// Package config loads the service configuration.
//
// Values come from an optional YAML file and are then overridden by the
// environment. Durations are expressed in milliseconds in both sources.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/tochemey/mesosds/internal/validation"
	"github.com/tochemey/mesosds/log"
	"github.com/tochemey/mesosds/mesos"
)

// Environment variables overriding the file values
const (
	EnvMasterHost              = "MASTER_HOST"
	EnvMasterPort              = "MASTER_PORT"
	EnvMasterProtocol          = "MASTER_PROTOCOL"
	EnvMasterAPIURI            = "MASTER_API_URI"
	EnvMasterConnectionTimeout = "MASTER_CONNECTION_TIMEOUT_MS"
	EnvReconcileInterval       = "RECONCILE_INTERVAL_MS"
	EnvLogLevel                = "LOG_LEVEL"
	EnvNatsURL                 = "NATS_URL"
	EnvNatsSubject             = "NATS_SUBJECT"
)

const (
	DefaultReconcileIntervalMS = 600_000
	DefaultConnectionTimeoutMS = 5_000
	DefaultLogLevel            = "info"
	DefaultNatsURL             = "nats://127.0.0.1:4222"
	DefaultNatsSubject         = "mesos"
	DefaultQueueGroup          = "mesosds"
	DefaultMirrorSyncMS        = 30_000
)

// ErrInvalidEnv is returned when an environment override cannot be parsed
var ErrInvalidEnv = errors.New("invalid environment variable")

// Master holds the Mesos master connection settings
type Master struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	Protocol            string `yaml:"protocol"`
	APIURI              string `yaml:"api_uri"`
	ConnectionTimeoutMS int64  `yaml:"connection_timeout_ms"`
}

// Nats holds the NATS connection settings shared by the event source and the
// registration responder
type Nats struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Registration configures the query responder
type Registration struct {
	Enabled    bool   `yaml:"enabled"`
	QueueGroup string `yaml:"queue_group"`
}

// Etcd configures the etcd mirror sink
type Etcd struct {
	Endpoints     []string `yaml:"endpoints"`
	Prefix        string   `yaml:"prefix"`
	TTLSeconds    int64    `yaml:"ttl_seconds"`
	DialTimeoutMS int64    `yaml:"dial_timeout_ms"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
}

// Consul configures the Consul mirror sink
type Consul struct {
	Address    string   `yaml:"address"`
	Datacenter string   `yaml:"datacenter"`
	Token      string   `yaml:"token"`
	Tags       []string `yaml:"tags"`
}

// Mirror configures the export of the cache to external registries.
// A nil sink is disabled.
type Mirror struct {
	SyncIntervalMS int64   `yaml:"sync_interval_ms"`
	Etcd           *Etcd   `yaml:"etcd"`
	Consul         *Consul `yaml:"consul"`
}

// Config is the service configuration
type Config struct {
	Master              Master       `yaml:"master"`
	ReconcileIntervalMS int64        `yaml:"reconcile_interval_ms"`
	LogLevel            string       `yaml:"log_level"`
	Nats                Nats         `yaml:"nats"`
	Registration        Registration `yaml:"registration"`
	Mirror              Mirror       `yaml:"mirror"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Master: Master{
			Host:                mesos.DefaultMasterHost,
			Port:                mesos.DefaultMasterPort,
			Protocol:            mesos.DefaultMasterProtocol,
			APIURI:              mesos.DefaultMasterAPIURI,
			ConnectionTimeoutMS: DefaultConnectionTimeoutMS,
		},
		ReconcileIntervalMS: DefaultReconcileIntervalMS,
		LogLevel:            DefaultLogLevel,
		Nats: Nats{
			URL:     DefaultNatsURL,
			Subject: DefaultNatsSubject,
		},
		Registration: Registration{
			Enabled:    true,
			QueueGroup: DefaultQueueGroup,
		},
		Mirror: Mirror{
			SyncIntervalMS: DefaultMirrorSyncMS,
		},
	}
}

// Load builds the configuration from the defaults, the optional file and the
// environment, in that order, then validates it.
func Load(opts ...Option) (*Config, error) {
	loader := &loader{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt.Apply(loader)
	}

	config := Default()
	if loader.path != "" {
		bytea, err := os.ReadFile(loader.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file=(%s): %w", loader.path, err)
		}

		if err := yaml.Unmarshal(bytea, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file=(%s): %w", loader.path, err)
		}
	}

	if err := config.applyEnv(loader.lookupEnv); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks whether the configuration is usable
func (c *Config) Validate() error {
	_, levelErr := log.ParseLevel(c.LogLevel)

	chain := validation.New(validation.AllErrors()).
		AddValidator(validation.NewHostPortValidator(c.Master.Host, c.Master.Port)).
		AddAssertion(c.Master.Protocol == "http" || c.Master.Protocol == "https", "master.protocol must be http or https").
		AddAssertion(strings.HasPrefix(c.Master.APIURI, "/"), "master.api_uri must start with /").
		AddValidator(validation.NewPositiveDurationValidator("master.connection_timeout_ms", c.MasterConnectionTimeout())).
		AddValidator(validation.NewPositiveDurationValidator("reconcile_interval_ms", c.ReconcileInterval())).
		AddAssertion(levelErr == nil, fmt.Sprintf("log_level=(%s) is invalid", c.LogLevel)).
		AddValidator(validation.NewEmptyStringValidator("nats.url", c.Nats.URL)).
		AddValidator(validation.NewSubjectValidator(c.Nats.Subject)).
		AddValidator(validation.NewPositiveDurationValidator("mirror.sync_interval_ms", c.MirrorSyncInterval()))

	if c.Registration.Enabled {
		chain.AddValidator(validation.NewEmptyStringValidator("registration.queue_group", c.Registration.QueueGroup))
	}

	if c.Mirror.Etcd != nil {
		chain.AddAssertion(len(c.Mirror.Etcd.Endpoints) > 0, "mirror.etcd.endpoints must not be empty")
	}

	if c.Mirror.Consul != nil {
		chain.AddValidator(validation.NewEmptyStringValidator("mirror.consul.address", c.Mirror.Consul.Address))
	}

	return chain.Validate()
}

// MasterConfig returns the master settings in the form the event sources expect
func (c *Config) MasterConfig() mesos.MasterConfig {
	return mesos.MasterConfig{
		Host:              c.Master.Host,
		Port:              c.Master.Port,
		Protocol:          c.Master.Protocol,
		APIURI:            c.Master.APIURI,
		ConnectionTimeout: c.MasterConnectionTimeout(),
	}
}

// MasterConnectionTimeout returns the master connection timeout
func (c *Config) MasterConnectionTimeout() time.Duration {
	return time.Duration(c.Master.ConnectionTimeoutMS) * time.Millisecond
}

// ReconcileInterval returns the period between two reconciliations
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMS) * time.Millisecond
}

// MirrorSyncInterval returns the period between two mirror syncs
func (c *Config) MirrorSyncInterval() time.Duration {
	return time.Duration(c.Mirror.SyncIntervalMS) * time.Millisecond
}

// Level returns the parsed log level. It falls back to info when the level is invalid.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var err error

	setString := func(key string, target *string) {
		if value, ok := lookup(key); ok && value != "" {
			*target = value
		}
	}

	setInt := func(key string, target *int64) {
		value, ok := lookup(key)
		if !ok || value == "" {
			return
		}
		parsed, perr := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %s=(%s)", ErrInvalidEnv, key, value))
			return
		}
		*target = parsed
	}

	setString(EnvMasterHost, &c.Master.Host)
	setString(EnvMasterProtocol, &c.Master.Protocol)
	setString(EnvMasterAPIURI, &c.Master.APIURI)
	setString(EnvLogLevel, &c.LogLevel)
	setString(EnvNatsURL, &c.Nats.URL)
	setString(EnvNatsSubject, &c.Nats.Subject)

	port := int64(c.Master.Port)
	setInt(EnvMasterPort, &port)
	c.Master.Port = int(port)

	setInt(EnvMasterConnectionTimeout, &c.Master.ConnectionTimeoutMS)
	setInt(EnvReconcileInterval, &c.ReconcileIntervalMS)
	return err
}
