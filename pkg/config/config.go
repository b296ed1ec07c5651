// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the daemon configuration from defaults, an optional
// config file, and FULCRUM_* environment variables (in ascending
// precedence). No command-line flags are bound into the loaded values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/haroldDOTsh/fulcrum/pkg/errors"
)

// Timing bundles every protocol timing knob.
type Timing struct {
	// HeartbeatTick is the monitor sweep interval.
	HeartbeatTick time.Duration
	// SoftTimeout demotes AVAILABLE entries to UNAVAILABLE.
	SoftTimeout time.Duration
	// HardTimeout moves UNAVAILABLE entries to DEAD.
	HardTimeout time.Duration
	// RecycleWindow is the reserved cool-down before a dead ID frees.
	RecycleWindow time.Duration
	// EvacuationDeadline bounds an in-flight evacuation request.
	EvacuationDeadline time.Duration
	// DedupeWindow collapses burst re-registrations per (address, port).
	DedupeWindow time.Duration
	// RequestTimeout bounds node-side bus request/reply exchanges.
	RequestTimeout time.Duration
	// RegistrationRetries is the node-side registration attempt count.
	RegistrationRetries int
	// RegistrationRetryInterval spaces node-side registration attempts.
	RegistrationRetryInterval time.Duration
}

// Config is the resolved daemon configuration.
type Config struct {
	// RedisAddr is the bus endpoint (host:port).
	RedisAddr string
	// RedisPassword is optional.
	RedisPassword string
	// APIListen is the operator HTTP API bind address.
	APIListen string
	// StorePath is the network-profile store file; ":memory:" for tests.
	StorePath string
	// BusWorkers sizes the bus dispatch worker pool.
	BusWorkers int
	Timing     Timing
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("api.listen", "127.0.0.1:7490")
	v.SetDefault("store.path", "fulcrum-profiles.db")
	v.SetDefault("bus.workers", 4)
	v.SetDefault("bus.request-timeout", 10*time.Second)
	v.SetDefault("timing.heartbeat-tick", time.Second)
	v.SetDefault("timing.soft-timeout", 15*time.Second)
	v.SetDefault("timing.hard-timeout", 60*time.Second)
	v.SetDefault("timing.recycle-window", 5*time.Minute)
	v.SetDefault("timing.evacuation-deadline", 60*time.Second)
	v.SetDefault("timing.dedupe-window", 30*time.Second)
	v.SetDefault("timing.registration-retries", 5)
	v.SetDefault("timing.registration-retry-interval", 15*time.Second)
}

// Load resolves the configuration. configFile may be empty.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FULCRUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.NewInvalidArgumentError(fmt.Sprintf("reading config file %s", configFile), err)
		}
	}

	cfg := Config{
		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		APIListen:     v.GetString("api.listen"),
		StorePath:     v.GetString("store.path"),
		BusWorkers:    v.GetInt("bus.workers"),
		Timing: Timing{
			HeartbeatTick:             v.GetDuration("timing.heartbeat-tick"),
			SoftTimeout:               v.GetDuration("timing.soft-timeout"),
			HardTimeout:               v.GetDuration("timing.hard-timeout"),
			RecycleWindow:             v.GetDuration("timing.recycle-window"),
			EvacuationDeadline:        v.GetDuration("timing.evacuation-deadline"),
			DedupeWindow:              v.GetDuration("timing.dedupe-window"),
			RequestTimeout:            v.GetDuration("bus.request-timeout"),
			RegistrationRetries:       v.GetInt("timing.registration-retries"),
			RegistrationRetryInterval: v.GetDuration("timing.registration-retry-interval"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration (no file, no env).
func Default() Config {
	v := viper.New()
	setDefaults(v)
	return Config{
		RedisAddr:  v.GetString("redis.addr"),
		APIListen:  v.GetString("api.listen"),
		StorePath:  v.GetString("store.path"),
		BusWorkers: v.GetInt("bus.workers"),
		Timing: Timing{
			HeartbeatTick:             v.GetDuration("timing.heartbeat-tick"),
			SoftTimeout:               v.GetDuration("timing.soft-timeout"),
			HardTimeout:               v.GetDuration("timing.hard-timeout"),
			RecycleWindow:             v.GetDuration("timing.recycle-window"),
			EvacuationDeadline:        v.GetDuration("timing.evacuation-deadline"),
			DedupeWindow:              v.GetDuration("timing.dedupe-window"),
			RequestTimeout:            v.GetDuration("bus.request-timeout"),
			RegistrationRetries:       v.GetInt("timing.registration-retries"),
			RegistrationRetryInterval: v.GetDuration("timing.registration-retry-interval"),
		},
	}
}

// Validate rejects configurations the core cannot run with.
func (c Config) Validate() error {
	if c.RedisAddr == "" {
		return errors.NewInvalidArgumentError("redis.addr is required", nil)
	}
	if c.BusWorkers <= 0 {
		return errors.NewInvalidArgumentError("bus.workers must be positive", nil)
	}
	for name, d := range map[string]time.Duration{
		"timing.heartbeat-tick":      c.Timing.HeartbeatTick,
		"timing.soft-timeout":        c.Timing.SoftTimeout,
		"timing.hard-timeout":        c.Timing.HardTimeout,
		"timing.recycle-window":      c.Timing.RecycleWindow,
		"timing.evacuation-deadline": c.Timing.EvacuationDeadline,
		"timing.dedupe-window":       c.Timing.DedupeWindow,
		"bus.request-timeout":        c.Timing.RequestTimeout,
	} {
		if d <= 0 {
			return errors.NewInvalidArgumentError(fmt.Sprintf("%s must be positive", name), nil)
		}
	}
	if c.Timing.SoftTimeout >= c.Timing.HardTimeout {
		return errors.NewInvalidArgumentError("timing.soft-timeout must be below timing.hard-timeout", nil)
	}
	return nil
}
