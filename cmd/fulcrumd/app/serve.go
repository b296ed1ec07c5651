// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	apiv1 "github.com/haroldDOTsh/fulcrum/pkg/api/v1"
	"github.com/haroldDOTsh/fulcrum/pkg/bus"
	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/config"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
	"github.com/haroldDOTsh/fulcrum/pkg/netconfig"
	"github.com/haroldDOTsh/fulcrum/pkg/supervisor"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to the message bus at %s: %w", cfg.RedisAddr, err)
	}

	b := bus.NewRedis(client, bus.WithWorkers(cfg.BusWorkers))
	defer func() { _ = b.Close() }()

	store, err := netconfig.OpenStore(cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sup := supervisor.New(cfg, b, clock.System(), store)
	if err := sup.Start(ctx); err != nil {
		return err
	}
	defer sup.Stop()

	api := &http.Server{
		Addr: cfg.APIListen,
		Handler: apiv1.Router(apiv1.Deps{
			Proxies:     sup.Proxies,
			Backends:    sup.Backends,
			Profiles:    sup.NetConfig,
			Evacuations: sup.Evacuations,
			Metrics:     sup.Metrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infow("operator API listening", "addr", cfg.APIListen)
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("operator API: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return api.Shutdown(shutdownCtx)
}
