// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the fulcrumd command tree.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haroldDOTsh/fulcrum/pkg/logger"
)

// NewRootCmd creates the root command for the fulcrumd CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "fulcrumd",
		DisableAutoGenTag: true,
		Short:             "fulcrumd is the registry control plane for the fulcrum fleet",
		Long: `fulcrumd maintains the authoritative inventory of backend servers and proxy
gateways: registration, liveness, evacuation, and the active network profile.
Nodes talk to it over the Redis message bus; operators use the console
commands, which read the daemon's HTTP API.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("api", "", "Operator API address (overrides config)")

	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(proxyRegistryCmd())
	rootCmd.AddCommand(serverRegistryCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(evacuateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}
