// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the fulcrumd registry daemon and
// operator CLI.
package main

import (
	"os"

	"github.com/haroldDOTsh/fulcrum/cmd/fulcrumd/app"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
