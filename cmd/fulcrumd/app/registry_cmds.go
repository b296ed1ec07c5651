// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haroldDOTsh/fulcrum/pkg/config"
	"github.com/haroldDOTsh/fulcrum/pkg/console"
	"github.com/haroldDOTsh/fulcrum/pkg/registry"
)

// apiBaseURL resolves the daemon's operator API address: the --api flag
// when set, otherwise the configured listen address.
func apiBaseURL(cmd *cobra.Command) (string, error) {
	if addr, _ := cmd.Flags().GetString("api"); addr != "" {
		return "http://" + addr, nil
	}
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return "", err
	}
	return "http://" + cfg.APIListen, nil
}

func apiGet(cmd *cobra.Command, path string, out any) error {
	base, err := apiBaseURL(cmd)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(base + path)
	if err != nil {
		return fmt.Errorf("reaching the registry daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiPost(cmd *cobra.Command, path string, body string) error {
	base, err := apiBaseURL(cmd)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(base+path, "application/json", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("reaching the registry daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s", apiErr.Error)
	}
	return fmt.Errorf("registry daemon returned %s", resp.Status)
}

func parsePageArg(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	page, err := strconv.Atoi(args[0])
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page %q", args[0])
	}
	return page, nil
}

func proxyRegistryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proxyregistry [page]",
		Short: "List registered proxies with live status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := parsePageArg(args)
			if err != nil {
				return err
			}
			var resp struct {
				Proxies []registry.ProxyEntry `json:"proxies"`
			}
			if err := apiGet(cmd, "/api/v1/proxies", &resp); err != nil {
				return err
			}
			return console.RenderProxies(os.Stdout, resp.Proxies, page, time.Now())
		},
	}
}

func serverRegistryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serverregistry [page]",
		Short: "List registered backends with live status and stats",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := parsePageArg(args)
			if err != nil {
				return err
			}
			var resp struct {
				Backends []registry.BackendEntry `json:"backends"`
			}
			if err := apiGet(cmd, "/api/v1/backends", &resp); err != nil {
				return err
			}
			return console.RenderBackends(os.Stdout, resp.Backends, page, time.Now())
		},
	}
}

func evacuateCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "evacuate <backend-id>",
		Short: "Drain players off a backend and retire it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"reason": reason})
			if err := apiPost(cmd, "/api/v1/backends/"+args[0]+"/evacuate", string(body)); err != nil {
				return err
			}
			fmt.Printf("Evacuation of %s requested\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the evacuation")
	return cmd
}
