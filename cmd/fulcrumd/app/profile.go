// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haroldDOTsh/fulcrum/pkg/console"
	"github.com/haroldDOTsh/fulcrum/pkg/netconfig"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage network profiles",
	}
	cmd.AddCommand(profileListCmd())
	cmd.AddCommand(profileApplyCmd())
	return cmd
}

func profileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the network profile catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Profiles []netconfig.Summary `json:"profiles"`
			}
			if err := apiGet(cmd, "/api/v1/profiles", &resp); err != nil {
				return err
			}
			rows := make([]console.SummaryRow, 0, len(resp.Profiles))
			for _, s := range resp.Profiles {
				rows = append(rows, console.ProfileRow(s.ProfileID, s.Tag, s.UpdatedAt, s.Active))
			}
			return console.RenderProfiles(os.Stdout, rows)
		},
	}
}

func profileApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <profile-id>",
		Short: "Validate and activate a network profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiPost(cmd, "/api/v1/profiles/"+args[0]+"/apply", ""); err != nil {
				return err
			}
			fmt.Printf("Profile %s is now active\n", args[0])
			return nil
		},
	}
}
