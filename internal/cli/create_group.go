// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type createGroupOptions struct {
	*RootOptions
	Group  string
	Server string
	Name   string
}

// NewCreateGroupCommand creates the create-group command.
func NewCreateGroupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &createGroupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create-group",
		Short: "Initialize a group at cycle 1, boss 1",
		Long: `Initialize a group for a game server region (jp, tw, kr or cn).

Examples:
  clanbattle create-group --group 123456 --server cn --name "Lunar Clan"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			engine, store, err := openEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			g, err := engine.CreateGroup(ctx, opts.Group, opts.Server, opts.Name)
			if err != nil {
				return err
			}
			text := fmt.Sprintf("created group %s on %s, boss health %d", g.ID, g.GameServer, g.Health)
			return writeOutput(cmd.OutOrStdout(), opts.Format, text, g)
		},
	}

	cmd.Flags().StringVar(&opts.Group, "group", "", "group ID (required)")
	cmd.Flags().StringVar(&opts.Server, "server", "cn", "game server region")
	cmd.Flags().StringVar(&opts.Name, "name", "", "group display name")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}
