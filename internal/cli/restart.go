// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var errNotConfirmed = errors.New("restart deletes every challenge of the group, pass --yes to confirm")

type restartOptions struct {
	*RootOptions
	Group string
	Yes   bool
}

// NewRestartCommand creates the restart command.
func NewRestartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &restartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Reset a group to its first boss and delete its challenges",
		Long: `Reset a group to cycle 1, boss 1 and delete every challenge it recorded.
This cannot be undone. Stop the server first; it keeps groups in memory.

Examples:
  clanbattle restart --group 123456 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return errNotConfirmed
			}
			ctx := context.Background()
			engine, store, err := openEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := engine.Restart(ctx, opts.Group)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.Format, st.Message, st)
		},
	}

	cmd.Flags().StringVar(&opts.Group, "group", "", "group ID (required)")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the restart")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}
