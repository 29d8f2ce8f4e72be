// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type statusOptions struct {
	*RootOptions
	Group string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &statusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the boss status of a group",
		Long: `Print the boss status of a group read from the ledger.

Examples:
  clanbattle status --group 123456
  clanbattle status --group 123456 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			engine, store, err := openEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := engine.Status(opts.Group)
			if err != nil {
				return err
			}
			summary, err := engine.Summary(ctx, opts.Group)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.Format, summary, st)
		},
	}

	cmd.Flags().StringVar(&opts.Group, "group", "", "group ID (required)")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}
