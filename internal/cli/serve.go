// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AccelByte/extend-clan-battle/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC, HTTP and metrics servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			application, err := app.New(ctx, opts.cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run(ctx)
		},
	}
}
