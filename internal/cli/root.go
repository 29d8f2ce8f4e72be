// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AccelByte/extend-clan-battle/internal/bootstrap"
	"github.com/AccelByte/extend-clan-battle/internal/config"
	"github.com/AccelByte/extend-clan-battle/pkg/battle"
	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
)

// RootOptions holds global flags and the loaded configuration.
type RootOptions struct {
	Format string // "json" | "text"

	// LoadConfig defaults to config.Load.
	LoadConfig func() (*config.Config, error)
	cfg        *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the clanbattle command tree. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	serve := NewServeCommand(opts)

	cmd := &cobra.Command{
		Use:           "clanbattle",
		Short:         "Clan boss battle service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			level, _ := logrus.ParseLevel(cfg.LogLevel)
			logrus.SetLevel(level)
			opts.cfg = cfg
			return nil
		},
		RunE: serve.RunE,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewRestartCommand(opts))
	cmd.AddCommand(NewCreateGroupCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openEngine opens the ledger and loads every group. The caller closes the store.
// Offline commands write the ledger directly, so a running server does not see
// their changes until it restarts.
func openEngine(ctx context.Context, cfg *config.Config) (*battle.Engine, ledger.Store, error) {
	store, err := bootstrap.InitStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	engine, err := bootstrap.InitEngine(ctx, store, cfg.BossTablePath, battle.Config{})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return engine, store, nil
}

// writeOutput prints v as JSON, or text as is.
func writeOutput(w io.Writer, format string, text string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
