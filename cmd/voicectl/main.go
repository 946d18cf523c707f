// Package main provides voicectl, the operator CLI for the voice agent.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/axmen-recycling/voice-agent/cmd/voicectl/ui"
	"github.com/axmen-recycling/voice-agent/internal/app"
	"github.com/axmen-recycling/voice-agent/internal/config"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "voicectl",
	Short: "Operator CLI for the Axmen Recycling voice agent",
	Long: `voicectl manages the voice agent's answer data and lets staff test it
without placing a call.

Use this tool to:
- Apply database migrations
- Ask the resolution cascade a question and see which stage answered
- Look up a caller by phone number
- Seed pricing, knowledge and catalog rows from YAML
- Import the weekly price sheet from Excel
- Watch resolutions and callback requests live
- Serve the lookups as MCP tools over stdio

Commands that print results support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ui.InitUI(noColor, verbose)

		level := "warn"
		if verbose {
			level = "debug"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      "console",
			Output:      os.Stderr,
			ServiceName: "voicectl",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newCallerCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newMCPCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}

// openApp wires services against the configured store. Migrations are not
// applied; run "voicectl migrate" first.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger, false)
	if err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}
	return a, nil
}

func newMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			store, err := storage.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN(), storage.PoolConfig{})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			if statusOnly {
				status, err := store.CheckMigrations(ctx)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(status)
				}
				ui.KeyValue("Applied", fmt.Sprintf("%d/%d", len(status.Applied), status.Total))
				for _, name := range status.Pending {
					ui.Warning("pending: %s", name)
				}
				if status.UpToDate {
					ui.Success("Schema is up to date")
				}
				return nil
			}

			spin := ui.NewSpinner(fmt.Sprintf("Migrating %s database...", cfg.Database.Driver))
			if !outputJSON {
				spin.Start()
			}
			applied, err := store.Migrate(ctx)
			spin.Stop()
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			if outputJSON {
				return ui.JSON(map[string]interface{}{"applied": applied})
			}
			if len(applied) == 0 {
				ui.Success("Schema is up to date")
				return nil
			}
			for _, name := range applied {
				ui.Success("Applied %s", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "report pending migrations without applying them")
	return cmd
}
