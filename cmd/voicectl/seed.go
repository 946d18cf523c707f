package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/axmen-recycling/voice-agent/cmd/voicectl/ui"
	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/importer"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load pricing, knowledge and catalog rows from a YAML file",
		Long: `Seed inserts the pricing and knowledge entries in the file and upserts
its materials by name. The answer cache is cleared afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open fixtures: %w", err)
			}
			defer f.Close()

			fixtures, err := importer.LoadFixtures(f)
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var onRow func()
			var bar *ui.ProgressBar
			if !outputJSON {
				bar = ui.NewProgressBar(int64(fixtures.Total()), "Seeding")
				onRow = bar.Add
			}

			summary, err := importer.Apply(ctx, a.Store, fixtures, onRow)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			invalidate(ctx, a.Answers)

			if outputJSON {
				return ui.JSON(summary)
			}
			ui.Success("Seeded %d pricing and %d knowledge entries", summary.Pricing, summary.Knowledge)
			ui.Success("Materials: %d created, %d updated", summary.MaterialsCreated, summary.MaterialsUpdated)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var (
		sheet  string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import a price sheet into the material catalog",
		Long: `Import reads an Excel workbook whose first row is a header with the
columns Material, Price, Unit, Category and Description (Priority is
optional) and upserts each row into the catalog by material name.

Prices may be written as 1.25, $1.25 or 1,250.00. An empty price means
the material is quoted on request.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open workbook: %w", err)
			}
			defer f.Close()

			parsed, err := importer.ReadPriceSheet(f, sheet)
			if err != nil {
				return err
			}

			if !outputJSON {
				for _, skipped := range parsed.Skipped {
					ui.Warning("row %d skipped: %s", skipped.Row, skipped.Err)
				}
			}

			if dryRun {
				if outputJSON {
					return ui.JSON(parsed)
				}
				rows := make([][]string, 0, len(parsed.Materials))
				for _, m := range parsed.Materials {
					price := "on request"
					if m.CurrentPrice != nil {
						price = fmt.Sprintf("$%.2f", *m.CurrentPrice)
					}
					rows = append(rows, []string{m.MaterialName, price, m.PriceUnit, m.Category})
				}
				ui.Table([]string{"MATERIAL", "PRICE", "UNIT", "CATEGORY"}, rows)
				return nil
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var onRow func()
			var bar *ui.ProgressBar
			if !outputJSON {
				bar = ui.NewProgressBar(int64(len(parsed.Materials)), "Importing "+parsed.Sheet)
				onRow = bar.Add
			}

			summary, err := importer.ImportMaterials(ctx, a.Store, parsed.Materials, onRow)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			invalidate(ctx, a.Answers)

			if outputJSON {
				return ui.JSON(map[string]interface{}{
					"summary": summary,
					"skipped": parsed.Skipped,
				})
			}
			ui.Success("Materials: %d created, %d updated, %d skipped",
				summary.MaterialsCreated, summary.MaterialsUpdated, len(parsed.Skipped))
			return nil
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default: first sheet)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and print the sheet without writing")
	return cmd
}

// invalidate clears cached answers so a running server sees the new rows.
// Only a shared redis cache is affected; the CLI's own memory cache dies with it.
func invalidate(ctx context.Context, answers cache.Client) {
	if err := retrieval.InvalidateAnswers(ctx, answers); err != nil {
		ui.Warning("Failed to clear cached answers: %v", err)
	}
}
