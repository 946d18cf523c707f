package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/axmen-recycling/voice-agent/cmd/voicectl/ui"
	"github.com/axmen-recycling/voice-agent/pkg/client"
)

func newResolveCmd() *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "resolve <question>",
		Short: "Ask the resolution cascade a question",
		Long: `Resolve runs a caller's question through the same cascade the voice
endpoints use and prints the spoken answer with the stage that produced it.

With --remote the question is sent to a running API server instead.`,
		Example: `  voicectl resolve "how much for copper wire"
  voicectl resolve --remote http://localhost:4000 "are you open saturday"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			query := strings.Join(args, " ")

			if remote != "" {
				c, err := client.NewClient(client.ClientConfig{BaseURL: remote})
				if err != nil {
					return err
				}
				answer, err := c.Resolve(ctx, query)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(map[string]string{"query": query, "answer": answer})
				}
				fmt.Println(answer)
				return nil
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Cascade.Resolve(ctx, query)
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}

			if outputJSON {
				return ui.JSON(res)
			}

			fmt.Println(res.Answer)
			ui.Section("Resolution")
			ui.KeyValue("Stage", ui.Stage(string(res.Stage)))
			if res.Source != "" {
				ui.KeyValue("Source", res.Source)
			}
			if res.Fact != nil {
				ui.KeyValue("Fact", res.Fact.ID)
			}
			if len(res.Keywords) > 0 {
				ui.KeyValue("Keywords", strings.Join(res.Keywords, ", "))
			}
			if res.Normalized != "" {
				ui.KeyValue("Normalized", res.Normalized)
			}
			ui.KeyValue("Cached", fmt.Sprintf("%t", res.Cached))
			ui.KeyValue("Latency", res.Latency.String())
			if res.Degraded {
				ui.Warning("One or more stages failed; the answer may be incomplete")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running API server")
	return cmd
}

func newCallerCmd() *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "caller <phone>",
		Short: "Look up a caller by phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var (
				returning bool
				name      *string
				message   string
			)

			if remote != "" {
				c, err := client.NewClient(client.ClientConfig{BaseURL: remote})
				if err != nil {
					return err
				}
				info, err := c.CallerInfo(ctx, args[0])
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(info)
				}
				returning, name, message = info.IsReturning, info.CallerName, info.Message
			} else {
				a, err := openApp(ctx)
				if err != nil {
					return err
				}
				defer a.Close()

				info, err := a.Callers.Lookup(ctx, args[0])
				if err != nil {
					return fmt.Errorf("lookup: %w", err)
				}
				if outputJSON {
					return ui.JSON(info)
				}
				returning, name, message = info.IsReturning, info.CallerName, info.Message
			}

			if returning && name != nil {
				ui.Success("%s (returning caller)", *name)
			} else {
				ui.Info("%s", message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running API server")
	return cmd
}
