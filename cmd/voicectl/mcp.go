package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/axmen-recycling/voice-agent/internal/mcp"
)

const mcpServerVersion = "1.0.0"

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the voice agent's lookups as MCP tools over stdio",
		Long: `Runs an MCP (Model Context Protocol) server on stdin/stdout exposing
lookup_material_price, get_caller_info and save_callback, so an LLM agent
can answer yard questions with the same data the phone line uses.

Logs go to stderr.`,
		Example: `  # claude_desktop_config.json
  # {
  #   "mcpServers": {
  #     "axmen": {"command": "voicectl", "args": ["mcp", "-c", "/etc/voice-agent.yaml"]}
  #   }
  # }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			server := mcp.NewServer("axmen-voice-agent", mcpServerVersion, a.Cascade, a.Callers, logger)
			logger.Info().Msg("MCP server listening on stdio")

			errCh := make(chan error, 1)
			go func() {
				errCh <- mcpserver.ServeStdio(server)
			}()

			select {
			case <-ctx.Done():
				logger.Info().Msg("MCP server shutting down")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}
