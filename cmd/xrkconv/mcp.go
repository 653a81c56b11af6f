package main

import (
	"fmt"

	"github.com/aretw0/xrkconv/internal/cli"
	"github.com/aretw0/xrkconv/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the conversion service to AI agents as MCP tools:

  convert  converts a file on this machine and writes the result into out_dir
  sweep    removes stale workspaces

Supported transports:
- stdio (default): JSON-RPC on Stdin/Stdout; logs stay on Stderr.
- sse: Server-Sent Events over HTTP on --listen.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("listen", ":8080", "Address to listen on (only for SSE)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	listen, _ := cmd.Flags().GetString("listen")
	if transport != "stdio" && transport != "sse" {
		return fmt.Errorf("unknown transport %q: supported are stdio and sse", transport)
	}

	interrupts := cli.WatchInterrupts(cmd.Context(), nil)
	defer interrupts.Stop()

	app, err := setup(interrupts, cmd, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := mcp.NewServer(app.Service, Version, mcp.WithLogger(app.Logger))

	if transport == "stdio" {
		app.Logger.Info("starting MCP server (stdio)")
		return srv.ServeStdio()
	}
	app.Logger.Info("starting MCP server (SSE)", "addr", listen)
	if err := srv.ServeSSE(interrupts, listen); err != nil {
		return err
	}
	app.Logger.Info("MCP server stopped")
	return nil
}
