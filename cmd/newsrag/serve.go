package main

import (
	"github.com/spf13/cobra"

	"github.com/higress-group/newsrag"
	"github.com/higress-group/newsrag/common/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Address = addr
		}
		ctx, stop := signalContext()
		defer stop()

		c, err := newsrag.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warnf("newsrag: close client failed, err: %v", err)
			}
		}()
		return newsrag.ListenAndServe(ctx, c)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		c, err := newsrag.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		return newsrag.ServeStdio(c)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, overrides server.address")
	rootCmd.AddCommand(serveCmd, mcpCmd)
}
