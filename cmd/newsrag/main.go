// Package main is the newsrag command line: the HTTP/WebSocket server, the
// MCP stdio server and one-shot question answering.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
)

var rootCmd = &cobra.Command{
	Use:   "newsrag",
	Short: "Date-aware Korean news question answering",
	Long: `newsrag answers news questions from an internal knowledge base, optionally
enriched by external web search. Queries are routed by date expressions and
clarity, and every answer carries cited sources and an execution trace.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return logger.Init(cfg.Log.Level, cfg.Log.Format)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (YAML); env overrides use the "+config.EnvPrefix+"_ prefix")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetEnvPrefix(config.EnvPrefix)
	_ = viper.BindEnv("config", config.EnvPrefix+"_CONFIG")
}

var loaded *config.Config

// loadConfig reads the config once per process.
func loadConfig() (*config.Config, error) {
	if loaded != nil {
		return loaded, nil
	}
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	loaded = cfg
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
