// syncdemo exercises the sync engine from the command line: a scripted
// offline/online walkthrough against the in-memory store, and a connect
// mode that drives a real WebSocket sync backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/curalink/syncengine/logging"
)

var (
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "syncdemo",
	Short: "Drive the sync engine from the command line",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.GetConfigFromEnv()
		if flagLogLevel != "" {
			cfg.Level = flagLogLevel
		}
		if flagLogFormat != "" {
			cfg.Format = flagLogFormat
		}
		logging.Init(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (text, json)")
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(connectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
