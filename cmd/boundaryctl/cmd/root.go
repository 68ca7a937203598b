// Package cmd provides the CLI commands for boundaryctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vectorbound/boundaryplane/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "boundaryctl",
	Short: "boundaryctl - inline policy enforcement data plane",
	Long: `boundaryctl runs and administers the enforcement data plane: an
HTTP surface that compares an AI agent's intent embedding against rule
anchor vectors across the action, resource, data, and risk slots, and
decides allow/block/modify before the call reaches its destination.

Quick start:
  1. Create a config file: boundaryplane.yaml
  2. Run: boundaryctl serve

Configuration:
  Config is loaded from boundaryplane.yaml in the current directory,
  $HOME/.boundaryplane/, or /etc/boundaryplane/.

  Environment variables can override config values with the BOUNDARYPLANE_
  prefix. Example: BOUNDARYPLANE_SERVER_HTTP_ADDR=:9090

Commands:
  serve     Start the enforcement HTTP server
  reload    Trigger an out-of-band anchor repository refresh
  deploy    Deploy a rule bundle into a family under a rollout strategy
  version   Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./boundaryplane.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
