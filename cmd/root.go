package cmd

import (
	"fmt"
	"github.com/miguelmartens/sidekv/cmd/serve"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sidekv",
		Short: "sidecar-backed state service",
		Long: fmt.Sprintf(`sidekv (v%s)

A key-value state service that routes operations through a local sidecar
agent when one is reachable and transparently falls back to an in-memory
backend when it is not.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sidekv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sidekv v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
