package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dTree/cmd/node"
	"github.com/ValentinKolb/dTree/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtree",
		Short: "JSON document tree on key-value backends",
		Long: fmt.Sprintf(`dTree (v%s)

A JSON document tree stored on flat key-value backends (in-memory, bbolt or
RAFT replicated). Small values are kept inline in their parent record, large
values and containers get records of their own.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTree",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dTree v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(node.NodeCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
