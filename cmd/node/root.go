package node

import (
	"github.com/ValentinKolb/dTree/api/client"
	"github.com/ValentinKolb/dTree/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	apiClient *client.Client

	// NodeCommands represents the node command group
	NodeCommands = &cobra.Command{
		Use:               "node",
		Short:             "Perform node operations on a dTree server",
		PersistentPreRunE: setupClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add the connection flags to the node command
	util.SetupClientFlags(NodeCommands)

	// Add subcommands
	NodeCommands.AddCommand(getCmd)
	NodeCommands.AddCommand(setCmd)
	NodeCommands.AddCommand(updateCmd)
	NodeCommands.AddCommand(removeCmd)
	NodeCommands.AddCommand(infoCmd)
	NodeCommands.AddCommand(childrenCmd)

	getCmd.Flags().StringSlice("include", nil, util.WrapString("Only return these paths (relative to the node, '*' matches one segment)"))
	getCmd.Flags().StringSlice("exclude", nil, util.WrapString("Remove these paths (relative to the node) from the result"))
	getCmd.Flags().Bool("no-child-objects", false, util.WrapString("Only return the scalar children of the node"))
	getCmd.Flags().Bool("value", false, util.WrapString("Only print the value, not the metadata"))

	setCmd.Flags().String("revision", "", util.WrapString("Fail if the current revision of the node differs"))

	childrenCmd.Flags().StringSlice("key", nil, util.WrapString("Only list the children with these keys"))
	childrenCmd.Flags().Int("limit", -1, util.WrapString("Stop after this many children (negative for all)"))
}

// setupClient initializes the api client
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	apiClient, err = client.New(util.GetClientConfig())
	return err
}

func tid() string {
	return viper.GetString("tid")
}
