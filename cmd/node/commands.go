package node

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ValentinKolb/dTree/lib/node"
	"github.com/spf13/cobra"
)

// rootArg maps the "/" argument to the root path
func rootArg(arg string) string {
	if arg == "/" {
		return ""
	}
	return arg
}

// parseValue reads a command line value as JSON. Anything that is not valid
// JSON is taken as a string.
func parseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	getCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Prints the node at path ('/' for the root)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			include, _ := cmd.Flags().GetStringSlice("include")
			exclude, _ := cmd.Flags().GetStringSlice("exclude")
			noChildObjects, _ := cmd.Flags().GetBool("no-child-objects")
			onlyValue, _ := cmd.Flags().GetBool("value")

			n, err := apiClient.GetNode(cmd.Context(), rootArg(args[0]), node.GetOptions{
				Include:        include,
				Exclude:        exclude,
				NoChildObjects: noChildObjects,
				Tid:            tid(),
			})
			if err != nil {
				return err
			}
			if onlyValue {
				return printJSON(n.Value)
			}
			return printJSON(n)
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [path] [value]",
		Short: "Sets the node at path to value (JSON, otherwise a string)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision, _ := cmd.Flags().GetString("revision")
			if err := apiClient.SetNode(cmd.Context(), rootArg(args[0]), parseValue(args[1]), node.SetOptions{
				AssertRevision: revision,
				Tid:            tid(),
			}); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [path] [object]",
		Short: "Merges a JSON object into the node at path, null removes a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, ok := parseValue(args[1]).(map[string]any)
			if !ok {
				return fmt.Errorf("updates must be a JSON object")
			}
			if err := apiClient.UpdateNode(cmd.Context(), rootArg(args[0]), updates, node.TxOptions{Tid: tid()}); err != nil {
				return err
			}
			fmt.Println("updated successfully")
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [path]",
		Short: "Removes the node at path and all its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.RemoveNode(cmd.Context(), rootArg(args[0]), node.TxOptions{Tid: tid()}); err != nil {
				return err
			}
			fmt.Println("removed successfully")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info [path]",
		Short: "Prints where and how the node at path is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := apiClient.GetNodeInfo(cmd.Context(), rootArg(args[0]), node.TxOptions{Tid: tid()})
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
	childrenCmd = &cobra.Command{
		Use:   "children [path]",
		Short: "Lists the children of the node at path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, _ := cmd.Flags().GetStringSlice("key")
			limit, _ := cmd.Flags().GetInt("limit")
			children, err := apiClient.GetChildren(cmd.Context(), rootArg(args[0]), node.ChildrenOptions{
				KeyFilter: keys,
				Tid:       tid(),
			}, limit)
			if err != nil {
				return err
			}
			for _, c := range children {
				where := "dedicated"
				if c.Inline {
					where = "inline"
				}
				fmt.Printf("%-20s %-10s %s\n", c.Key, where, c.Path)
			}
			return nil
		},
	}
)
