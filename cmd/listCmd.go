package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"slicelab/pkg/scenario"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in scenarios",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range scenario.Names() {
			sc, err := scenario.Builtin(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %2d steps  %s\n", name, len(sc.Script.Steps), sc.Script.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
