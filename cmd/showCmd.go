package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"slicelab/pkg"
)

var showCmd = &cobra.Command{
	Use:       "show nodes|links [scenario]",
	Short:     "Show Resources",
	Long:      `Show the nodes or links of a scenario's topology as built, with addresses, interfaces and capacities.`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"nodes", "links"},
	RunE: func(cmd *cobra.Command, args []string) error {
		script, _ := cmd.Flags().GetString("script")
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		if name == "" && script == "" {
			return errors.New("name a built-in scenario or pass --script")
		}
		sc, err := pkg.FindScenario(name, script)
		if err != nil {
			return err
		}

		switch args[0] {
		case "nodes":
			pkg.ShowNodes(cmd.OutOrStdout(), sc.Topology)
		case "links":
			pkg.ShowLinks(cmd.OutOrStdout(), sc.Topology)
		default:
			return errors.Errorf("invalid class %q, want nodes or links", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringP("script", "s", "", "Path to a yaml scenario file")
}
