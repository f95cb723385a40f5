package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"slicelab/pkg"
)

var applyCmd = &cobra.Command{
	Use:   "apply [scenario]",
	Short: "Apply Topology",
	Long:  `Bring a scenario's topology up on the configured backend without running its steps, and hold it until interrupted.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, _ := cmd.Flags().GetString("from")
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" && script == "" {
			return errors.New("name a built-in scenario or pass --from")
		}
		sc, err := pkg.FindScenario(name, script)
		if err != nil {
			return err
		}
		lab, err := pkg.NewLab(cfg, nil)
		if err != nil {
			return err
		}
		defer lab.Close()

		topo := sc.Topology.Clone()
		backend := lab.Backend()
		if err = backend.Start(cmd.Context(), topo); err != nil {
			return err
		}
		pkg.ShowNodes(cmd.OutOrStdout(), topo)
		pkg.ShowLinks(cmd.OutOrStdout(), topo)

		// wait, before shutting down, clear up the resources
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Info("topology up, interrupt to tear down")
		<-ctx.Done()
		return backend.Stop(context.WithoutCancel(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringP("from", "f", "", "Path to a yaml scenario file")
}
