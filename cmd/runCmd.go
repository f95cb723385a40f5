package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"slicelab/pkg"
)

var runCmd = &cobra.Command{
	Use:   "run [scenario]",
	Short: "Run a scenario",
	Long: `Run a built-in scenario, or the one in --script, and print a PASS/FAIL line per step. Exits 1 unless every step passed.

The firewall built-in ends by reaching 8.8.8.8 from h2. That step only passes
where hosts have a route out, which the sim backend provides; docker hosts run
without an external network, so on --backend docker the last step fails.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, _ := cmd.Flags().GetString("script")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" && script == "" {
			return errors.New("name a built-in scenario (see list) or pass --script")
		}

		sc, err := pkg.FindScenario(name, script)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		lab, err := pkg.NewLab(cfg, reg)
		if err != nil {
			return err
		}
		defer lab.Close()
		stopMetrics := serveMetrics(metricsAddr, reg)
		defer stopMetrics()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rep, err := lab.Run(ctx, sc)
		if rep != nil {
			rep.Print(cmd.OutOrStdout())
		}
		if err != nil {
			return err
		}
		if !rep.Passed() {
			return errFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("script", "s", "", "Path to a yaml scenario file")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
}
