package cmd

import (
	"net/http"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"slicelab/pkg/config"
)

// errFailed is returned by commands whose scenario ran but did not pass. The
// report already says why, so nothing more is printed.
var errFailed = errors.New("scenario failed")

var (
	v   = config.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "slicelab",
	Short:         "slicelab network policy and slicing lab",
	Long:          "Build small emulated networks, drive host packet filters through scripted scenarios and check every probe against the expected delivery.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if err := config.ReadFile(v, path); err != nil {
				return err
			}
		}
		c, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = c
		log.SetHandler(cli.New(cmd.ErrOrStderr()))
		log.SetLevelFromString(cfg.LogLevel)
		return nil
	},
}

// Execute runs the command line and returns the process exit code: 0 when
// the command succeeded and its scenario passed, 1 otherwise.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			log.WithError(err).Error("slicelab")
		}
		return 1
	}
	return 0
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a yaml config file")
	flags.String("backend", config.BackendSim, "Emulator backend: sim or docker")
	flags.String("image", "sec_test", "Docker image for hosts")
	flags.String("controller", "", "OpenFlow controller for router bridges, e.g. tcp:127.0.0.1:6633")
	flags.Duration("probe-timeout", 0, "Timeout of a single probe")
	flags.Int("tolerance", 1, "Samples a probe may be off by and still pass")
	flags.String("log-level", "info", "Log level")

	for key, flag := range map[string]string{
		config.KeyBackend:          "backend",
		config.KeyImage:            "image",
		config.KeyController:       "controller",
		config.KeyProbeTimeout:     "probe-timeout",
		config.KeyToleranceSamples: "tolerance",
		config.KeyLogLevel:         "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// serveMetrics exposes reg on addr until the returned func is called. An
// empty addr serves nothing.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics endpoint")
		}
	}()
	log.Infof("metrics on http://%s/metrics", addr)
	return func() { _ = srv.Close() }
}
