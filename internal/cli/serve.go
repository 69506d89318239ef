package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yanzu-lab/yvp/internal/daemon"
)

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.host, "host", "", "Host to listen on (overrides config)")
	f.IntVar(&serveOpts.port, "port", 0, "Port to listen on (overrides config)")
	f.StringVar(&serveOpts.policy, "policy", "", "Ledger rules: v8-cumulative or v7-alltime (overrides config)")
	f.StringVar(&serveOpts.timezone, "timezone", "", "IANA zone for day boundaries (overrides config)")
	f.BoolVar(&serveOpts.noMetrics, "no-metrics", false, "Disable the /metrics endpoint")
	rootCmd.AddCommand(serveCmd)
}

// serveOptions are the config overrides serve accepts on the command line.
type serveOptions struct {
	host      string
	port      int
	policy    string
	timezone  string
	noMetrics bool
}

var serveOpts serveOptions

// apply overlays the set flags on cfg and validates the ledger section.
func (o serveOptions) apply(cfg *daemon.Config) error {
	if o.host != "" {
		cfg.API.Host = o.host
	}
	if o.port > 0 {
		cfg.API.Port = o.port
	}
	if o.policy != "" {
		cfg.Ledger.Policy = o.policy
	}
	if o.timezone != "" {
		cfg.Ledger.Timezone = o.timezone
	}
	if o.noMetrics {
		cfg.Telemetry.Prometheus = false
	}

	if _, err := cfg.Ledger.ResolvePolicy(); err != nil {
		return err
	}
	_, err := cfg.Ledger.Location()
	return err
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the YVP API server",
	Long: `Start the task board and ledger API at localhost:8787.

Flags override config.toml for this run only.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	if err := serveOpts.apply(&cfg); err != nil {
		return err
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(context.Background())
}
