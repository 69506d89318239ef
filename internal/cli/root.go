// Package cli implements the YVP command-line interface using Cobra.
// Every command opens the local store directly; only serve starts the API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanzu-lab/yvp/internal/daemon"
	"github.com/yanzu-lab/yvp/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "yvp",
	Short: "YVP: gamified task board and compensation ledger",
	Long: `YVP tracks team tasks from the public pool through review and turns
accepted work into Yield Value Points, net of fines and plus rewards.

Commands act as the user named by --as (or $YVP_USER).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var asUser string

func init() {
	rootCmd.PersistentFlags().StringVar(&asUser, "as", os.Getenv("YVP_USER"), "Username to act as")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openDaemon loads the config and opens the store with console logging
// silenced so command output stays clean.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logging.Quiet = true
	return daemon.NewWithConfig(cfg)
}

// session opens the daemon and resolves the acting user.
func session() (*daemon.Daemon, domain.Actor, error) {
	d, err := openDaemon()
	if err != nil {
		return nil, domain.Actor{}, err
	}
	if asUser == "" {
		d.Close()
		return nil, domain.Actor{}, fmt.Errorf("no acting user: pass --as or set YVP_USER")
	}
	actor, err := d.Roster.Resolve(asUser)
	if err != nil {
		d.Close()
		return nil, domain.Actor{}, fmt.Errorf("unknown user %q: %w", asUser, err)
	}
	return d, actor, nil
}
