package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yanzu-lab/yvp/internal/app/ledger"
)

func init() {
	balanceCmd.Flags().StringVar(&lookback, "days", "all", "Lookback in days, or \"all\"")
	leaderboardCmd.Flags().StringVar(&lookback, "days", "all", "Lookback in days, or \"all\"")
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "First day of the period (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "Last day of the period (YYYY-MM-DD)")
	reportCmd.Flags().BoolVar(&reportCSV, "csv", false, "Write CSV instead of a table")
	_ = reportCmd.MarkFlagRequired("from")
	_ = reportCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(balanceCmd, dashboardCmd, leaderboardCmd, reportCmd)
}

var (
	lookback   string
	reportFrom string
	reportTo   string
	reportCSV  bool
)

var balanceCmd = &cobra.Command{
	Use:   "balance [USERNAME]",
	Short: "Show net YVP for a user (default: yourself)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := parseDays(lookback)
		if err != nil {
			return err
		}

		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		user := actor.Username
		if len(args) == 1 {
			user = args[0]
		}
		b, err := d.Ledger.NetYVP(actor, user, days)
		if err != nil {
			return err
		}

		label := "all time"
		if days != nil {
			label = fmt.Sprintf("last %dd", *days)
		}
		fmt.Println(user)
		printBalance(os.Stdout, label, b)
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard [USERNAME]",
	Short: "Show all-time, 7-day and 30-day balances",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		user := actor.Username
		if len(args) == 1 {
			user = args[0]
		}
		dash, err := d.Ledger.Dashboard(actor, user)
		if err != nil {
			return err
		}

		fmt.Println(dash.Username)
		printBalance(os.Stdout, "all time", dash.AllTime)
		printBalance(os.Stdout, "last 7d", dash.Last7)
		printBalance(os.Stdout, "last 30d", dash.Last30)
		return nil
	},
}

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard",
	Aliases: []string{"rank"},
	Short:   "Rank team members by net YVP",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := parseDays(lookback)
		if err != nil {
			return err
		}

		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		entries, err := d.Ledger.Leaderboard(actor, days)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No team members yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tUSER\tNET YVP\tPENALTIES")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", e.Rank, e.Username, e.Net.StringFixed(2), e.Penalties)
		}
		return w.Flush()
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Per-member statistics for a closed period (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		from, err := parseDate(reportFrom, d.Location)
		if err != nil {
			return err
		}
		to, err := parseDate(reportTo, d.Location)
		if err != nil {
			return err
		}
		report, err := d.Ledger.PeriodStats(actor, from, to)
		if err != nil {
			return err
		}

		if reportCSV {
			return ledger.WriteCSV(os.Stdout, report)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tGROSS\tFINE\tREWARD\tNET YVP")
		for _, row := range report.Rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				row.Username,
				row.GrossOutput.StringFixed(2),
				row.Fine.StringFixed(2),
				row.Reward.StringFixed(2),
				row.NetYVP.StringFixed(2),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for _, warn := range report.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s %s: %s\n", warn.Kind, warn.RecordID, warn.Detail)
		}
		return nil
	},
}
