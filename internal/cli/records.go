package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanzu-lab/yvp/internal/daemon"
	"github.com/yanzu-lab/yvp/internal/domain"
)

func init() {
	penaltyAddCmd.Flags().StringVar(&recordDate, "date", "", "When the infraction happened (YYYY-MM-DD, default now)")
	penaltyAddCmd.Flags().StringVarP(&recordReason, "reason", "m", "", "Reason")
	penaltyEditCmd.Flags().StringVar(&recordDate, "date", "", "New occurrence date (YYYY-MM-DD)")
	penaltyEditCmd.Flags().StringVarP(&recordReason, "reason", "m", "", "New reason")
	penaltyListCmd.Flags().StringVar(&recordUser, "user", "", "Only this user")
	penaltyCmd.AddCommand(penaltyAddCmd, penaltyListCmd, penaltyEditCmd, penaltyRmCmd)

	rewardAddCmd.Flags().StringVar(&recordDate, "date", "", "Grant date (YYYY-MM-DD, default now)")
	rewardAddCmd.Flags().StringVarP(&recordReason, "reason", "m", "", "Reason")
	rewardListCmd.Flags().StringVar(&recordUser, "user", "", "Only this user")
	rewardCmd.AddCommand(rewardAddCmd, rewardListCmd, rewardRmCmd)

	rootCmd.AddCommand(penaltyCmd, rewardCmd)
}

var (
	recordDate   string
	recordReason string
	recordUser   string
)

// ─── Penalties ──────────────────────────────────────────────────────────────

var penaltyCmd = &cobra.Command{
	Use:   "penalty",
	Short: "Record infractions that fine recent output",
}

var penaltyAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Record an infraction (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		at, err := parseDate(recordDate, d.Location)
		if err != nil {
			return err
		}
		if at.IsZero() {
			at = time.Now()
		}
		p, err := d.Ledger.RecordPenalty(actor, args[0], at, recordReason)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded penalty %s for %s on %s\n", shortID(p.ID), p.Username, p.OccurredAt.In(d.Location).Format(dateLayout))
		return nil
	},
}

var penaltyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List infractions",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		ps, err := d.Ledger.Penalties(recordUser)
		if err != nil {
			return err
		}
		if len(ps) == 0 {
			fmt.Println("No penalties.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tOCCURRED\tREASON")
		for _, p := range ps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortID(p.ID), p.Username, p.OccurredAt.In(d.Location).Format(dateLayout), p.Reason)
		}
		return w.Flush()
	},
}

var penaltyEditCmd = &cobra.Command{
	Use:   "edit PENALTY",
	Short: "Change an infraction's date or reason (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		p, err := findPenalty(d, args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("date") {
			at, err := parseDate(recordDate, d.Location)
			if err != nil {
				return err
			}
			p.OccurredAt = at
		}
		if cmd.Flags().Changed("reason") {
			p.Reason = recordReason
		}
		if err := d.Ledger.UpdatePenalty(actor, p); err != nil {
			return err
		}
		fmt.Printf("Updated penalty %s\n", shortID(p.ID))
		return nil
	},
}

var penaltyRmCmd = &cobra.Command{
	Use:   "rm PENALTY",
	Short: "Delete an infraction (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		p, err := findPenalty(d, args[0])
		if err != nil {
			return err
		}
		if err := d.Ledger.DeletePenalty(actor, p.ID); err != nil {
			return err
		}
		fmt.Printf("Removed penalty %s\n", shortID(p.ID))
		return nil
	},
}

func findPenalty(d *daemon.Daemon, ref string) (domain.Penalty, error) {
	ps, err := d.Ledger.Penalties("")
	if err != nil {
		return domain.Penalty{}, err
	}
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	i, err := matchID(ids, ref)
	if err != nil {
		return domain.Penalty{}, fmt.Errorf("penalty %q: %w", ref, err)
	}
	return ps[i], nil
}

// ─── Rewards ────────────────────────────────────────────────────────────────

var rewardCmd = &cobra.Command{
	Use:   "reward",
	Short: "Grant manual YVP credits",
}

var rewardAddCmd = &cobra.Command{
	Use:   "add USERNAME AMOUNT",
	Short: "Grant a reward (admin only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var amount float64
		if _, err := fmt.Sscan(args[1], &amount); err != nil {
			return fmt.Errorf("invalid amount %q", args[1])
		}

		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		at, err := parseDate(recordDate, d.Location)
		if err != nil {
			return err
		}
		r, err := d.Ledger.GrantReward(actor, args[0], amount, recordReason, at)
		if err != nil {
			return err
		}
		fmt.Printf("Granted %g YVP to %s (%s)\n", r.Amount, r.Username, shortID(r.ID))
		return nil
	},
}

var rewardListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List rewards",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		rs, err := d.Ledger.Rewards(recordUser)
		if err != nil {
			return err
		}
		if len(rs) == 0 {
			fmt.Println("No rewards.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tAMOUNT\tGRANTED\tREASON")
		for _, r := range rs {
			fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%s\n", shortID(r.ID), r.Username, r.Amount, r.CreatedAt.In(d.Location).Format(dateLayout), r.Reason)
		}
		return w.Flush()
	},
}

var rewardRmCmd = &cobra.Command{
	Use:   "rm REWARD",
	Short: "Delete a reward (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		rs, err := d.Ledger.Rewards("")
		if err != nil {
			return err
		}
		ids := make([]string, len(rs))
		for i, r := range rs {
			ids[i] = r.ID
		}
		i, err := matchID(ids, args[0])
		if err != nil {
			return fmt.Errorf("reward %q: %w", args[0], err)
		}
		if err := d.Ledger.DeleteReward(actor, rs[i].ID); err != nil {
			return err
		}
		fmt.Printf("Removed reward %s\n", shortID(rs[i].ID))
		return nil
	},
}
