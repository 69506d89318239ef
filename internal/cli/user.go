package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yanzu-lab/yvp/internal/domain"
)

func init() {
	userAddCmd.Flags().StringVar(&userAddRole, "role", string(domain.RoleMember), "Role: admin or member")
	userListCmd.Flags().StringVar(&userListRole, "role", "", "Only list users with this role")
	userCmd.AddCommand(userAddCmd, userListCmd, userRmCmd)
	rootCmd.AddCommand(userCmd)
}

var (
	userAddRole  string
	userListRole string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the team roster",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Add a team member (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		u, err := d.Roster.Add(actor, args[0], domain.Role(userAddRole))
		if err != nil {
			return err
		}
		fmt.Printf("Added %s (%s)\n", u.Username, u.Role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List team members",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		users, err := d.Roster.List(domain.Role(userListRole))
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users yet. Add administrators under [roster] in config.toml.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tROLE\tADDED")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.Username, u.Role, u.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var userRmCmd = &cobra.Command{
	Use:   "rm USERNAME",
	Short: "Remove a team member (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Roster.Remove(actor, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}
