package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanzu-lab/yvp/internal/daemon"
	"github.com/yanzu-lab/yvp/internal/domain"
)

func init() {
	f := taskCreateCmd.Flags()
	f.StringVar(&newTask.Description, "desc", "", "Task description")
	f.Float64VarP(&newTask.Difficulty, "difficulty", "d", 1, "Difficulty coefficient (D)")
	f.Float64VarP(&newTask.StdTime, "time", "t", 1, "Standard time in hours (T)")
	f.StringVar(&newTaskAssignee, "assign", "", "Assign directly to this user instead of the pool")
	f.BoolVar(&newTask.IsRnD, "rnd", false, "Mark as an R&D task")
	f.StringVar(&newTaskDeadline, "deadline", "", "Deadline (YYYY-MM-DD)")

	taskListCmd.Flags().StringVar(&taskView, "view", "", "Board: pool, inflight, review, open, history")
	taskListCmd.Flags().StringVar(&taskUser, "user", "", "Filter by assignee")
	taskListCmd.Flags().StringSliceVar(&taskStatuses, "status", nil, "Filter by status (repeatable)")
	taskListCmd.Flags().IntVar(&taskLimit, "limit", 0, "Maximum rows")
	auditCmd.Flags().IntVar(&taskLimit, "limit", 0, "Maximum events (default 50)")

	taskAcceptCmd.Flags().Float64VarP(&judgeQuality, "quality", "q", domain.DefaultQuality, "Quality coefficient (0-3)")
	taskAcceptCmd.Flags().StringVarP(&judgeFeedback, "feedback", "m", "", "Review feedback")
	taskRejectCmd.Flags().StringVarP(&judgeFeedback, "feedback", "m", "", "Reason for rework (required)")

	e := taskEditCmd.Flags()
	e.String("title", "", "New title")
	e.String("desc", "", "New description")
	e.Float64("difficulty", 0, "New difficulty")
	e.Float64("time", 0, "New standard time")
	e.Float64("quality", 0, "New quality")
	e.String("status", "", "New status")
	e.String("assignee", "", "New assignee")
	e.String("type", "", "New task type")
	e.Bool("rnd", false, "R&D flag")
	e.String("completed", "", "Completion date (YYYY-MM-DD), or \"none\" to clear")
	e.String("feedback", "", "New feedback")

	taskCmd.AddCommand(
		taskCreateCmd, taskListCmd, taskShowCmd,
		taskClaimCmd, taskSubmitCmd, taskResubmitCmd,
		taskAcceptCmd, taskRejectCmd,
		taskEditCmd, taskPurgeCmd, auditCmd,
	)
	rootCmd.AddCommand(taskCmd)
}

var (
	newTask         domain.NewTask
	newTaskAssignee string
	newTaskDeadline string

	taskView     string
	taskUser     string
	taskStatuses []string
	taskLimit    int

	judgeQuality  float64
	judgeFeedback string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, claim and review tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Publish a task to the pool or assign it directly (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		n := newTask
		n.Title = args[0]
		n.Type = domain.TypePublicPool
		if newTaskAssignee != "" {
			n.Type = domain.TypeDirectAssign
			n.Assignee = newTaskAssignee
		}
		if newTaskDeadline != "" {
			dl, err := parseDate(newTaskDeadline, d.Location)
			if err != nil {
				return err
			}
			n.Deadline = &dl
		}

		t, err := d.Workflow.Create(actor, n)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s %q (%s)\n", shortID(t.ID), t.Title, t.Status)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks on a board or by filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		var tasks []domain.Task
		switch taskView {
		case "pool":
			tasks, err = d.Workflow.Pool()
		case "inflight":
			tasks, err = d.Workflow.InFlight()
		case "review":
			tasks, err = d.Workflow.PendingReview()
		case "open":
			user := taskUser
			if user == "" {
				user = asUser
			}
			tasks, err = d.Workflow.Open(user)
		case "history":
			tasks, err = d.Workflow.History(taskUser, taskLimit)
		case "":
			f := domain.TaskFilter{Assignee: taskUser, Limit: taskLimit}
			for _, st := range taskStatuses {
				f.Statuses = append(f.Statuses, domain.TaskStatus(st))
			}
			tasks, err = d.Workflow.List(f)
		default:
			return fmt.Errorf("unknown view %q", taskView)
		}
		if err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}
		return printTasks(os.Stdout, tasks)
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show TASK",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		t, err := findTask(d, args[0])
		if err != nil {
			return err
		}
		printTask(os.Stdout, *t)
		return nil
	},
}

// transitionCmd builds a command that applies one lifecycle operation.
func transitionCmd(use, short string, apply func(d *daemon.Daemon, actor domain.Actor, id string) (*domain.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " TASK",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, actor, err := session()
			if err != nil {
				return err
			}
			defer d.Close()

			t, err := findTask(d, args[0])
			if err != nil {
				return err
			}
			t, err = apply(d, actor, t.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%s %q is now %s (%s)\n", shortID(t.ID), t.Title, t.Status, t.Assignee)
			return nil
		},
	}
}

var taskClaimCmd = transitionCmd("claim", "Claim a pool task", func(d *daemon.Daemon, a domain.Actor, id string) (*domain.Task, error) {
	return d.Workflow.Claim(a, id)
})

var taskSubmitCmd = transitionCmd("submit", "Submit finished work for review", func(d *daemon.Daemon, a domain.Actor, id string) (*domain.Task, error) {
	return d.Workflow.Submit(a, id)
})

var taskResubmitCmd = transitionCmd("resubmit", "Resubmit reworked work", func(d *daemon.Daemon, a domain.Actor, id string) (*domain.Task, error) {
	return d.Workflow.Resubmit(a, id)
})

var taskAcceptCmd = transitionCmd("accept", "Accept submitted work with a quality score (admin only)", func(d *daemon.Daemon, a domain.Actor, id string) (*domain.Task, error) {
	return d.Workflow.Accept(a, id, judgeQuality, judgeFeedback)
})

var taskRejectCmd = transitionCmd("reject", "Send submitted work back for rework (admin only)", func(d *daemon.Daemon, a domain.Actor, id string) (*domain.Task, error) {
	return d.Workflow.Reject(a, id, judgeFeedback)
})

var taskEditCmd = &cobra.Command{
	Use:   "edit TASK",
	Short: "Override task fields directly (admin only, audited)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		t, err := findTask(d, args[0])
		if err != nil {
			return err
		}
		patch, err := patchFromFlags(cmd, d)
		if err != nil {
			return err
		}
		t, err = d.Workflow.Override(actor, t.ID, patch)
		if err != nil {
			return err
		}
		printTask(os.Stdout, *t)
		return nil
	},
}

// patchFromFlags builds an override from the flags the user actually set.
func patchFromFlags(cmd *cobra.Command, d *daemon.Daemon) (domain.TaskPatch, error) {
	var p domain.TaskPatch
	f := cmd.Flags()
	str := func(name string) *string {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetString(name)
		return &v
	}
	num := func(name string) *float64 {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetFloat64(name)
		return &v
	}

	p.Title = str("title")
	p.Description = str("desc")
	p.Assignee = str("assignee")
	p.Feedback = str("feedback")
	p.Difficulty = num("difficulty")
	p.StdTime = num("time")
	p.Quality = num("quality")
	if s := str("status"); s != nil {
		st := domain.TaskStatus(*s)
		p.Status = &st
	}
	if s := str("type"); s != nil {
		tt := domain.TaskType(*s)
		p.Type = &tt
	}
	if f.Changed("rnd") {
		v, _ := f.GetBool("rnd")
		p.IsRnD = &v
	}
	if s := str("completed"); s != nil {
		if strings.EqualFold(*s, "none") {
			p.ClearCompletedAt = true
		} else {
			at, err := parseDate(*s, d.Location)
			if err != nil {
				return p, err
			}
			p.CompletedAt = &at
		}
	}
	return p, nil
}

var taskPurgeCmd = &cobra.Command{
	Use:   "purge TASK",
	Short: "Delete a task permanently (admin only, audited)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		t, err := findTask(d, args[0])
		if err != nil {
			return err
		}
		if err := d.Workflow.Purge(actor, t.ID); err != nil {
			return err
		}
		fmt.Printf("Purged %s %q\n", shortID(t.ID), t.Title)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent administrative overrides (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, actor, err := session()
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.Workflow.Audit(actor, taskLimit)
		if err != nil {
			return err
		}
		for _, e := range events {
			flag := " "
			if e.Flagged {
				flag = "!"
			}
			fmt.Printf("%s %s %-8s %-14s %s %s\n",
				flag, e.At.In(d.Location).Format("2006-01-02 15:04"), e.Actor, e.Kind, shortID(e.TaskID), e.Detail)
		}
		return nil
	},
}

// findTask resolves a full ID or a unique ID prefix as printed by list.
func findTask(d *daemon.Daemon, ref string) (*domain.Task, error) {
	t, err := d.Workflow.Get(ref)
	if err == nil || !errors.Is(err, domain.ErrTaskNotFound) {
		return t, err
	}

	all, err := d.Workflow.List(domain.TaskFilter{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(all))
	for i, t := range all {
		ids[i] = t.ID
	}
	i, err := matchID(ids, ref)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", ref, err)
	}
	return &all[i], nil
}
