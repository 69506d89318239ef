package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/yanzu-lab/yvp/internal/app/ledger"
	"github.com/yanzu-lab/yvp/internal/domain"
)

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD (midnight in loc) or RFC 3339.
// The empty string yields the zero time.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// parseDays turns a --days value into a lookback. "" and "all" mean all-time.
func parseDays(s string) (*int, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid --days %q: want a non-negative integer or \"all\"", s)
	}
	return &n, nil
}

// shortID trims a UUID to its first block for table output.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// matchID finds the single id equal to or prefixed by ref.
func matchID(ids []string, ref string) (int, error) {
	found := -1
	for i, id := range ids {
		if id == ref {
			return i, nil
		}
		if strings.HasPrefix(id, ref) {
			if found >= 0 {
				return -1, errors.New("ambiguous reference")
			}
			found = i
		}
	}
	if found < 0 || ref == "" {
		return -1, errors.New("not found")
	}
	return found, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

func printTasks(out io.Writer, tasks []domain.Task) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tASSIGNEE\tD\tT\tQ\tEARNED\tCOMPLETED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%g\t%g\t%s\t%s\n",
			shortID(t.ID),
			t.Title,
			t.Status,
			t.Assignee,
			t.Difficulty,
			t.StdTime,
			t.Quality,
			ledger.Earned(t).StringFixed(2),
			formatDate(t.CompletedAt),
		)
	}
	return w.Flush()
}

func printTask(out io.Writer, t domain.Task) {
	fmt.Fprintf(out, "ID:          %s\n", t.ID)
	fmt.Fprintf(out, "Title:       %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", t.Description)
	}
	fmt.Fprintf(out, "Type:        %s\n", t.Type)
	fmt.Fprintf(out, "Status:      %s\n", t.Status)
	fmt.Fprintf(out, "Assignee:    %s\n", t.Assignee)
	fmt.Fprintf(out, "Difficulty:  %g\n", t.Difficulty)
	fmt.Fprintf(out, "Std time:    %g\n", t.StdTime)
	fmt.Fprintf(out, "Quality:     %g\n", t.Quality)
	fmt.Fprintf(out, "R&D:         %t\n", t.IsRnD)
	fmt.Fprintf(out, "Deadline:    %s\n", formatDate(t.Deadline))
	fmt.Fprintf(out, "Completed:   %s\n", formatDate(t.CompletedAt))
	fmt.Fprintf(out, "Earned:      %s\n", ledger.Earned(t).StringFixed(2))
	if t.Feedback != "" {
		fmt.Fprintf(out, "Feedback:    %s\n", t.Feedback)
	}
}

func printBalance(out io.Writer, label string, b domain.Balance) {
	fmt.Fprintf(out, "%-12s gross %8s  fine %8s  rewards %8s  net %8s  (%d penalties)\n",
		label+":",
		b.Gross.StringFixed(2),
		b.Fine.StringFixed(2),
		b.Rewards.StringFixed(2),
		b.Net.StringFixed(2),
		b.Penalties,
	)
	for _, warn := range b.Warnings {
		fmt.Fprintf(out, "  warning: %s %s: %s\n", warn.Kind, warn.RecordID, warn.Detail)
	}
}
