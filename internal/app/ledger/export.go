package ledger

import (
	"encoding/csv"
	"io"

	"github.com/yanzu-lab/yvp/internal/domain"
)

// CSVHeader is the column order of period exports.
var CSVHeader = []string{"user", "gross_output", "fine", "reward", "net_yvp"}

// WriteCSV writes a period report as CSV with two-decimal amounts.
func WriteCSV(w io.Writer, report domain.PeriodReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range report.Rows {
		err := cw.Write([]string{
			r.Username,
			r.GrossOutput.StringFixed(2),
			r.Fine.StringFixed(2),
			r.Reward.StringFixed(2),
			r.NetYVP.StringFixed(2),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
