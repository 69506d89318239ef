package ledger

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanzu-lab/yvp/internal/domain"
)

func TestWriteCSV(t *testing.T) {
	report := domain.PeriodReport{Rows: []domain.PeriodRow{
		{
			Username:    "alice",
			GrossOutput: decimal.RequireFromString("4"),
			Fine:        decimal.RequireFromString("0.8"),
			Reward:      decimal.Zero,
			NetYVP:      decimal.RequireFromString("3.2"),
		},
		{Username: "张三, jr", GrossOutput: decimal.Zero, Fine: decimal.Zero, Reward: decimal.NewFromInt(5), NetYVP: decimal.NewFromInt(5)},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report))

	want := "user,gross_output,fine,reward,net_yvp\n" +
		"alice,4.00,0.80,0.00,3.20\n" +
		"\"张三, jr\",0.00,0.00,5.00,5.00\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, domain.PeriodReport{}))
	assert.Equal(t, "user,gross_output,fine,reward,net_yvp\n", buf.String())
}
