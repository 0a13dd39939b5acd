package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
)

func sampleReport() *port.ExpenseReport {
	day := time.Date(2025, 9, 28, 0, 0, 0, 0, time.UTC)
	return &port.ExpenseReport{
		GeneratedAt: time.Date(2025, 10, 18, 9, 0, 0, 0, time.UTC),
		Summary: &port.Summary{
			Currency:      "USD",
			TotalCount:    2,
			TotalAmount:   895,
			FlaggedCount:  1,
			FlaggedAmount: 850,
			ByStatus: []port.StatusTotal{
				{Status: entity.ExpenseStatusPending, Count: 1, Amount: 850},
				{Status: entity.ExpenseStatusApproved, Count: 1, Amount: 45},
			},
		},
		Categories:  []port.BreakdownEntry{{Key: "Office", Count: 1, Amount: 45, Percentage: 100}},
		Departments: []port.BreakdownEntry{{Key: "Engineering", Count: 1, Amount: 45, Percentage: 100}},
		Trend:       []port.MonthlyTotal{{Month: "Sep", Count: 1, Amount: 45}},
		Rows: []port.ReportRow{
			{
				Expense: &entity.Expense{
					ID: "exp2", Amount: 850, Currency: "USD", ConvertedAmount: 850,
					Category: "Travel", Description: "Flight tickets", Status: entity.ExpenseStatusPending, ExpenseDate: day,
				},
				Submitter: "Mike Developer", Department: "Engineering", Flagged: true, ActiveLevel: 1,
			},
			{
				Expense: &entity.Expense{
					ID: "exp3", Amount: 45, Currency: "USD", ConvertedAmount: 45,
					Category: "Office", Description: "Office supplies", Status: entity.ExpenseStatusApproved, ExpenseDate: day,
				},
				Submitter: "Sarah Employee", Department: "Engineering",
			},
		},
	}
}

func TestExcelWriter_Write(t *testing.T) {
	ew := NewExcelWriter("Monex", zap.NewNop())

	var buf bytes.Buffer
	require.NoError(t, ew.Write(context.Background(), &buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetExpenses, SheetSummary}, f.GetSheetList())

	rows, err := f.GetRows(SheetExpenses)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "Flagged", rows[0][11])
	assert.Equal(t, []string{"exp2", "2025-09-28", "Mike Developer", "Engineering", "Travel", "Flight tickets", "850", "USD", "850", "pending", "1", "yes"}, rows[1])
	assert.Equal(t, "exp3", rows[2][0])
	assert.Equal(t, "approved", rows[2][9])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, "Monex expense report", summary[0][0])
	assert.Equal(t, []string{"Generated", "2025-10-18 09:00:00"}, summary[1])
	assert.Equal(t, []string{"Total amount", "895"}, summary[4])
	assert.Contains(t, summary, []string{"Office", "1", "45", "100"})
	assert.Contains(t, summary, []string{"Sep", "1", "45"})
}

func TestExcelWriter_CancelledContext(t *testing.T) {
	ew := NewExcelWriter("Monex", zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	assert.ErrorIs(t, ew.Write(ctx, &buf, sampleReport()), context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestExcelWriter_Metadata(t *testing.T) {
	ew := NewExcelWriter("Monex", zap.NewNop())
	assert.Equal(t, ".xlsx", ew.Extension())
	assert.Equal(t, ContentTypeXLSX, ew.ContentType())
}
