package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/application/port"
)

// Sheet names of the exported workbook
const (
	SheetExpenses = "Expenses"
	SheetSummary  = "Summary"
)

// ContentTypeXLSX is the MIME type of the exported workbook
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var expenseHeader = []interface{}{
	"ID", "Date", "Submitter", "Department", "Category", "Description",
	"Amount", "Currency", "Converted", "Status", "Active Level", "Flagged",
}

// ExcelWriter renders expense reports as xlsx workbooks
type ExcelWriter struct {
	companyName string
	logger      *zap.Logger
}

// NewExcelWriter creates a new ExcelWriter
func NewExcelWriter(companyName string, logger *zap.Logger) *ExcelWriter {
	return &ExcelWriter{
		companyName: companyName,
		logger:      logger,
	}
}

var _ port.ReportWriter = (*ExcelWriter)(nil)

// ContentType returns the xlsx MIME type
func (ew *ExcelWriter) ContentType() string { return ContentTypeXLSX }

// Extension returns ".xlsx"
func (ew *ExcelWriter) Extension() string { return ".xlsx" }

// Write renders report into w as a workbook with an Expenses and a Summary sheet
func (ew *ExcelWriter) Write(ctx context.Context, w io.Writer, report *port.ExpenseReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetExpenses); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := ew.writeExpenses(f, report, bold); err != nil {
		return err
	}
	if err := ew.writeSummary(f, report, bold); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	ew.logger.Info("Expense report rendered",
		zap.Int("rows", len(report.Rows)),
		zap.Time("generated_at", report.GeneratedAt))
	return nil
}

func (ew *ExcelWriter) writeExpenses(f *excelize.File, report *port.ExpenseReport, headerStyle int) error {
	if err := f.SetSheetRow(SheetExpenses, "A1", &expenseHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(SheetExpenses, "A1", "L1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, row := range report.Rows {
		e := row.Expense
		activeLevel := interface{}("")
		if row.ActiveLevel > 0 {
			activeLevel = row.ActiveLevel
		}
		flagged := ""
		if row.Flagged {
			flagged = "yes"
		}

		values := []interface{}{
			e.ID,
			e.ExpenseDate.Format("2006-01-02"),
			row.Submitter,
			row.Department,
			e.Category,
			e.Description,
			e.Amount,
			e.Currency,
			e.ConvertedAmount,
			string(e.Status),
			activeLevel,
			flagged,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetExpenses, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	ew.setColWidth(f, SheetExpenses, "A", "A", 38)
	ew.setColWidth(f, SheetExpenses, "B", "E", 16)
	ew.setColWidth(f, SheetExpenses, "F", "F", 40)
	ew.setColWidth(f, SheetExpenses, "G", "L", 13)
	return nil
}

func (ew *ExcelWriter) writeSummary(f *excelize.File, report *port.ExpenseReport, headerStyle int) error {
	var rows [][]interface{}
	add := func(values ...interface{}) { rows = append(rows, values) }

	add(ew.companyName + " expense report")
	add("Generated", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	if s := report.Summary; s != nil {
		add("Currency", s.Currency)
		add("Total expenses", s.TotalCount)
		add("Total amount", s.TotalAmount)
		add("Flagged expenses", s.FlaggedCount)
		add("Flagged amount", s.FlaggedAmount)
		add()
		add("Status", "Count", "Amount")
		for _, st := range s.ByStatus {
			add(string(st.Status), st.Count, st.Amount)
		}
	}

	section := func(title string, entries []port.BreakdownEntry) {
		add()
		add(title, "Count", "Amount", "Percentage")
		for _, e := range entries {
			add(e.Key, e.Count, e.Amount, e.Percentage)
		}
	}
	section("Category", report.Categories)
	section("Department", report.Departments)

	if len(report.Trend) > 0 {
		add()
		add("Month", "Count", "Amount")
		for _, m := range report.Trend {
			add(m.Month, m.Count, m.Amount)
		}
	}

	for i, values := range rows {
		if len(values) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSummary, cell, &values); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
		if isHeading(values) {
			last, _ := excelize.CoordinatesToCellName(len(values), i+1)
			if err := f.SetCellStyle(SheetSummary, cell, last, headerStyle); err != nil {
				return fmt.Errorf("style summary row %d: %w", i+1, err)
			}
		}
	}

	ew.setColWidth(f, SheetSummary, "A", "A", 28)
	ew.setColWidth(f, SheetSummary, "B", "D", 14)
	return nil
}

// isHeading reports whether a summary row is a table header or the title line
func isHeading(values []interface{}) bool {
	if len(values) == 1 {
		return true
	}
	second, ok := values[1].(string)
	return ok && second == "Count"
}

func (ew *ExcelWriter) setColWidth(f *excelize.File, sheet, from, to string, width float64) {
	if err := f.SetColWidth(sheet, from, to, width); err != nil {
		ew.logger.Warn("Failed to set column width",
			zap.String("sheet", sheet),
			zap.String("columns", from+":"+to),
			zap.Error(err))
	}
}
