// pkg/report/report.go
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/coerce"
	"github.com/xtechon/vatflow/pkg/frame"
	"github.com/xtechon/vatflow/pkg/validate"
	"github.com/xtechon/vatflow/pkg/vat"
)

// Severity classes a cell-level highlight
type Severity string

const (
	SeverityError   Severity = "error"   // red fill
	SeverityWarning Severity = "warning" // orange fill
)

// Highlight is one cell-level annotation keyed by (row, column).
// Row -1 targets the column's header cell.
type Highlight struct {
	Row      int // zero-based data row position; -1 for the header
	Column   string
	Severity Severity
}

// Sheet names in the generated workbook
const (
	sheetData    = "Enriched Data"
	sheetIssues  = "Validation Issues"
	sheetSummary = "Country Summary"
)

// Builder assembles multi-sheet styled spreadsheet reports from
// enriched frames, validation issues and summary aggregates
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a report builder
func NewBuilder(logger *zap.Logger) (*Builder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Builder{logger: logger.Named("report")}, nil
}

// Build produces a workbook with one sheet of enriched data (with
// cell-level highlights), one sheet of validation issues and, when a
// summary is supplied, one summary-by-country sheet. The result is the
// serialized xlsx bytes.
func (b *Builder) Build(f *frame.Frame, highlights []Highlight, issues []validate.Issue, result *vat.Result) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("frame is required")
	}

	wb := excelize.NewFile()
	defer wb.Close()

	styles, err := newStyleSet(wb)
	if err != nil {
		return nil, fmt.Errorf("failed to create styles: %w", err)
	}

	if err := b.writeDataSheet(wb, styles, f, highlights); err != nil {
		return nil, err
	}
	if err := b.writeIssuesSheet(wb, styles, issues); err != nil {
		return nil, err
	}
	if result != nil && len(result.CountrySummary) > 0 {
		if err := b.writeSummarySheet(wb, styles, result); err != nil {
			return nil, err
		}
	}

	// Drop the default sheet excelize creates
	if err := wb.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}
	if idx, err := wb.GetSheetIndex(sheetData); err == nil {
		wb.SetActiveSheet(idx)
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	b.logger.Info("Report assembled",
		zap.Int("rows", f.Len()),
		zap.Int("highlights", len(highlights)),
		zap.Int("issues", len(issues)),
		zap.Int("bytes", buf.Len()))

	return buf.Bytes(), nil
}

// styleSet holds pre-registered cell styles for one workbook
type styleSet struct {
	header  int
	errCell int
	warn    int
}

func newStyleSet(wb *excelize.File) (*styleSet, error) {
	thin := []excelize.Border{
		{Type: "left", Style: 1, Color: "999999"},
		{Type: "right", Style: 1, Color: "999999"},
		{Type: "top", Style: 1, Color: "999999"},
		{Type: "bottom", Style: 1, Color: "999999"},
	}

	header, err := wb.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Border: thin,
	})
	if err != nil {
		return nil, err
	}

	errCell, err := wb.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFC7CE"}},
		Font:   &excelize.Font{Color: "9C0006"},
		Border: thin,
	})
	if err != nil {
		return nil, err
	}

	warn, err := wb.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFEB9C"}},
		Font:   &excelize.Font{Color: "9C6500"},
		Border: thin,
	})
	if err != nil {
		return nil, err
	}

	return &styleSet{header: header, errCell: errCell, warn: warn}, nil
}

// writeDataSheet writes the enriched frame with header styling,
// cell-level highlights and fitted column widths
func (b *Builder) writeDataSheet(wb *excelize.File, styles *styleSet, f *frame.Frame, highlights []Highlight) error {
	if _, err := wb.NewSheet(sheetData); err != nil {
		return fmt.Errorf("failed to create data sheet: %w", err)
	}

	columns := f.Columns()
	colIndex := make(map[string]int, len(columns))

	for c, name := range columns {
		colIndex[name] = c
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := wb.SetCellValue(sheetData, cell, name); err != nil {
			return err
		}
		if err := wb.SetCellStyle(sheetData, cell, cell, styles.header); err != nil {
			return err
		}
	}

	for r := 0; r < f.Len(); r++ {
		for c, name := range columns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := wb.SetCellValue(sheetData, cell, cellValue(f.Cell(name, r))); err != nil {
				return err
			}
		}
	}

	for _, h := range highlights {
		c, ok := colIndex[h.Column]
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(c+1, h.Row+2)
		if err != nil {
			return err
		}
		style := styles.warn
		if h.Severity == SeverityError {
			style = styles.errCell
		}
		if err := wb.SetCellStyle(sheetData, cell, cell, style); err != nil {
			return err
		}
	}

	return b.fitColumnWidths(wb, sheetData, f, columns)
}

// fitColumnWidths sizes each column to its longest value, within sane
// bounds
func (b *Builder) fitColumnWidths(wb *excelize.File, sheet string, f *frame.Frame, columns []string) error {
	for c, name := range columns {
		width := float64(len(name))
		for r := 0; r < f.Len(); r++ {
			if l := float64(len(coerce.ToString(f.Cell(name, r)))); l > width {
				width = l
			}
		}
		width += 2
		if width > 50 {
			width = 50
		}
		if width < 10 {
			width = 10
		}

		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := wb.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return nil
}

// writeIssuesSheet writes the aggregated validation issues table
func (b *Builder) writeIssuesSheet(wb *excelize.File, styles *styleSet, issues []validate.Issue) error {
	if _, err := wb.NewSheet(sheetIssues); err != nil {
		return fmt.Errorf("failed to create issues sheet: %w", err)
	}

	headers := []string{"Column", "Issue Type", "Affected Rows", "% of Rows", "Description"}
	for c, h := range headers {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := wb.SetCellValue(sheetIssues, cell, h); err != nil {
			return err
		}
		if err := wb.SetCellStyle(sheetIssues, cell, cell, styles.header); err != nil {
			return err
		}
	}

	for r, issue := range issues {
		values := []interface{}{
			issue.Column,
			string(issue.Type),
			issue.TotalCount,
			fmt.Sprintf("%.1f%%", issue.PercentRows),
			issue.Description,
		}
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := wb.SetCellValue(sheetIssues, cell, v); err != nil {
				return err
			}
		}

		// Flag the row with the issue-type severity color
		style := styles.warn
		if issue.Type == validate.IssueInvalidType {
			style = styles.errCell
		}
		first, _ := excelize.CoordinatesToCellName(1, r+2)
		last, _ := excelize.CoordinatesToCellName(2, r+2)
		if err := wb.SetCellStyle(sheetIssues, first, last, style); err != nil {
			return err
		}
	}

	return wb.SetColWidth(sheetIssues, "E", "E", 80)
}

// writeSummarySheet writes the per-country aggregates and overall
// totals
func (b *Builder) writeSummarySheet(wb *excelize.File, styles *styleSet, result *vat.Result) error {
	if _, err := wb.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	headers := []string{"Country", "Rows", "Total Net", "Total VAT"}
	for c, h := range headers {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := wb.SetCellValue(sheetSummary, cell, h); err != nil {
			return err
		}
		if err := wb.SetCellStyle(sheetSummary, cell, cell, styles.header); err != nil {
			return err
		}
	}

	row := 2
	for _, s := range result.CountrySummary {
		values := []interface{}{s.Country, s.Rows, s.TotalNet, s.TotalVAT}
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, row)
			if err != nil {
				return err
			}
			if err := wb.SetCellValue(sheetSummary, cell, v); err != nil {
				return err
			}
		}
		row++
	}

	// Overall totals below the country block
	row++
	totals := [][]interface{}{
		{"Total Net", result.Totals.Net},
		{"Total VAT", result.Totals.VAT},
		{"Total Gross", result.Totals.Gross},
	}
	for _, pair := range totals {
		labelCell, _ := excelize.CoordinatesToCellName(1, row)
		valueCell, _ := excelize.CoordinatesToCellName(2, row)
		if err := wb.SetCellValue(sheetSummary, labelCell, pair[0]); err != nil {
			return err
		}
		if err := wb.SetCellValue(sheetSummary, valueCell, pair[1]); err != nil {
			return err
		}
		if err := wb.SetCellStyle(sheetSummary, labelCell, labelCell, styles.header); err != nil {
			return err
		}
		row++
	}

	return nil
}

// cellValue converts frame cells to spreadsheet-safe values. Nil cells
// write as empty strings; NaN and Inf can never reach the sheet.
func cellValue(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return coerce.SafeFloat(f)
	}
	return v
}

// HighlightsForSentinel flags every cell holding the given sentinel
// string with an error highlight
func HighlightsForSentinel(f *frame.Frame, sentinel string) []Highlight {
	var highlights []Highlight
	for _, name := range f.Columns() {
		for r := 0; r < f.Len(); r++ {
			if s, ok := f.Cell(name, r).(string); ok && s == sentinel {
				highlights = append(highlights, Highlight{Row: r, Column: name, Severity: SeverityError})
			}
		}
	}
	return highlights
}

// HighlightsFromIssues converts validation issues into cell-level
// highlight instructions for the data sheet
func HighlightsFromIssues(issues []validate.Issue) []Highlight {
	highlights := make([]Highlight, 0, len(issues))
	for _, issue := range issues {
		severity := SeverityWarning
		if issue.Type == validate.IssueInvalidType {
			severity = SeverityError
		}
		for _, displayRow := range issue.RowNumbers {
			highlights = append(highlights, Highlight{
				Row:      displayRow - frame.HeaderRowOffset,
				Column:   issue.Column,
				Severity: severity,
			})
		}
	}
	return highlights
}
