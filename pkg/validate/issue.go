// pkg/validate/issue.go
package validate

import (
	"fmt"
	"strings"
)

// IssueType categorizes a validation issue
type IssueType string

const (
	IssueMissingData IssueType = "MISSING_DATA"
	IssueInvalidType IssueType = "INVALID_TYPE"
)

// previewLimit caps the number of affected row numbers listed in an
// issue description before truncating with an ellipsis
const previewLimit = 10

// Issue is one structured validation finding for a column. Produced
// once, never mutated; consumed by the report assembler.
type Issue struct {
	Column      string    `json:"column"`
	Label       string    `json:"label"`
	Type        IssueType `json:"issue_type"`
	Description string    `json:"description"`
	RowNumbers  []int     `json:"affected_rows"`
	TotalCount  int       `json:"total_count"`
	PercentRows float64   `json:"percentage_of_rows"`
	Truncated   bool      `json:"truncated"`
}

// newIssue builds an Issue with the standard preview/truncation
// convention applied to the affected display-row list
func newIssue(column, label string, issueType IssueType, displayRows []int, totalRows int) Issue {
	preview := displayRows
	truncated := false
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
		truncated = true
	}

	percent := 0.0
	if totalRows > 0 {
		percent = float64(len(displayRows)) / float64(totalRows) * 100
	}

	rowList := make([]string, len(preview))
	for i, r := range preview {
		rowList[i] = fmt.Sprintf("%d", r)
	}
	rows := strings.Join(rowList, ", ")
	if truncated {
		rows += ", ..."
	}

	var description string
	switch issueType {
	case IssueMissingData:
		description = fmt.Sprintf(
			"Column %q has %d missing value(s) (%.1f%% of rows) in row(s): %s",
			column, len(displayRows), percent, rows)
	case IssueInvalidType:
		description = fmt.Sprintf(
			"Column %q has %d value(s) of unexpected type (%.1f%% of rows) in row(s): %s",
			column, len(displayRows), percent, rows)
	}

	rowsCopy := make([]int, len(preview))
	copy(rowsCopy, preview)

	return Issue{
		Column:      column,
		Label:       label,
		Type:        issueType,
		Description: description,
		RowNumbers:  rowsCopy,
		TotalCount:  len(displayRows),
		PercentRows: percent,
		Truncated:   truncated,
	}
}
