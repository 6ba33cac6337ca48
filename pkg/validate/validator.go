// pkg/validate/validator.go
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/coerce"
	"github.com/xtechon/vatflow/pkg/frame"
	"github.com/xtechon/vatflow/pkg/schema"
)

// Validator checks reconciled columns for missing values and type
// conformance, producing structured Issue records. Columns are
// validated independently and concurrently; issues are returned in
// stable column order regardless of completion order.
type Validator struct {
	logger  *zap.Logger
	workers int
}

// NewValidator creates a Validator. workers <= 0 means one goroutine
// per column.
func NewValidator(logger *zap.Logger, workers int) (*Validator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Validator{
		logger:  logger.Named("validator"),
		workers: workers,
	}, nil
}

// columnResult pairs a column's position with its issues so output can
// be concatenated deterministically
type columnResult struct {
	index  int
	issues []Issue
}

// Validate checks every canonical column present in the frame against
// its header definition. Validation is advisory: the frame is never
// modified and issues never halt processing. A column whose validation
// panics is recorded as an issue rather than aborting the other
// columns.
func (v *Validator) Validate(ctx context.Context, f *frame.Frame, defs []schema.HeaderDef) []Issue {
	type task struct {
		index int
		def   schema.HeaderDef
	}

	tasks := make([]task, 0, len(defs))
	for i, def := range defs {
		if f.HasColumn(def.Value) {
			tasks = append(tasks, task{index: i, def: def})
		}
	}
	if len(tasks) == 0 {
		return nil
	}

	workers := v.workers
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}

	jobs := make(chan task)
	results := make(chan columnResult, len(tasks))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				results <- v.validateColumn(f, t.def, t.index)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range tasks {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]columnResult, 0, len(tasks))
	for r := range results {
		collected = append(collected, r)
	}

	// Stable column order regardless of goroutine completion order
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].index < collected[j].index
	})

	issues := make([]Issue, 0)
	for _, r := range collected {
		issues = append(issues, r.issues...)
	}

	v.logger.Info("Column validation completed",
		zap.Int("columns", len(tasks)),
		zap.Int("issues", len(issues)))

	return issues
}

// validateColumn runs the missing-value scan and type validation for a
// single column. Panics are isolated to the column and surfaced as an
// INVALID_TYPE issue covering the whole column.
func (v *Validator) validateColumn(f *frame.Frame, def schema.HeaderDef, index int) (result columnResult) {
	result.index = index

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("Column validation panicked",
				zap.String("column", def.Value),
				zap.Any("panic", r))
			result.issues = append(result.issues, Issue{
				Column:      def.Value,
				Label:       def.Label,
				Type:        IssueInvalidType,
				Description: fmt.Sprintf("Column %q could not be validated: internal error", def.Value),
			})
		}
	}()

	cells := f.Column(def.Value)
	totalRows := f.Len()

	var missingRows []int
	var invalidRows []int

	for i := 0; i < totalRows; i++ {
		var cell interface{}
		if i < len(cells) {
			cell = cells[i]
		}

		if coerce.IsMissing(cell) {
			missingRows = append(missingRows, frame.DisplayRow(i))
			continue
		}

		if !v.cellConforms(cell, def) {
			invalidRows = append(invalidRows, frame.DisplayRow(i))
		}
	}

	if len(missingRows) > 0 {
		result.issues = append(result.issues, newIssue(def.Value, def.Label, IssueMissingData, missingRows, totalRows))
	}
	if len(invalidRows) > 0 {
		result.issues = append(result.issues, newIssue(def.Value, def.Label, IssueInvalidType, invalidRows, totalRows))
	}

	return result
}

// cellConforms checks one non-missing cell against the column's
// declared semantic type
func (v *Validator) cellConforms(cell interface{}, def schema.HeaderDef) bool {
	switch def.Type {
	case schema.TypeInteger:
		_, err := coerce.ToInt(cell)
		return err == nil

	case schema.TypeFloat:
		_, err := coerce.ToFloat(cell)
		return err == nil

	case schema.TypeDate:
		_, err := coerce.ParseDate(cell)
		return err == nil

	case schema.TypeBoolean:
		_, err := coerce.ToBool(cell)
		return err == nil

	case schema.TypeTextOnly:
		return !coerce.IsPurelyNumeric(coerce.ToString(cell))

	case schema.TypeCategorical:
		value := strings.TrimSpace(coerce.ToString(cell))
		for _, allowed := range def.AllowedValues {
			if value == allowed {
				return true
			}
		}
		return false

	case schema.TypeEmail:
		_, err := mail.ParseAddress(strings.TrimSpace(coerce.ToString(cell)))
		return err == nil

	case schema.TypeURL:
		u, err := url.Parse(strings.TrimSpace(coerce.ToString(cell)))
		return err == nil && u.Scheme != "" && u.Host != ""

	case schema.TypeJSON:
		return json.Valid([]byte(coerce.ToString(cell)))

	default:
		return v.stringConforms(cell, def)
	}
}

// stringConforms applies the generic string check plus the
// column-specific business rules for product_type, country and
// currency columns
func (v *Validator) stringConforms(cell interface{}, def schema.HeaderDef) bool {
	value := strings.TrimSpace(coerce.ToString(cell))

	switch def.Value {
	case "product_type":
		return !coerce.IsPurelyNumeric(value) && len(value) >= 2
	case "country":
		return !coerce.IsPurelyNumeric(value)
	case "currency":
		return coerce.IsCurrencyCode(value)
	default:
		return true
	}
}
