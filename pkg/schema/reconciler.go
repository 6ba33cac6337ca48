// pkg/schema/reconciler.go
package schema

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/frame"
)

// Reconciler maps arbitrary uploaded column names onto canonical field
// identifiers using an alias dictionary built from header definitions
type Reconciler struct {
	defs     []HeaderDef
	aliasMap map[string]string
	logger   *zap.Logger
}

// ReconcileResult reports which canonical columns were found in a frame
// and which required columns were absent
type ReconcileResult struct {
	Matched []string
	Missing []MissingColumn
}

// NewReconciler builds a Reconciler from a set of header definitions.
// Every definition's canonical value, display label and declared
// aliases map (case/whitespace-normalized) to the canonical value.
func NewReconciler(defs []HeaderDef, logger *zap.Logger) (*Reconciler, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := ValidateHeaderDefs(defs); err != nil {
		return nil, err
	}

	aliasMap := make(map[string]string)
	for _, def := range defs {
		aliasMap[normalize(def.Value)] = def.Value
		if def.Label != "" {
			aliasMap[normalize(def.Label)] = def.Value
		}
		for _, alias := range def.Aliases {
			if alias == "" {
				continue
			}
			aliasMap[normalize(alias)] = def.Value
		}
	}

	return &Reconciler{
		defs:     defs,
		aliasMap: aliasMap,
		logger:   logger.Named("reconciler"),
	}, nil
}

// Defs returns the header definitions the reconciler was built from
func (r *Reconciler) Defs() []HeaderDef {
	return r.defs
}

// Def returns the header definition for a canonical value, if present
func (r *Reconciler) Def(value string) (HeaderDef, bool) {
	for _, def := range r.defs {
		if def.Value == value {
			return def, true
		}
	}
	return HeaderDef{}, false
}

// Reconcile renames each frame column whose normalized name appears in
// the alias map to its canonical value. Columns with no match are left
// untouched. When two source columns normalize to the same canonical
// name, the later one wins. Running Reconcile twice on the same frame
// is a no-op.
func (r *Reconciler) Reconcile(f *frame.Frame) ReconcileResult {
	for _, col := range f.Columns() {
		canonical, ok := r.aliasMap[normalize(col)]
		if !ok {
			r.logger.Debug("Column has no canonical mapping",
				zap.String("column", col))
			continue
		}
		if col != canonical {
			r.logger.Debug("Renaming column",
				zap.String("from", col),
				zap.String("to", canonical))
			f.Rename(col, canonical)
		}
	}

	result := ReconcileResult{
		Matched: make([]string, 0, len(r.defs)),
		Missing: make([]MissingColumn, 0),
	}

	for _, def := range r.defs {
		if f.HasColumn(def.Value) {
			result.Matched = append(result.Matched, def.Value)
			continue
		}
		if def.Required {
			result.Missing = append(result.Missing, MissingColumn{
				Value:       def.Value,
				Description: fmt.Sprintf("Required column %q (%s) was not found in the uploaded file", def.Label, def.Value),
			})
		}
	}

	return result
}

// normalize trims whitespace and lower-cases a column name for
// case-insensitive alias lookup
func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
