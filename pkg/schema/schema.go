// pkg/schema/schema.go
package schema

import (
	"fmt"
	"strings"
)

// SemanticType enumerates the declared column types that drive
// validation rules
type SemanticType string

const (
	TypeString      SemanticType = "string"
	TypeInteger     SemanticType = "integer"
	TypeFloat       SemanticType = "float"
	TypeDate        SemanticType = "date"
	TypeBoolean     SemanticType = "boolean"
	TypeTextOnly    SemanticType = "text_only"
	TypeCategorical SemanticType = "categorical"
	TypeEmail       SemanticType = "email"
	TypeURL         SemanticType = "url"
	TypeJSON        SemanticType = "json"
)

// ParseSemanticType maps a stored type string to a SemanticType,
// defaulting to string for unrecognized values
func ParseSemanticType(s string) SemanticType {
	switch SemanticType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeInteger:
		return TypeInteger
	case TypeFloat:
		return TypeFloat
	case TypeDate:
		return TypeDate
	case TypeBoolean:
		return TypeBoolean
	case TypeTextOnly:
		return TypeTextOnly
	case TypeCategorical:
		return TypeCategorical
	case TypeEmail:
		return TypeEmail
	case TypeURL:
		return TypeURL
	case TypeJSON:
		return TypeJSON
	default:
		return TypeString
	}
}

// HeaderDef describes one canonical column: its internal identifier,
// user-facing label, declared semantic type and the alternate spellings
// that should map onto it. For categorical columns AllowedValues
// carries the membership list.
type HeaderDef struct {
	Value         string       `db:"value" yaml:"value" json:"value"`
	Label         string       `db:"label" yaml:"label" json:"label"`
	Type          SemanticType `db:"type" yaml:"type" json:"type"`
	Aliases       []string     `yaml:"aliases" json:"aliases"`
	AllowedValues []string     `yaml:"allowed_values,omitempty" json:"allowed_values,omitempty"`
	Required      bool         `db:"required" yaml:"required" json:"required"`
}

// MissingColumn describes a required canonical column that was absent
// from an uploaded frame
type MissingColumn struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// ValidateHeaderDefs checks the header definition set for duplicate
// canonical values
func ValidateHeaderDefs(defs []HeaderDef) error {
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if def.Value == "" {
			return fmt.Errorf("header definition with empty canonical value (label %q)", def.Label)
		}
		if _, dup := seen[def.Value]; dup {
			return fmt.Errorf("duplicate canonical value %q in header definitions", def.Value)
		}
		seen[def.Value] = struct{}{}
	}
	return nil
}
