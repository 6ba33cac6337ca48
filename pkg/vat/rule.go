// pkg/vat/rule.go
package vat

import (
	"fmt"
	"strings"
)

// Rule defines the VAT rates for one (product_type, country) pair.
// Rates are percentages stored as whole numbers: 19 means 19%.
type Rule struct {
	ProductType     string  `db:"product_type" yaml:"product_type" json:"product_type"`
	Country         string  `db:"country" yaml:"country" json:"country"`
	VATRate         float64 `db:"vat_rate" yaml:"vat_rate" json:"vat_rate"`
	ShippingVATRate float64 `db:"shipping_vat_rate" yaml:"shipping_vat_rate" json:"shipping_vat_rate"`
}

// RuleSet holds VAT rules keyed by the lower-cased
// (product_type, country) pair. Lookup is exact-match only.
type RuleSet struct {
	rules map[string]Rule
}

// NewRuleSet builds a RuleSet, rejecting duplicate keys
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	set := &RuleSet{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		key := ruleKey(rule.ProductType, rule.Country)
		if _, dup := set.rules[key]; dup {
			return nil, fmt.Errorf("duplicate VAT rule for (%s, %s)", rule.ProductType, rule.Country)
		}
		set.rules[key] = rule
	}
	return set, nil
}

// Lookup returns the rule for a (product_type, country) pair. Both
// inputs are trimmed and lower-cased before matching; there is no
// fuzzy matching.
func (s *RuleSet) Lookup(productType, country string) (Rule, bool) {
	rule, ok := s.rules[ruleKey(productType, country)]
	return rule, ok
}

// Len returns the number of rules in the set
func (s *RuleSet) Len() int {
	return len(s.rules)
}

func ruleKey(productType, country string) string {
	return strings.ToLower(strings.TrimSpace(productType)) + "|" + strings.ToLower(strings.TrimSpace(country))
}
