package policy

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

type Warning struct {
	RuleID  string   `json:"ruleId"`
	Message string   `json:"message"`
	Start   Position `json:"start"`
	End     Position `json:"end"`
}

type Result struct {
	Warnings []Warning `json:"warnings"`
	Errors   []Warning `json:"errors"`
}

func (r *Result) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// Evaluate runs every enabled rule of the effective policy against the schema. A nil policy
// yields an empty result.
func (r *Registry) Evaluate(schema *ast.Schema, effective *Policy) (*Result, error) {
	result := &Result{}
	if effective == nil || schema == nil {
		return result, nil
	}

	for _, instance := range effective.Rules {
		if instance.Severity == SeverityOff {
			continue
		}
		rule, ok := r.rules[instance.RuleID]
		if !ok {
			continue
		}

		findings, err := rule.Check(schema, instance.Configuration)
		if err != nil {
			return nil, fmt.Errorf("error checking rule %s: %w", instance.RuleID, err)
		}

		for _, finding := range findings {
			warning := Warning{
				RuleID:  instance.RuleID,
				Message: finding.Message,
				Start:   finding.Start,
				End:     finding.End,
			}
			if instance.Severity == SeverityError {
				result.Errors = append(result.Errors, warning)
			} else {
				result.Warnings = append(result.Warnings, warning)
			}
		}
	}

	return result, nil
}
