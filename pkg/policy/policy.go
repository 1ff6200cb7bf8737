package policy

import (
	"encoding/json"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityOff     Severity = "OFF"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityOff:
		return true
	default:
		return false
	}
}

type RuleInstance struct {
	RuleID        string          `json:"ruleId"`
	Severity      Severity        `json:"severity"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

type Policy struct {
	AllowOverrides bool           `json:"allowOverrides"`
	Rules          []RuleInstance `json:"rules"`
}

// Merge computes the effective policy of a project. A nil result means no policy applies, which
// is different from an empty policy.
//
// When the organization forbids overrides the project policy is ignored. Otherwise project rules
// replace organization rules with the same id and project only rules are appended.
func Merge(organization *Policy, project *Policy) *Policy {
	switch {
	case organization == nil && project == nil:
		return nil
	case organization == nil:
		return clonePolicy(project)
	case project == nil || !organization.AllowOverrides:
		return clonePolicy(organization)
	}

	merged := clonePolicy(organization)
	for _, rule := range project.Rules {
		replaced := false
		for i := range merged.Rules {
			if merged.Rules[i].RuleID == rule.RuleID {
				merged.Rules[i] = rule
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Rules = append(merged.Rules, rule)
		}
	}
	return merged
}

func clonePolicy(p *Policy) *Policy {
	return &Policy{
		AllowOverrides: p.AllowOverrides,
		Rules:          append([]RuleInstance{}, p.Rules...),
	}
}
