package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(id string, severity Severity) RuleInstance {
	return RuleInstance{RuleID: id, Severity: severity}
}

func TestMerge(t *testing.T) {
	// neither exists means no policy at all
	assert.Nil(t, Merge(nil, nil))

	project := &Policy{Rules: []RuleInstance{rule("alphabetize", SeverityError), rule("naming-convention", SeverityWarning)}}
	organization := &Policy{AllowOverrides: true, Rules: []RuleInstance{rule("require-description", SeverityWarning), rule("alphabetize", SeverityWarning)}}

	// only one exists
	assert.Equal(t, project.Rules, Merge(nil, project).Rules)
	assert.Equal(t, organization.Rules, Merge(organization, nil).Rules)

	// project rules override organization rules with the same id and project only rules are appended
	merged := Merge(organization, project)
	require.NotNil(t, merged)
	assert.Equal(t, []RuleInstance{
		rule("require-description", SeverityWarning),
		rule("alphabetize", SeverityError),
		rule("naming-convention", SeverityWarning),
	}, merged.Rules)

	// the inputs are not modified
	assert.Equal(t, SeverityWarning, organization.Rules[1].Severity)

	// without overrides the project policy is ignored entirely
	organization.AllowOverrides = false
	merged = Merge(organization, project)
	assert.Equal(t, organization.Rules, merged.Rules)
	assert.Equal(t, organization.Rules, Merge(organization, nil).Rules)
}

func TestMergeOverrideGating(t *testing.T) {
	organization := &Policy{Rules: []RuleInstance{rule("require-description", SeverityError)}}
	projects := []*Policy{
		nil,
		{},
		{Rules: []RuleInstance{rule("require-description", SeverityOff)}},
		{Rules: []RuleInstance{rule("alphabetize", SeverityError), rule("no-typename-prefix", SeverityWarning)}},
	}

	for _, project := range projects {
		organization.AllowOverrides = false
		assert.Equal(t, organization.Rules, Merge(organization, project).Rules)

		organization.AllowOverrides = true
		merged := Merge(organization, project)
		if project == nil {
			continue
		}
		for _, projectRule := range project.Rules {
			assert.Contains(t, merged.Rules, projectRule)
		}
	}
}

func TestRegistryValidate(t *testing.T) {
	registry := DefaultRegistry()
	assert.Equal(t, []string{"alphabetize", "naming-convention", "no-typename-prefix", "require-deprecation-reason", "require-description"}, registry.RuleIDs())

	_, ok := registry.GetRule("require-description")
	assert.True(t, ok)

	// valid rules
	assert.NoError(t, registry.Validate([]RuleInstance{
		{RuleID: "require-description", Severity: SeverityError, Configuration: json.RawMessage(`{"types": true, "fields": false}`)},
		{RuleID: "naming-convention", Severity: SeverityWarning, Configuration: json.RawMessage(`{"types": "PascalCase"}`)},
		{RuleID: "alphabetize", Severity: SeverityOff},
	}))

	// unknown rule
	err := registry.Validate([]RuleInstance{{RuleID: "does-not-exist", Severity: SeverityError}})
	configErr := &ConfigurationError{}
	require.ErrorAs(t, err, &configErr)
	assert.Contains(t, configErr.Message, "Unkonwn rule name passed")
	assert.Contains(t, configErr.Message, "does-not-exist")

	// configuration failing the rule schema
	err = registry.Validate([]RuleInstance{{RuleID: "naming-convention", Severity: SeverityError, Configuration: json.RawMessage(`{"types": "kebab-case"}`)}})
	require.ErrorAs(t, err, &configErr)
	assert.Contains(t, configErr.Message, `Failed to validate rule "naming-convention" configuration: `)
	assert.Contains(t, configErr.Message, "/types")

	err = registry.Validate([]RuleInstance{{RuleID: "require-description", Severity: SeverityError, Configuration: json.RawMessage(`{"unknown": true}`)}})
	require.ErrorAs(t, err, &configErr)
	assert.Contains(t, configErr.Message, `Failed to validate rule "require-description" configuration: `)

	// numbers are not booleans
	err = registry.Validate([]RuleInstance{{RuleID: "require-description", Severity: SeverityError, Configuration: json.RawMessage(`{"types": 1}`)}})
	require.ErrorAs(t, err, &configErr)
	assert.Contains(t, configErr.Message, "/types")

	// configuration that is not json
	err = registry.Validate([]RuleInstance{{RuleID: "require-description", Severity: SeverityError, Configuration: json.RawMessage(`{"types":`)}})
	require.ErrorAs(t, err, &configErr)
	assert.Contains(t, configErr.Message, `Failed to validate rule "require-description" configuration: `)

	// invalid severity
	err = registry.Validate([]RuleInstance{{RuleID: "alphabetize", Severity: "LOUD"}})
	assert.Error(t, err)
}
