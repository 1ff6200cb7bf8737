package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/vektah/gqlparser/v2/ast"
)

type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Finding is a single rule violation in a schema.
type Finding struct {
	Message string
	Start   Position
	End     Position
}

type Rule interface {
	ID() string
	// ConfigSchema is the JSON schema the rule configuration must satisfy.
	ConfigSchema() string
	Check(schema *ast.Schema, config json.RawMessage) ([]Finding, error)
}

// ConfigurationError is returned when a policy can not be stored.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

type Registry struct {
	rules   map[string]Rule
	schemas map[string]*jsonschema.Schema
}

func NewRegistry(rules ...Rule) (*Registry, error) {
	r := &Registry{
		rules:   make(map[string]Rule, len(rules)),
		schemas: make(map[string]*jsonschema.Schema, len(rules)),
	}

	for _, rule := range rules {
		url := fmt.Sprintf("rules/%s.json", rule.ID())
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, bytes.NewReader([]byte(rule.ConfigSchema()))); err != nil {
			return nil, fmt.Errorf("error adding config schema for rule %s: %w", rule.ID(), err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("error compiling config schema for rule %s: %w", rule.ID(), err)
		}

		r.rules[rule.ID()] = rule
		r.schemas[rule.ID()] = schema
	}

	return r, nil
}

// DefaultRegistry contains every rule shipped with the registry.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		&requireDescriptionRule{},
		&namingConventionRule{},
		&requireDeprecationReasonRule{},
		&noTypenamePrefixRule{},
		&alphabetizeRule{},
	)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) GetRule(id string) (Rule, bool) {
	rule, ok := r.rules[id]
	return rule, ok
}

func (r *Registry) RuleIDs() []string {
	ids := make([]string, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks every rule instance of a policy before it is stored.
func (r *Registry) Validate(rules []RuleInstance) error {
	for _, instance := range rules {
		schema, ok := r.schemas[instance.RuleID]
		if !ok {
			return &ConfigurationError{Message: fmt.Sprintf("Unkonwn rule name passed: %q", instance.RuleID)}
		}
		if !instance.Severity.Valid() {
			return &ConfigurationError{Message: fmt.Sprintf("Invalid severity %q for rule %q", instance.Severity, instance.RuleID)}
		}

		config := instance.Configuration
		if len(bytes.TrimSpace(config)) == 0 {
			config = json.RawMessage("{}")
		}
		decoder := json.NewDecoder(bytes.NewReader(config))
		decoder.UseNumber()
		var value any
		if err := decoder.Decode(&value); err != nil {
			return &ConfigurationError{Message: fmt.Sprintf("Failed to validate rule %q configuration: %s", instance.RuleID, err)}
		}
		if err := schema.Validate(value); err != nil {
			return &ConfigurationError{Message: fmt.Sprintf("Failed to validate rule %q configuration: %s", instance.RuleID, validationDetail(err))}
		}
	}
	return nil
}

func validationDetail(err error) string {
	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	for len(validationErr.Causes) > 0 {
		validationErr = validationErr.Causes[0]
	}
	location := validationErr.InstanceLocation
	if location == "" {
		location = "/"
	}
	return fmt.Sprintf("%s: %s", location, validationErr.Message)
}
