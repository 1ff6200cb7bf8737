package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

func decodeConfig(config json.RawMessage, out any) error {
	if len(strings.TrimSpace(string(config))) == 0 {
		return nil
	}
	if err := json.Unmarshal(config, out); err != nil {
		return fmt.Errorf("error decoding rule configuration: %w", err)
	}
	return nil
}

// userTypes returns the non built in definitions in name order.
func userTypes(schema *ast.Schema) []*ast.Definition {
	names := make([]string, 0, len(schema.Types))
	for name, def := range schema.Types {
		if def.BuiltIn || strings.HasPrefix(name, "__") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]*ast.Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, schema.Types[name])
	}
	return defs
}

func userFields(def *ast.Definition) ast.FieldList {
	fields := make(ast.FieldList, 0, len(def.Fields))
	for _, field := range def.Fields {
		if strings.HasPrefix(field.Name, "__") {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

func findingAt(position *ast.Position, name string, message string) Finding {
	finding := Finding{Message: message}
	if position != nil {
		finding.Start = Position{Line: position.Line, Column: position.Column}
		finding.End = Position{Line: position.Line, Column: position.Column + len(name)}
	}
	return finding
}

type requireDescriptionRule struct{}

type requireDescriptionConfig struct {
	Types      *bool `json:"types"`
	Fields     *bool `json:"fields"`
	EnumValues *bool `json:"enumValues"`
}

func (r *requireDescriptionRule) ID() string {
	return "require-description"
}

func (r *requireDescriptionRule) ConfigSchema() string {
	return `{
  "type": "object",
  "properties": {
    "types": {"type": "boolean"},
    "fields": {"type": "boolean"},
    "enumValues": {"type": "boolean"}
  },
  "additionalProperties": false
}`
}

func (r *requireDescriptionRule) Check(schema *ast.Schema, raw json.RawMessage) ([]Finding, error) {
	config := &requireDescriptionConfig{}
	if err := decodeConfig(raw, config); err != nil {
		return nil, err
	}
	enabled := func(flag *bool, fallback bool) bool {
		if flag == nil {
			return fallback
		}
		return *flag
	}

	var findings []Finding
	for _, def := range userTypes(schema) {
		if enabled(config.Types, true) && strings.TrimSpace(def.Description) == "" {
			findings = append(findings, findingAt(def.Position, def.Name, fmt.Sprintf(`Description is required for type "%s"`, def.Name)))
		}
		if enabled(config.Fields, false) {
			for _, field := range userFields(def) {
				if strings.TrimSpace(field.Description) == "" {
					findings = append(findings, findingAt(field.Position, field.Name, fmt.Sprintf(`Description is required for field "%s.%s"`, def.Name, field.Name)))
				}
			}
		}
		if enabled(config.EnumValues, false) {
			for _, value := range def.EnumValues {
				if strings.TrimSpace(value.Description) == "" {
					findings = append(findings, findingAt(value.Position, value.Name, fmt.Sprintf(`Description is required for enum value "%s.%s"`, def.Name, value.Name)))
				}
			}
		}
	}
	return findings, nil
}

var namingStyles = map[string]*regexp.Regexp{
	"camelCase":  regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`),
	"PascalCase": regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`),
	"snake_case": regexp.MustCompile(`^[a-z][a-z0-9_]*$`),
	"UPPER_CASE": regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`),
}

type namingConventionRule struct{}

type namingConventionConfig struct {
	Types      string `json:"types"`
	Fields     string `json:"fields"`
	EnumValues string `json:"enumValues"`
}

func (r *namingConventionRule) ID() string {
	return "naming-convention"
}

func (r *namingConventionRule) ConfigSchema() string {
	return `{
  "type": "object",
  "properties": {
    "types": {"enum": ["camelCase", "PascalCase", "snake_case", "UPPER_CASE"]},
    "fields": {"enum": ["camelCase", "PascalCase", "snake_case", "UPPER_CASE"]},
    "enumValues": {"enum": ["camelCase", "PascalCase", "snake_case", "UPPER_CASE"]}
  },
  "additionalProperties": false
}`
}

func (r *namingConventionRule) Check(schema *ast.Schema, raw json.RawMessage) ([]Finding, error) {
	config := &namingConventionConfig{Types: "PascalCase", Fields: "camelCase", EnumValues: "UPPER_CASE"}
	if err := decodeConfig(raw, config); err != nil {
		return nil, err
	}

	check := func(style string, kind string, name string, position *ast.Position) []Finding {
		pattern, ok := namingStyles[style]
		if !ok || pattern.MatchString(name) {
			return nil
		}
		return []Finding{findingAt(position, name, fmt.Sprintf(`%s "%s" should be in %s format`, kind, name, style))}
	}

	var findings []Finding
	for _, def := range userTypes(schema) {
		findings = append(findings, check(config.Types, "Type", def.Name, def.Position)...)
		for _, field := range userFields(def) {
			findings = append(findings, check(config.Fields, "Field", field.Name, field.Position)...)
		}
		for _, value := range def.EnumValues {
			findings = append(findings, check(config.EnumValues, "Enum value", value.Name, value.Position)...)
		}
	}
	return findings, nil
}

type requireDeprecationReasonRule struct{}

func (r *requireDeprecationReasonRule) ID() string {
	return "require-deprecation-reason"
}

func (r *requireDeprecationReasonRule) ConfigSchema() string {
	return `{"type": "object", "additionalProperties": false}`
}

func (r *requireDeprecationReasonRule) Check(schema *ast.Schema, _ json.RawMessage) ([]Finding, error) {
	missingReason := func(directives ast.DirectiveList) bool {
		deprecated := directives.ForName("deprecated")
		if deprecated == nil {
			return false
		}
		reason := deprecated.Arguments.ForName("reason")
		return reason == nil || reason.Value == nil || strings.TrimSpace(reason.Value.Raw) == ""
	}

	var findings []Finding
	for _, def := range userTypes(schema) {
		for _, field := range userFields(def) {
			if missingReason(field.Directives) {
				findings = append(findings, findingAt(field.Position, field.Name, fmt.Sprintf(`Deprecation reason is required for field "%s.%s"`, def.Name, field.Name)))
			}
		}
		for _, value := range def.EnumValues {
			if missingReason(value.Directives) {
				findings = append(findings, findingAt(value.Position, value.Name, fmt.Sprintf(`Deprecation reason is required for enum value "%s.%s"`, def.Name, value.Name)))
			}
		}
	}
	return findings, nil
}

type noTypenamePrefixRule struct{}

func (r *noTypenamePrefixRule) ID() string {
	return "no-typename-prefix"
}

func (r *noTypenamePrefixRule) ConfigSchema() string {
	return `{"type": "object", "additionalProperties": false}`
}

func (r *noTypenamePrefixRule) Check(schema *ast.Schema, _ json.RawMessage) ([]Finding, error) {
	var findings []Finding
	for _, def := range userTypes(schema) {
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			continue
		}
		prefix := strings.ToLower(def.Name)
		for _, field := range userFields(def) {
			name := strings.ToLower(field.Name)
			if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
				findings = append(findings, findingAt(field.Position, field.Name, fmt.Sprintf(`Field "%s" starts with the name of the parent type "%s"`, field.Name, def.Name)))
			}
		}
	}
	return findings, nil
}

type alphabetizeRule struct{}

type alphabetizeConfig struct {
	Fields bool `json:"fields"`
	Values bool `json:"values"`
}

func (r *alphabetizeRule) ID() string {
	return "alphabetize"
}

func (r *alphabetizeRule) ConfigSchema() string {
	return `{
  "type": "object",
  "properties": {
    "fields": {"type": "boolean"},
    "values": {"type": "boolean"}
  },
  "additionalProperties": false
}`
}

func (r *alphabetizeRule) Check(schema *ast.Schema, raw json.RawMessage) ([]Finding, error) {
	config := &alphabetizeConfig{Fields: true}
	if err := decodeConfig(raw, config); err != nil {
		return nil, err
	}

	var findings []Finding
	for _, def := range userTypes(schema) {
		if config.Fields {
			fields := userFields(def)
			for i := 1; i < len(fields); i++ {
				if fields[i].Name < fields[i-1].Name {
					findings = append(findings, findingAt(fields[i].Position, fields[i].Name,
						fmt.Sprintf(`Field "%s.%s" should be before "%s"`, def.Name, fields[i].Name, fields[i-1].Name)))
				}
			}
		}
		if config.Values {
			for i := 1; i < len(def.EnumValues); i++ {
				if def.EnumValues[i].Name < def.EnumValues[i-1].Name {
					findings = append(findings, findingAt(def.EnumValues[i].Position, def.EnumValues[i].Name,
						fmt.Sprintf(`Enum value "%s.%s" should be before "%s"`, def.Name, def.EnumValues[i].Name, def.EnumValues[i-1].Name)))
				}
			}
		}
	}
	return findings, nil
}
