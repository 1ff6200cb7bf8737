package schemas

import (
	"fmt"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

type Criticality string

const (
	CriticalityBreaking  Criticality = "BREAKING"
	CriticalityDangerous Criticality = "DANGEROUS"
	CriticalitySafe      Criticality = "SAFE"
)

type ChangeType string

const (
	ChangeTypeRemoved                   ChangeType = "TYPE_REMOVED"
	ChangeTypeAdded                     ChangeType = "TYPE_ADDED"
	ChangeTypeKindChanged               ChangeType = "TYPE_KIND_CHANGED"
	ChangeTypeDescriptionChanged        ChangeType = "TYPE_DESCRIPTION_CHANGED"
	ChangeFieldRemoved                  ChangeType = "FIELD_REMOVED"
	ChangeFieldAdded                    ChangeType = "FIELD_ADDED"
	ChangeFieldTypeChanged              ChangeType = "FIELD_TYPE_CHANGED"
	ChangeFieldDescriptionChanged       ChangeType = "FIELD_DESCRIPTION_CHANGED"
	ChangeFieldDeprecationAdded         ChangeType = "FIELD_DEPRECATION_ADDED"
	ChangeFieldDeprecationRemoved       ChangeType = "FIELD_DEPRECATION_REMOVED"
	ChangeFieldDeprecationReasonChanged ChangeType = "FIELD_DEPRECATION_REASON_CHANGED"
	ChangeFieldArgumentAdded            ChangeType = "FIELD_ARGUMENT_ADDED"
	ChangeFieldArgumentRemoved          ChangeType = "FIELD_ARGUMENT_REMOVED"
	ChangeFieldArgumentTypeChanged      ChangeType = "FIELD_ARGUMENT_TYPE_CHANGED"
	ChangeFieldArgumentDefaultChanged   ChangeType = "FIELD_ARGUMENT_DEFAULT_CHANGED"
	ChangeInputFieldAdded               ChangeType = "INPUT_FIELD_ADDED"
	ChangeInputFieldRemoved             ChangeType = "INPUT_FIELD_REMOVED"
	ChangeInputFieldTypeChanged         ChangeType = "INPUT_FIELD_TYPE_CHANGED"
	ChangeInputFieldDefaultChanged      ChangeType = "INPUT_FIELD_DEFAULT_VALUE_CHANGED"
	ChangeEnumValueAdded                ChangeType = "ENUM_VALUE_ADDED"
	ChangeEnumValueRemoved              ChangeType = "ENUM_VALUE_REMOVED"
	ChangeEnumValueDeprecationAdded     ChangeType = "ENUM_VALUE_DEPRECATION_ADDED"
	ChangeUnionMemberAdded              ChangeType = "UNION_MEMBER_ADDED"
	ChangeUnionMemberRemoved            ChangeType = "UNION_MEMBER_REMOVED"
	ChangeObjectInterfaceAdded          ChangeType = "OBJECT_TYPE_INTERFACE_ADDED"
	ChangeObjectInterfaceRemoved        ChangeType = "OBJECT_TYPE_INTERFACE_REMOVED"
	ChangeDirectiveRemoved              ChangeType = "DIRECTIVE_REMOVED"
	ChangeDirectiveAdded                ChangeType = "DIRECTIVE_ADDED"
)

type Change struct {
	Criticality Criticality
	Type        ChangeType
	Message     string
	Path        string
}

func (c Change) IsBreaking() bool {
	return c.Criticality == CriticalityBreaking
}

// Diff compares two schemas. A nil before schema is an initial publish and yields no changes.
// Changes are ordered by type name and then by member.
func Diff(before *ast.Schema, after *ast.Schema) []Change {
	if before == nil || after == nil {
		return nil
	}

	d := &differ{}
	for _, name := range typeNames(before, after) {
		oldDef := userDefinition(before, name)
		newDef := userDefinition(after, name)

		switch {
		case oldDef == nil && newDef == nil:
			continue
		case newDef == nil:
			d.add(CriticalityBreaking, ChangeTypeRemoved, name, "Type '%s' was removed", name)
		case oldDef == nil:
			d.add(CriticalitySafe, ChangeTypeAdded, name, "Type '%s' was added", name)
		case oldDef.Kind != newDef.Kind:
			d.add(CriticalityBreaking, ChangeTypeKindChanged, name, "'%s' kind changed from '%s' to '%s'", name, oldDef.Kind, newDef.Kind)
		default:
			d.definition(oldDef, newDef)
		}
	}

	d.directives(before, after)
	return d.changes
}

type differ struct {
	changes []Change
}

func (d *differ) add(criticality Criticality, changeType ChangeType, path string, format string, args ...any) {
	d.changes = append(d.changes, Change{
		Criticality: criticality,
		Type:        changeType,
		Message:     fmt.Sprintf(format, args...),
		Path:        path,
	})
}

func typeNames(before *ast.Schema, after *ast.Schema) []string {
	seen := make(map[string]bool, len(before.Types)+len(after.Types))
	for name := range before.Types {
		seen[name] = true
	}
	for name := range after.Types {
		seen[name] = true
	}
	return sortedKeys(seen)
}

func userDefinition(schema *ast.Schema, name string) *ast.Definition {
	def := schema.Types[name]
	if def == nil || def.BuiltIn || isIntrospection(name) {
		return nil
	}
	return def
}

func (d *differ) definition(oldDef *ast.Definition, newDef *ast.Definition) {
	name := newDef.Name
	if oldDef.Description != newDef.Description {
		d.add(CriticalitySafe, ChangeTypeDescriptionChanged, name, "Description of type '%s' changed", name)
	}

	switch newDef.Kind {
	case ast.Object, ast.Interface:
		d.outputFields(oldDef, newDef)
		d.interfaces(oldDef, newDef)
	case ast.InputObject:
		d.inputFields(oldDef, newDef)
	case ast.Enum:
		d.enumValues(oldDef, newDef)
	case ast.Union:
		d.unionMembers(oldDef, newDef)
	}
}

func (d *differ) outputFields(oldDef *ast.Definition, newDef *ast.Definition) {
	for _, oldField := range oldDef.Fields {
		if isIntrospection(oldField.Name) {
			continue
		}
		path := oldDef.Name + "." + oldField.Name
		newField := newDef.Fields.ForName(oldField.Name)
		if newField == nil {
			d.add(CriticalityBreaking, ChangeFieldRemoved, path, "Field '%s' was removed from %s '%s'", oldField.Name, kindLabel(oldDef.Kind), oldDef.Name)
			continue
		}

		if oldField.Type.String() != newField.Type.String() {
			criticality := CriticalityBreaking
			if safeOutputChange(oldField.Type, newField.Type) {
				criticality = CriticalitySafe
			}
			d.add(criticality, ChangeFieldTypeChanged, path, "Field '%s' changed type from '%s' to '%s'", path, oldField.Type.String(), newField.Type.String())
		}
		if oldField.Description != newField.Description {
			d.add(CriticalitySafe, ChangeFieldDescriptionChanged, path, "Field '%s' description changed", path)
		}
		d.deprecation(path, oldField.Directives, newField.Directives)
		d.arguments(path, oldField, newField)
	}

	for _, newField := range newDef.Fields {
		if isIntrospection(newField.Name) || oldDef.Fields.ForName(newField.Name) != nil {
			continue
		}
		d.add(CriticalitySafe, ChangeFieldAdded, newDef.Name+"."+newField.Name, "Field '%s' was added to %s '%s'", newField.Name, kindLabel(newDef.Kind), newDef.Name)
	}
}

func (d *differ) deprecation(path string, oldDirectives ast.DirectiveList, newDirectives ast.DirectiveList) {
	oldDeprecated := oldDirectives.ForName("deprecated")
	newDeprecated := newDirectives.ForName("deprecated")
	switch {
	case oldDeprecated == nil && newDeprecated != nil:
		d.add(CriticalitySafe, ChangeFieldDeprecationAdded, path, "Field '%s' is deprecated", path)
	case oldDeprecated != nil && newDeprecated == nil:
		d.add(CriticalitySafe, ChangeFieldDeprecationRemoved, path, "Field '%s' is no longer deprecated", path)
	case oldDeprecated != nil && deprecationReason(oldDeprecated) != deprecationReason(newDeprecated):
		d.add(CriticalitySafe, ChangeFieldDeprecationReasonChanged, path, "Deprecation reason on field '%s' has changed from '%s' to '%s'", path, deprecationReason(oldDeprecated), deprecationReason(newDeprecated))
	}
}

func deprecationReason(directive *ast.Directive) string {
	if arg := directive.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return ""
}

func (d *differ) arguments(path string, oldField *ast.FieldDefinition, newField *ast.FieldDefinition) {
	for _, oldArg := range oldField.Arguments {
		argPath := path + "." + oldArg.Name
		newArg := newField.Arguments.ForName(oldArg.Name)
		if newArg == nil {
			d.add(CriticalityBreaking, ChangeFieldArgumentRemoved, argPath, "Argument '%s: %s' was removed from field '%s'", oldArg.Name, oldArg.Type.String(), path)
			continue
		}
		if oldArg.Type.String() != newArg.Type.String() {
			criticality := CriticalityBreaking
			if safeInputChange(oldArg.Type, newArg.Type) {
				criticality = CriticalitySafe
			}
			d.add(criticality, ChangeFieldArgumentTypeChanged, argPath, "Type for argument '%s' on field '%s' changed from '%s' to '%s'", oldArg.Name, path, oldArg.Type.String(), newArg.Type.String())
		}
		if valueString(oldArg.DefaultValue) != valueString(newArg.DefaultValue) {
			d.add(CriticalityDangerous, ChangeFieldArgumentDefaultChanged, argPath, "Default value for argument '%s' on field '%s' changed from '%s' to '%s'", oldArg.Name, path, valueString(oldArg.DefaultValue), valueString(newArg.DefaultValue))
		}
	}

	for _, newArg := range newField.Arguments {
		if oldField.Arguments.ForName(newArg.Name) != nil {
			continue
		}
		criticality := CriticalitySafe
		if newArg.Type.NonNull && newArg.DefaultValue == nil {
			criticality = CriticalityBreaking
		}
		d.add(criticality, ChangeFieldArgumentAdded, path+"."+newArg.Name, "Argument '%s: %s' added to field '%s'", newArg.Name, newArg.Type.String(), path)
	}
}

func (d *differ) inputFields(oldDef *ast.Definition, newDef *ast.Definition) {
	for _, oldField := range oldDef.Fields {
		path := oldDef.Name + "." + oldField.Name
		newField := newDef.Fields.ForName(oldField.Name)
		if newField == nil {
			d.add(CriticalityBreaking, ChangeInputFieldRemoved, path, "Input field '%s' was removed from input object type '%s'", oldField.Name, oldDef.Name)
			continue
		}
		if oldField.Type.String() != newField.Type.String() {
			criticality := CriticalityBreaking
			if safeInputChange(oldField.Type, newField.Type) {
				criticality = CriticalitySafe
			}
			d.add(criticality, ChangeInputFieldTypeChanged, path, "Input field '%s' changed type from '%s' to '%s'", path, oldField.Type.String(), newField.Type.String())
		}
		if valueString(oldField.DefaultValue) != valueString(newField.DefaultValue) {
			d.add(CriticalityDangerous, ChangeInputFieldDefaultChanged, path, "Input field '%s' default value changed from '%s' to '%s'", path, valueString(oldField.DefaultValue), valueString(newField.DefaultValue))
		}
	}

	for _, newField := range newDef.Fields {
		if oldDef.Fields.ForName(newField.Name) != nil {
			continue
		}
		criticality := CriticalitySafe
		if newField.Type.NonNull && newField.DefaultValue == nil {
			criticality = CriticalityBreaking
		}
		d.add(criticality, ChangeInputFieldAdded, newDef.Name+"."+newField.Name, "Input field '%s' of type '%s' was added to input object type '%s'", newField.Name, newField.Type.String(), newDef.Name)
	}
}

func (d *differ) enumValues(oldDef *ast.Definition, newDef *ast.Definition) {
	for _, oldValue := range oldDef.EnumValues {
		path := oldDef.Name + "." + oldValue.Name
		newValue := newDef.EnumValues.ForName(oldValue.Name)
		if newValue == nil {
			d.add(CriticalityBreaking, ChangeEnumValueRemoved, path, "Enum value '%s' was removed from enum '%s'", oldValue.Name, oldDef.Name)
			continue
		}
		if oldValue.Directives.ForName("deprecated") == nil && newValue.Directives.ForName("deprecated") != nil {
			d.add(CriticalitySafe, ChangeEnumValueDeprecationAdded, path, "Enum value '%s' was deprecated", path)
		}
	}

	for _, newValue := range newDef.EnumValues {
		if oldDef.EnumValues.ForName(newValue.Name) != nil {
			continue
		}
		d.add(CriticalityDangerous, ChangeEnumValueAdded, newDef.Name+"."+newValue.Name, "Enum value '%s' was added to enum '%s'", newValue.Name, newDef.Name)
	}
}

func (d *differ) unionMembers(oldDef *ast.Definition, newDef *ast.Definition) {
	for _, member := range oldDef.Types {
		if !contains(newDef.Types, member) {
			d.add(CriticalityBreaking, ChangeUnionMemberRemoved, newDef.Name, "Member '%s' was removed from Union type '%s'", member, newDef.Name)
		}
	}
	for _, member := range newDef.Types {
		if !contains(oldDef.Types, member) {
			d.add(CriticalityDangerous, ChangeUnionMemberAdded, newDef.Name, "Member '%s' was added to Union type '%s'", member, newDef.Name)
		}
	}
}

func (d *differ) interfaces(oldDef *ast.Definition, newDef *ast.Definition) {
	for _, name := range oldDef.Interfaces {
		if !contains(newDef.Interfaces, name) {
			d.add(CriticalityBreaking, ChangeObjectInterfaceRemoved, newDef.Name, "'%s' object type no longer implements '%s' interface", newDef.Name, name)
		}
	}
	for _, name := range newDef.Interfaces {
		if !contains(oldDef.Interfaces, name) {
			d.add(CriticalityDangerous, ChangeObjectInterfaceAdded, newDef.Name, "'%s' object implements '%s' interface", newDef.Name, name)
		}
	}
}

func (d *differ) directives(before *ast.Schema, after *ast.Schema) {
	names := make(map[string]bool)
	for _, schema := range []*ast.Schema{before, after} {
		for name, directive := range schema.Directives {
			if !isBuiltinDirective(directive) {
				names[name] = true
			}
		}
	}

	for _, name := range sortedKeys(names) {
		_, hadBefore := before.Directives[name]
		_, hasAfter := after.Directives[name]
		switch {
		case hadBefore && !hasAfter:
			d.add(CriticalityBreaking, ChangeDirectiveRemoved, "@"+name, "Directive '%s' was removed", name)
		case !hadBefore && hasAfter:
			d.add(CriticalitySafe, ChangeDirectiveAdded, "@"+name, "Directive '%s' was added", name)
		}
	}
}

func isBuiltinDirective(directive *ast.DirectiveDefinition) bool {
	return directive.Position != nil && directive.Position.Src != nil && directive.Position.Src.BuiltIn
}

// safeOutputChange reports whether clients reading the old type can read the new one.
func safeOutputChange(oldType *ast.Type, newType *ast.Type) bool {
	if oldType.NonNull && !newType.NonNull {
		return false
	}
	if (oldType.Elem == nil) != (newType.Elem == nil) {
		return false
	}
	if oldType.Elem != nil {
		return safeOutputChange(oldType.Elem, newType.Elem)
	}
	return oldType.NamedType == newType.NamedType
}

// safeInputChange reports whether values valid for the old input type remain valid.
func safeInputChange(oldType *ast.Type, newType *ast.Type) bool {
	if !oldType.NonNull && newType.NonNull {
		return false
	}
	if (oldType.Elem == nil) != (newType.Elem == nil) {
		return false
	}
	if oldType.Elem != nil {
		return safeInputChange(oldType.Elem, newType.Elem)
	}
	return oldType.NamedType == newType.NamedType
}

func valueString(value *ast.Value) string {
	if value == nil {
		return ""
	}
	return value.String()
}

func kindLabel(kind ast.DefinitionKind) string {
	if kind == ast.Interface {
		return "interface"
	}
	return "object type"
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// SortChanges orders changes breaking first, then by path.
func SortChanges(changes []Change) {
	rank := map[Criticality]int{CriticalityBreaking: 0, CriticalityDangerous: 1, CriticalitySafe: 2}
	sort.SliceStable(changes, func(i, j int) bool {
		if rank[changes[i].Criticality] != rank[changes[j].Criticality] {
			return rank[changes[i].Criticality] < rank[changes[j].Criticality]
		}
		return changes[i].Path < changes[j].Path
	})
}
