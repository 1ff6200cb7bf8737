package schemas

import (
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

var builtinScalars = map[string]bool{
	"Int":     true,
	"Float":   true,
	"String":  true,
	"Boolean": true,
	"ID":      true,
}

var rootTypeNames = []string{"Query", "Mutation", "Subscription"}

func isRootType(name string) bool {
	for _, root := range rootTypeNames {
		if root == name {
			return true
		}
	}
	return false
}

func isIntrospection(name string) bool {
	return strings.HasPrefix(name, "__")
}

func cloneDefinitions(definitions ast.DefinitionList) ast.DefinitionList {
	clones := make(ast.DefinitionList, 0, len(definitions))
	for _, def := range definitions {
		clones = append(clones, cloneDefinition(def))
	}
	return clones
}

func cloneDefinition(def *ast.Definition) *ast.Definition {
	clone := *def
	clone.Directives = append(ast.DirectiveList(nil), def.Directives...)
	clone.Interfaces = append([]string(nil), def.Interfaces...)
	clone.Types = append([]string(nil), def.Types...)

	clone.Fields = make(ast.FieldList, 0, len(def.Fields))
	for _, field := range def.Fields {
		clone.Fields = append(clone.Fields, cloneField(field))
	}

	clone.EnumValues = make(ast.EnumValueList, 0, len(def.EnumValues))
	for _, value := range def.EnumValues {
		valueClone := *value
		valueClone.Directives = append(ast.DirectiveList(nil), value.Directives...)
		clone.EnumValues = append(clone.EnumValues, &valueClone)
	}

	return &clone
}

func cloneField(field *ast.FieldDefinition) *ast.FieldDefinition {
	clone := *field
	clone.Directives = append(ast.DirectiveList(nil), field.Directives...)
	clone.Arguments = make(ast.ArgumentDefinitionList, 0, len(field.Arguments))
	for _, arg := range field.Arguments {
		argClone := *arg
		argClone.Directives = append(ast.DirectiveList(nil), arg.Directives...)
		clone.Arguments = append(clone.Arguments, &argClone)
	}
	return &clone
}

// tagNames returns the values of all @tag(name:) usages in the list.
func tagNames(directives ast.DirectiveList) []string {
	var names []string
	for _, directive := range directives.ForNames("tag") {
		arg := directive.Arguments.ForName("name")
		if arg == nil || arg.Value == nil {
			continue
		}
		names = append(names, arg.Value.Raw)
	}
	return names
}

func hasAnyTag(directives ast.DirectiveList, tags []string) bool {
	for _, name := range tagNames(directives) {
		for _, tag := range tags {
			if name == tag {
				return true
			}
		}
	}
	return false
}

func isInaccessible(directives ast.DirectiveList) bool {
	return directives.ForName("inaccessible") != nil
}

func directiveKey(directive *ast.Directive) string {
	var b strings.Builder
	b.WriteString(directive.Name)
	for _, arg := range directive.Arguments {
		b.WriteString("|")
		b.WriteString(arg.Name)
		b.WriteString("=")
		if arg.Value != nil {
			b.WriteString(arg.Value.String())
		}
	}
	return b.String()
}

func mergeDirectives(existing ast.DirectiveList, incoming ast.DirectiveList) ast.DirectiveList {
	seen := make(map[string]bool, len(existing))
	for _, directive := range existing {
		seen[directiveKey(directive)] = true
	}
	for _, directive := range incoming {
		key := directiveKey(directive)
		if seen[key] {
			continue
		}
		seen[key] = true
		existing = append(existing, directive)
	}
	return existing
}

func appendUnique(list []string, values ...string) []string {
	for _, value := range values {
		found := false
		for _, existing := range list {
			if existing == value {
				found = true
				break
			}
		}
		if !found {
			list = append(list, value)
		}
	}
	return list
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// referencedTypeNames lists every named type a definition points at.
func referencedTypeNames(def *ast.Definition) []string {
	var names []string
	for _, field := range def.Fields {
		names = append(names, field.Type.Name())
		for _, arg := range field.Arguments {
			names = append(names, arg.Type.Name())
		}
	}
	names = append(names, def.Interfaces...)
	names = append(names, def.Types...)
	return names
}
