package schemas

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// ContractFilter describes which parts of a composite schema a contract exposes.
type ContractFilter struct {
	IncludeTags            []string
	ExcludeTags            []string
	RemoveUnreachableTypes bool
}

// ApplyContractFilter derives a contract schema from a composed schema. Include tags are
// applied before exclude tags.
func ApplyContractFilter(base *ComposedSchema, filter ContractFilter) (*ComposedSchema, []CompositionError) {
	if base == nil || base.composition == nil {
		return nil, []CompositionError{{Message: "Contracts can only be applied to a composite schema"}}
	}

	definitions := cloneDefinitions(base.composition.definitions)
	if len(filter.IncludeTags) > 0 {
		definitions = includeTagged(definitions, filter.IncludeTags)
	}
	if len(filter.ExcludeTags) > 0 {
		definitions = excludeTagged(definitions, filter.ExcludeTags)
	}

	definitions = removeDangling(definitions)
	if filter.RemoveUnreachableTypes {
		definitions = removeDangling(removeUnreachable(definitions))
	}

	if errs := emptyTypeErrors(definitions); len(errs) > 0 {
		return nil, errs
	}

	contract := *base.composition
	contract.definitions = definitions
	return contract.build()
}

func includeTagged(definitions ast.DefinitionList, tags []string) ast.DefinitionList {
	for _, def := range definitions {
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			continue
		}
		if hasAnyTag(def.Directives, tags) {
			continue
		}
		fields := make(ast.FieldList, 0, len(def.Fields))
		for _, field := range def.Fields {
			if hasAnyTag(field.Directives, tags) {
				fields = append(fields, field)
			}
		}
		def.Fields = fields
	}
	return definitions
}

func excludeTagged(definitions ast.DefinitionList, tags []string) ast.DefinitionList {
	out := make(ast.DefinitionList, 0, len(definitions))
	for _, def := range definitions {
		if hasAnyTag(def.Directives, tags) {
			continue
		}

		fields := make(ast.FieldList, 0, len(def.Fields))
		for _, field := range def.Fields {
			if hasAnyTag(field.Directives, tags) {
				continue
			}
			args := make(ast.ArgumentDefinitionList, 0, len(field.Arguments))
			for _, arg := range field.Arguments {
				if !hasAnyTag(arg.Directives, tags) {
					args = append(args, arg)
				}
			}
			field.Arguments = args
			fields = append(fields, field)
		}
		def.Fields = fields

		values := make(ast.EnumValueList, 0, len(def.EnumValues))
		for _, value := range def.EnumValues {
			if !hasAnyTag(value.Directives, tags) {
				values = append(values, value)
			}
		}
		def.EnumValues = values

		out = append(out, def)
	}
	return out
}

// removeDangling repeatedly drops references to removed types, and types that became empty
// and are no longer referenced, until nothing changes.
func removeDangling(definitions ast.DefinitionList) ast.DefinitionList {
	for {
		changed := false
		exists := make(map[string]bool, len(definitions))
		for _, def := range definitions {
			exists[def.Name] = true
		}
		defined := func(name string) bool {
			return exists[name] || builtinScalars[name]
		}

		for _, def := range definitions {
			fields := make(ast.FieldList, 0, len(def.Fields))
			for _, field := range def.Fields {
				if !defined(field.Type.Name()) {
					changed = true
					continue
				}
				keep := true
				args := make(ast.ArgumentDefinitionList, 0, len(field.Arguments))
				for _, arg := range field.Arguments {
					if defined(arg.Type.Name()) {
						args = append(args, arg)
						continue
					}
					changed = true
					if arg.Type.NonNull && arg.DefaultValue == nil {
						keep = false
					}
				}
				if !keep {
					continue
				}
				field.Arguments = args
				fields = append(fields, field)
			}
			def.Fields = fields

			interfaces := make([]string, 0, len(def.Interfaces))
			for _, name := range def.Interfaces {
				if defined(name) {
					interfaces = append(interfaces, name)
				} else {
					changed = true
				}
			}
			def.Interfaces = interfaces

			members := make([]string, 0, len(def.Types))
			for _, name := range def.Types {
				if defined(name) {
					members = append(members, name)
				} else {
					changed = true
				}
			}
			def.Types = members
		}

		referenced := make(map[string]bool)
		for _, def := range definitions {
			for _, name := range referencedTypeNames(def) {
				if name != def.Name {
					referenced[name] = true
				}
			}
		}

		out := make(ast.DefinitionList, 0, len(definitions))
		for _, def := range definitions {
			if isEmptyDefinition(def) && def.Name != "Query" && !referenced[def.Name] {
				changed = true
				continue
			}
			if def.Kind == ast.Enum && len(def.EnumValues) == 0 {
				changed = true
				continue
			}
			if def.Kind == ast.Union && len(def.Types) == 0 {
				changed = true
				continue
			}
			out = append(out, def)
		}
		definitions = out

		if !changed {
			return definitions
		}
	}
}

func isEmptyDefinition(def *ast.Definition) bool {
	switch def.Kind {
	case ast.Object, ast.Interface, ast.InputObject:
		return len(def.Fields) == 0
	default:
		return false
	}
}

// removeUnreachable keeps only the types reachable from the root operation types.
func removeUnreachable(definitions ast.DefinitionList) ast.DefinitionList {
	byName := make(map[string]*ast.Definition, len(definitions))
	implementations := make(map[string][]string)
	for _, def := range definitions {
		byName[def.Name] = def
		for _, name := range def.Interfaces {
			implementations[name] = append(implementations[name], def.Name)
		}
	}

	reachable := make(map[string]bool)
	var queue []string
	for _, root := range rootTypeNames {
		if byName[root] != nil {
			queue = append(queue, root)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if reachable[name] {
			continue
		}
		def := byName[name]
		if def == nil {
			continue
		}
		reachable[name] = true
		queue = append(queue, referencedTypeNames(def)...)
		queue = append(queue, implementations[name]...)
	}

	out := make(ast.DefinitionList, 0, len(reachable))
	for _, def := range definitions {
		if reachable[def.Name] {
			out = append(out, def)
		}
	}
	return out
}

func emptyTypeErrors(definitions ast.DefinitionList) []CompositionError {
	var errs []CompositionError
	hasQuery := false
	for _, def := range definitions {
		if def.Name == "Query" {
			hasQuery = true
		}
		if isEmptyDefinition(def) {
			errs = append(errs, CompositionError{
				Message: fmt.Sprintf(`Type "%s" is in the API schema but all of its fields are @inaccessible.`, def.Name),
				Path:    def.Name,
			})
		}
	}
	if !hasQuery {
		errs = append(errs, CompositionError{
			Message: `Type "Query" is in the API schema but all of its fields are @inaccessible.`,
			Path:    "Query",
		})
	}
	return errs
}
