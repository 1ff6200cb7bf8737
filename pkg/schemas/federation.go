package schemas

import (
	"strings"
	"unicode"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

const federationPreludeSDL = `
scalar FieldSet
scalar link__Import
scalar _Any

enum link__Purpose {
  SECURITY
  EXECUTION
}

directive @key(fields: FieldSet!, resolvable: Boolean = true) repeatable on OBJECT | INTERFACE
directive @requires(fields: FieldSet!) on FIELD_DEFINITION
directive @provides(fields: FieldSet!) on FIELD_DEFINITION
directive @external(reason: String) on OBJECT | FIELD_DEFINITION
directive @shareable repeatable on OBJECT | FIELD_DEFINITION
directive @extends on OBJECT | INTERFACE
directive @override(from: String!) on FIELD_DEFINITION
directive @inaccessible on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION
directive @tag(name: String!) repeatable on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION
directive @link(url: String!, as: String, import: [link__Import], for: link__Purpose) repeatable on SCHEMA
directive @interfaceObject on OBJECT
directive @composeDirective(name: String!) repeatable on SCHEMA
`

var federationPrelude = &ast.Source{Name: "federation.graphql", Input: federationPreludeSDL, BuiltIn: true}

var federationDirectiveNames = map[string]bool{
	"key":              true,
	"requires":         true,
	"provides":         true,
	"external":         true,
	"shareable":        true,
	"extends":          true,
	"override":         true,
	"inaccessible":     true,
	"tag":              true,
	"link":             true,
	"interfaceObject":  true,
	"composeDirective": true,
}

var federationTypeNames = map[string]bool{
	"FieldSet":      true,
	"link__Import":  true,
	"link__Purpose": true,
	"_Any":          true,
	"_Entity":       true,
	"_Service":      true,
}

// supergraph directives that survive into the supergraph SDL
var supergraphDirectiveNames = map[string]bool{
	"tag":          true,
	"inaccessible": true,
}

const supergraphHeaderSDL = `
scalar join__FieldSet
scalar link__Import

enum link__Purpose {
  SECURITY
  EXECUTION
}

directive @join__graph(name: String!, url: String!) on ENUM_VALUE
directive @join__type(graph: join__Graph!, key: join__FieldSet, extension: Boolean! = false, resolvable: Boolean! = true) repeatable on OBJECT | INTERFACE | UNION | ENUM | INPUT_OBJECT | SCALAR
directive @join__field(graph: join__Graph, requires: join__FieldSet, provides: join__FieldSet, external: Boolean) repeatable on FIELD_DEFINITION | INPUT_FIELD_DEFINITION
directive @join__implements(graph: join__Graph!, interface: String!) repeatable on OBJECT | INTERFACE
directive @link(url: String, as: String, for: link__Purpose, import: [link__Import]) repeatable on SCHEMA
directive @inaccessible on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION
directive @tag(name: String!) repeatable on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION
`

// keyFieldSets returns the raw field sets of every @key on the definition.
func keyFieldSets(def *ast.Definition) []string {
	var sets []string
	for _, key := range def.Directives.ForNames("key") {
		arg := key.Arguments.ForName("fields")
		if arg == nil || arg.Value == nil {
			continue
		}
		sets = append(sets, arg.Value.Raw)
	}
	return sets
}

// keyFieldNames returns the top level field names that take part in any @key.
func keyFieldNames(def *ast.Definition) map[string]bool {
	names := make(map[string]bool)
	tokens := strings.NewReplacer("{", " { ", "}", " } ")
	for _, set := range keyFieldSets(def) {
		depth := 0
		for _, token := range strings.Fields(tokens.Replace(set)) {
			switch token {
			case "{":
				depth++
			case "}":
				depth--
			default:
				if depth == 0 {
					names[token] = true
				}
			}
		}
	}
	return names
}

func graphEnumValue(serviceName string) string {
	var b strings.Builder
	for i, r := range serviceName {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func enumArgument(name string, value string) *ast.Argument {
	return &ast.Argument{Name: name, Value: &ast.Value{Kind: ast.EnumValue, Raw: value}}
}

func stringArgument(name string, value string) *ast.Argument {
	return &ast.Argument{Name: name, Value: &ast.Value{Kind: ast.StringValue, Raw: value}}
}

func supergraphDirectives(directives ast.DirectiveList) ast.DirectiveList {
	out := make(ast.DirectiveList, 0, len(directives))
	for _, directive := range directives {
		if federationDirectiveNames[directive.Name] && !supergraphDirectiveNames[directive.Name] {
			continue
		}
		out = append(out, directive)
	}
	return out
}

// supergraph prints the routing schema: every definition annotated with the services that
// own it.
func (c *composition) supergraph() string {
	doc, err := parser.ParseSchema(&ast.Source{Name: "supergraph.graphql", Input: supergraphHeaderSDL})
	if err != nil {
		return ""
	}

	graphs := &ast.Definition{Kind: ast.Enum, Name: "join__Graph"}
	for _, service := range c.services {
		graphs.EnumValues = append(graphs.EnumValues, &ast.EnumValueDefinition{
			Name: graphEnumValue(service.Name),
			Directives: ast.DirectiveList{{
				Name:      "join__graph",
				Arguments: ast.ArgumentList{stringArgument("name", service.Name), stringArgument("url", service.URL)},
			}},
		})
	}
	doc.Definitions = append(doc.Definitions, graphs)

	schema := &ast.SchemaDefinition{
		Directives: ast.DirectiveList{
			{Name: "link", Arguments: ast.ArgumentList{stringArgument("url", "https://specs.apollo.dev/link/v1.0")}},
			{Name: "link", Arguments: ast.ArgumentList{
				stringArgument("url", "https://specs.apollo.dev/join/v0.3"),
				enumArgument("for", "EXECUTION"),
			}},
		},
	}

	for _, def := range c.definitions {
		if isRootType(def.Name) {
			schema.OperationTypes = append(schema.OperationTypes, &ast.OperationTypeDefinition{
				Operation: ast.Operation(strings.ToLower(def.Name)),
				Type:      def.Name,
			})
		}

		clone := cloneDefinition(def)
		clone.Directives = supergraphDirectives(clone.Directives)
		owners := c.typeOwners[def.Name]
		for _, owner := range owners {
			keys := c.typeKeys[def.Name][owner]
			if len(keys) == 0 {
				clone.Directives = append(clone.Directives, &ast.Directive{
					Name:      "join__type",
					Arguments: ast.ArgumentList{enumArgument("graph", graphEnumValue(owner))},
				})
				continue
			}
			for _, key := range keys {
				clone.Directives = append(clone.Directives, &ast.Directive{
					Name:      "join__type",
					Arguments: ast.ArgumentList{enumArgument("graph", graphEnumValue(owner)), stringArgument("key", key)},
				})
			}
		}

		for _, field := range clone.Fields {
			field.Directives = supergraphDirectives(field.Directives)
			for _, arg := range field.Arguments {
				arg.Directives = supergraphDirectives(arg.Directives)
			}
			fieldOwners := c.fieldOwners[def.Name+"."+field.Name]
			if len(owners) < 2 || len(fieldOwners) == len(owners) {
				continue
			}
			for _, owner := range fieldOwners {
				field.Directives = append(field.Directives, &ast.Directive{
					Name:      "join__field",
					Arguments: ast.ArgumentList{enumArgument("graph", graphEnumValue(owner))},
				})
			}
		}
		for _, value := range clone.EnumValues {
			value.Directives = supergraphDirectives(value.Directives)
		}

		doc.Definitions = append(doc.Definitions, clone)
	}

	doc.Schema = append(doc.Schema, schema)
	doc.Directives = append(doc.Directives, c.directives...)

	return printSchemaDocument(doc)
}
