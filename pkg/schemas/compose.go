package schemas

import (
	"context"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// NativeComposer composes schemas in process. Stitching projects merge type definitions by
// name, federation projects additionally understand the federation directives.
type NativeComposer struct{}

func NewNativeComposer() *NativeComposer {
	return &NativeComposer{}
}

func (c *NativeComposer) Compose(ctx context.Context, projectType ProjectType, services []ServiceSDL, baseSchema string) (*ComposedSchema, []CompositionError) {
	if err := ctx.Err(); err != nil {
		return nil, []CompositionError{{Message: err.Error()}}
	}

	switch projectType {
	case ProjectTypeSingle:
		return composeSingle(services, baseSchema)
	case ProjectTypeStitching:
		return composeServices(services, baseSchema, false)
	case ProjectTypeFederation:
		return composeServices(services, baseSchema, true)
	default:
		return nil, []CompositionError{{Message: fmt.Sprintf("Unknown project type %q", projectType)}}
	}
}

func composeSingle(services []ServiceSDL, baseSchema string) (*ComposedSchema, []CompositionError) {
	if len(services) != 1 {
		return nil, []CompositionError{{Message: "Single projects require exactly one schema"}}
	}

	sdl := services[0].SDL
	if strings.TrimSpace(baseSchema) != "" {
		sdl = sdl + "\n" + baseSchema
	}

	schema, errs := LoadSDL(sdl)
	if len(errs) > 0 {
		return nil, errs
	}

	printed := PrintSchema(schema)
	loaded, errs := LoadSDL(printed)
	if len(errs) > 0 {
		return nil, errs
	}

	return &ComposedSchema{SDL: printed, Schema: loaded}, nil
}

func composeServices(services []ServiceSDL, baseSchema string, federated bool) (*ComposedSchema, []CompositionError) {
	if len(services) == 0 {
		return nil, []CompositionError{{Message: "At least one service is required to compose a schema"}}
	}

	m := newMerger(federated)
	var errs []CompositionError
	for _, service := range services {
		doc, err := parser.ParseSchema(&ast.Source{Name: service.Name, Input: service.SDL})
		if err != nil {
			errs = append(errs, compositionErrors(err, service.Name)...)
			continue
		}
		errs = append(errs, m.add(service.Name, doc)...)
	}

	if strings.TrimSpace(baseSchema) != "" {
		doc, err := parser.ParseSchema(&ast.Source{Name: "base-schema", Input: baseSchema})
		if err != nil {
			errs = append(errs, compositionErrors(err, "base-schema")...)
		} else {
			errs = append(errs, m.add("", doc)...)
		}
	}

	if federated {
		errs = append(errs, m.checkShareability()...)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	c := m.composition(services)
	if errs := c.validate(); len(errs) > 0 {
		return nil, errs
	}

	return c.build()
}

// composition holds the merged, not yet public, definitions of a composite schema along with
// which services contributed them. Contracts are applied on top of it.
type composition struct {
	federated   bool
	definitions ast.DefinitionList
	directives  ast.DirectiveDefinitionList
	typeOwners  map[string][]string
	fieldOwners map[string][]string
	typeKeys    map[string]map[string][]string
	services    []ServiceSDL
}

func (c *composition) prelude() (*ast.SchemaDocument, []CompositionError) {
	sources := []*ast.Source{validator.Prelude}
	if c.federated {
		sources = append(sources, federationPrelude)
	}
	doc, err := parser.ParseSchemas(sources...)
	if err != nil {
		return nil, compositionErrors(err, "")
	}
	return doc, nil
}

// validate checks the merged definitions, federation directives included.
func (c *composition) validate() []CompositionError {
	doc, errs := c.prelude()
	if len(errs) > 0 {
		return errs
	}
	// the validator adds introspection fields to the query type so it gets copies
	doc.Definitions = append(doc.Definitions, cloneDefinitions(c.definitions)...)
	doc.Directives = append(doc.Directives, c.directives...)

	if _, err := validator.ValidateSchemaDocument(doc); err != nil {
		return compositionErrors(err, "")
	}
	return nil
}

// build produces the public API schema and, for federation, the supergraph.
func (c *composition) build() (*ComposedSchema, []CompositionError) {
	public, errs := c.publicDefinitions()
	if len(errs) > 0 {
		return nil, errs
	}

	doc, err := parser.ParseSchemas(validator.Prelude)
	if err != nil {
		return nil, compositionErrors(err, "")
	}
	doc.Definitions = append(doc.Definitions, public...)
	doc.Directives = append(doc.Directives, c.directives...)

	schema, err := validator.ValidateSchemaDocument(doc)
	if err != nil {
		return nil, compositionErrors(err, "")
	}

	sdl := PrintSchema(schema)
	loaded, errs := LoadSDL(sdl)
	if len(errs) > 0 {
		return nil, errs
	}

	composed := &ComposedSchema{SDL: sdl, Schema: loaded, composition: c}
	if c.federated {
		composed.SupergraphSDL = c.supergraph()
	}
	return composed, nil
}

func (c *composition) publicDirectives(directives ast.DirectiveList) ast.DirectiveList {
	if !c.federated {
		return directives
	}
	public := make(ast.DirectiveList, 0, len(directives))
	for _, directive := range directives {
		if federationDirectiveNames[directive.Name] {
			continue
		}
		public = append(public, directive)
	}
	return public
}

// publicDefinitions removes @inaccessible elements and the federation directive usages.
func (c *composition) publicDefinitions() (ast.DefinitionList, []CompositionError) {
	hidden := make(map[string]bool)
	for _, def := range c.definitions {
		if isInaccessible(def.Directives) {
			hidden[def.Name] = true
		}
	}

	var errs []CompositionError
	public := make(ast.DefinitionList, 0, len(c.definitions))
	for _, def := range c.definitions {
		if hidden[def.Name] {
			continue
		}

		clone := cloneDefinition(def)
		clone.Directives = c.publicDirectives(clone.Directives)

		fields := make(ast.FieldList, 0, len(clone.Fields))
		for _, field := range clone.Fields {
			if isInaccessible(field.Directives) {
				continue
			}
			coordinate := def.Name + "." + field.Name
			if hidden[field.Type.Name()] {
				errs = append(errs, inaccessibleReference(field.Type.Name(), coordinate))
				continue
			}

			args := make(ast.ArgumentDefinitionList, 0, len(field.Arguments))
			for _, arg := range field.Arguments {
				if isInaccessible(arg.Directives) {
					continue
				}
				if hidden[arg.Type.Name()] {
					errs = append(errs, inaccessibleReference(arg.Type.Name(), coordinate+"."+arg.Name))
					continue
				}
				arg.Directives = c.publicDirectives(arg.Directives)
				args = append(args, arg)
			}
			field.Arguments = args
			field.Directives = c.publicDirectives(field.Directives)
			fields = append(fields, field)
		}
		clone.Fields = fields

		if len(def.Fields) > 0 && len(clone.Fields) == 0 {
			errs = append(errs, CompositionError{
				Message: fmt.Sprintf(`Type "%s" is in the API schema but all of its fields are @inaccessible.`, def.Name),
				Path:    def.Name,
			})
			continue
		}

		values := make(ast.EnumValueList, 0, len(clone.EnumValues))
		for _, value := range clone.EnumValues {
			if isInaccessible(value.Directives) {
				continue
			}
			value.Directives = c.publicDirectives(value.Directives)
			values = append(values, value)
		}
		clone.EnumValues = values
		if len(def.EnumValues) > 0 && len(clone.EnumValues) == 0 {
			errs = append(errs, CompositionError{
				Message: fmt.Sprintf(`Type "%s" is in the API schema but all of its values are @inaccessible.`, def.Name),
				Path:    def.Name,
			})
			continue
		}

		clone.Types = withoutHidden(clone.Types, hidden)
		clone.Interfaces = withoutHidden(clone.Interfaces, hidden)
		if def.Kind == ast.Union && len(def.Types) > 0 && len(clone.Types) == 0 {
			errs = append(errs, CompositionError{
				Message: fmt.Sprintf(`Type "%s" is in the API schema but all of its members are @inaccessible.`, def.Name),
				Path:    def.Name,
			})
			continue
		}

		public = append(public, clone)
	}

	return public, errs
}

func inaccessibleReference(typeName string, coordinate string) CompositionError {
	return CompositionError{
		Message: fmt.Sprintf(`Type "%s" is @inaccessible but is referenced by "%s", which is in the API schema.`, typeName, coordinate),
		Path:    coordinate,
	}
}

func withoutHidden(names []string, hidden map[string]bool) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !hidden[name] {
			out = append(out, name)
		}
	}
	return out
}

type fieldContribution struct {
	service   string
	shareable bool
	external  bool
	typ       string
}

// merger folds service documents into a single set of definitions.
type merger struct {
	federated     bool
	definitions   ast.DefinitionList
	byName        map[string]*ast.Definition
	directives    ast.DirectiveDefinitionList
	typeOwners    map[string][]string
	fieldOwners   map[string][]string
	typeKeys      map[string]map[string][]string
	contributions map[string][]fieldContribution
}

func newMerger(federated bool) *merger {
	return &merger{
		federated:     federated,
		byName:        make(map[string]*ast.Definition),
		typeOwners:    make(map[string][]string),
		fieldOwners:   make(map[string][]string),
		typeKeys:      make(map[string]map[string][]string),
		contributions: make(map[string][]fieldContribution),
	}
}

func (m *merger) add(service string, doc *ast.SchemaDocument) []CompositionError {
	var errs []CompositionError

	definitions := make(ast.DefinitionList, 0, len(doc.Definitions)+len(doc.Extensions))
	definitions = append(definitions, doc.Definitions...)
	definitions = append(definitions, doc.Extensions...)
	for _, def := range definitions {
		if m.federated && federationTypeNames[def.Name] {
			continue
		}
		errs = append(errs, m.addDefinition(service, def)...)
	}

	for _, directive := range doc.Directives {
		if m.federated && federationDirectiveNames[directive.Name] {
			continue
		}
		if m.directives.ForName(directive.Name) != nil {
			continue
		}
		m.directives = append(m.directives, directive)
	}

	return errs
}

func (m *merger) addDefinition(service string, def *ast.Definition) []CompositionError {
	existing, ok := m.byName[def.Name]
	if !ok {
		existing = &ast.Definition{
			Kind:        def.Kind,
			Name:        def.Name,
			Description: def.Description,
			Position:    def.Position,
		}
		m.byName[def.Name] = existing
		m.definitions = append(m.definitions, existing)
	} else if existing.Kind != def.Kind {
		return []CompositionError{{
			Message: fmt.Sprintf(`Type "%s" has mismatched kind: it is defined as %s in "%s" but %s in "%s"`,
				def.Name, existing.Kind, strings.Join(m.typeOwners[def.Name], `", "`), def.Kind, service),
			Path: def.Name,
		}}
	}

	if service != "" {
		m.typeOwners[def.Name] = appendUnique(m.typeOwners[def.Name], service)
		for _, key := range keyFieldSets(def) {
			if m.typeKeys[def.Name] == nil {
				m.typeKeys[def.Name] = make(map[string][]string)
			}
			m.typeKeys[def.Name][service] = appendUnique(m.typeKeys[def.Name][service], key)
		}
	}
	if existing.Description == "" {
		existing.Description = def.Description
	}
	existing.Directives = mergeDirectives(existing.Directives, def.Directives)
	existing.Interfaces = appendUnique(existing.Interfaces, def.Interfaces...)
	existing.Types = appendUnique(existing.Types, def.Types...)

	for _, value := range def.EnumValues {
		current := existing.EnumValues.ForName(value.Name)
		if current == nil {
			clone := *value
			existing.EnumValues = append(existing.EnumValues, &clone)
			continue
		}
		current.Directives = mergeDirectives(current.Directives, value.Directives)
	}

	var errs []CompositionError
	typeShareable := def.Directives.ForName("shareable") != nil
	keyFields := keyFieldNames(def)
	for _, field := range def.Fields {
		if m.federated && def.Name == "Query" && (field.Name == "_service" || field.Name == "_entities") {
			continue
		}

		coordinate := def.Name + "." + field.Name
		external := field.Directives.ForName("external") != nil

		current := existing.Fields.ForName(field.Name)
		if current == nil {
			existing.Fields = append(existing.Fields, cloneField(field))
		} else {
			if current.Type.String() != field.Type.String() {
				errs = append(errs, CompositionError{
					Message: fmt.Sprintf(`Type of field "%s" is incompatible across services: it has type "%s" in "%s" but type "%s" in "%s"`,
						coordinate, current.Type.String(), m.firstContributor(coordinate), field.Type.String(), service),
					Path: coordinate,
				})
				continue
			}
			errs = append(errs, m.mergeArguments(coordinate, current, field, service)...)
			if current.Description == "" {
				current.Description = field.Description
			}
			current.Directives = mergeDirectives(current.Directives, field.Directives)
		}

		if service == "" {
			continue
		}
		if !external {
			m.fieldOwners[coordinate] = appendUnique(m.fieldOwners[coordinate], service)
		}
		m.contributions[coordinate] = append(m.contributions[coordinate], fieldContribution{
			service:   service,
			shareable: typeShareable || field.Directives.ForName("shareable") != nil || keyFields[field.Name],
			external:  external,
			typ:       field.Type.String(),
		})
	}

	return errs
}

func (m *merger) mergeArguments(coordinate string, current *ast.FieldDefinition, field *ast.FieldDefinition, service string) []CompositionError {
	var errs []CompositionError
	for _, arg := range field.Arguments {
		existing := current.Arguments.ForName(arg.Name)
		if existing == nil {
			clone := *arg
			current.Arguments = append(current.Arguments, &clone)
			continue
		}
		if existing.Type.String() != arg.Type.String() {
			errs = append(errs, CompositionError{
				Message: fmt.Sprintf(`Type of argument "%s(%s:)" is incompatible across services: it has type "%s" in "%s" but type "%s" in "%s"`,
					coordinate, arg.Name, existing.Type.String(), m.firstContributor(coordinate), arg.Type.String(), service),
				Path: coordinate + "." + arg.Name,
			})
		}
	}
	return errs
}

func (m *merger) firstContributor(coordinate string) string {
	if contributions := m.contributions[coordinate]; len(contributions) > 0 {
		return contributions[0].service
	}
	return "base-schema"
}

// checkShareability rejects object fields resolved by several services unless each of them
// marks the field as shareable.
func (m *merger) checkShareability() []CompositionError {
	var errs []CompositionError
	for _, coordinate := range sortedKeys(m.contributions) {
		typeName := coordinate[:strings.Index(coordinate, ".")]
		if def := m.byName[typeName]; def == nil || def.Kind != ast.Object {
			continue
		}

		var resolving, nonShareable []string
		for _, contribution := range m.contributions[coordinate] {
			if contribution.external {
				continue
			}
			resolving = append(resolving, contribution.service)
			if !contribution.shareable {
				nonShareable = append(nonShareable, contribution.service)
			}
		}
		if len(resolving) < 2 || len(nonShareable) == 0 {
			continue
		}

		errs = append(errs, CompositionError{
			Message: fmt.Sprintf(`Non-shareable field "%s" is resolved from multiple services: it is resolved from services "%s" and defined as non-shareable in "%s"`,
				coordinate, strings.Join(resolving, `" and "`), strings.Join(nonShareable, `" and "`)),
			Path: coordinate,
		})
	}
	return errs
}

func (m *merger) composition(services []ServiceSDL) *composition {
	return &composition{
		federated:   m.federated,
		definitions: m.definitions,
		directives:  m.directives,
		typeOwners:  m.typeOwners,
		fieldOwners: m.fieldOwners,
		typeKeys:    m.typeKeys,
		services:    services,
	}
}
