package schemas

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

type ProjectType string

const (
	ProjectTypeSingle     ProjectType = "SINGLE"
	ProjectTypeStitching  ProjectType = "STITCHING"
	ProjectTypeFederation ProjectType = "FEDERATION"
)

// ServiceSDL is a single schema contribution. Name and URL are empty for single projects.
type ServiceSDL struct {
	Name string
	URL  string
	SDL  string
}

type CompositionError struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func (e CompositionError) Error() string {
	return e.Message
}

// ComposedSchema is the result of a successful composition. Schema is loaded from SDL so
// source positions refer to the printed SDL.
type ComposedSchema struct {
	SDL           string
	SupergraphSDL string
	Schema        *ast.Schema

	composition *composition
}

type Composer interface {
	Compose(ctx context.Context, projectType ProjectType, services []ServiceSDL, baseSchema string) (*ComposedSchema, []CompositionError)
}

// LoadSDL parses and validates a complete schema.
func LoadSDL(sdl string) (*ast.Schema, []CompositionError) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return nil, compositionErrors(err, "")
	}
	return schema, nil
}

// PrintSchema prints a schema without the built in definitions. Types are printed in name
// order so equal schemas print equal SDL.
func PrintSchema(schema *ast.Schema) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchema(schema)
	return buf.String()
}

func printSchemaDocument(doc *ast.SchemaDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

func compositionErrors(err error, serviceName string) []CompositionError {
	prefix := ""
	if serviceName != "" {
		prefix = fmt.Sprintf("[%s] ", serviceName)
	}

	var list gqlerror.List
	if errors.As(err, &list) {
		out := make([]CompositionError, 0, len(list))
		for _, gqlErr := range list {
			out = append(out, fromGQLError(gqlErr, prefix))
		}
		return out
	}

	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return []CompositionError{fromGQLError(gqlErr, prefix)}
	}

	return []CompositionError{{Message: prefix + err.Error()}}
}

func fromGQLError(err *gqlerror.Error, prefix string) CompositionError {
	compositionError := CompositionError{Message: prefix + err.Message}
	if len(err.Path) > 0 {
		compositionError.Path = err.Path.String()
	} else if len(err.Locations) > 0 {
		compositionError.Path = fmt.Sprintf("%d:%d", err.Locations[0].Line, err.Locations[0].Column)
	}
	return compositionError
}
