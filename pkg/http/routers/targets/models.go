package targets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type RequestPublishSchema struct {
	ServiceName string          `json:"serviceName"`
	URL         string          `json:"url"`
	SDL         string          `json:"sdl"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Author      string          `json:"author"`
	Commit      string          `json:"commit"`
	Force       bool            `json:"force"`
	DryRun      bool            `json:"dryRun"`
}

func (r *RequestPublishSchema) Bind(request *http.Request) error {
	if len(strings.TrimSpace(r.SDL)) == 0 {
		return fmt.Errorf("sdl may not be empty")
	}
	if len(r.Metadata) > 0 && !json.Valid(r.Metadata) {
		return fmt.Errorf("metadata must be valid json")
	}
	return nil
}

type RequestCheckSchema struct {
	ServiceName string `json:"serviceName"`
	SDL         string `json:"sdl"`
	Author      string `json:"author"`
	Commit      string `json:"commit"`
	ForceSafe   bool   `json:"forceSafe"`
}

func (r *RequestCheckSchema) Bind(request *http.Request) error {
	if len(strings.TrimSpace(r.SDL)) == 0 {
		return fmt.Errorf("sdl may not be empty")
	}
	return nil
}

type RequestCreateContract struct {
	ContractName           string   `json:"contractName"`
	IncludeTags            []string `json:"includeTags"`
	ExcludeTags            []string `json:"excludeTags"`
	RemoveUnreachableTypes bool     `json:"removeUnreachableTypesFromPublicApiSchema"`
}

func (r *RequestCreateContract) Bind(request *http.Request) error {
	return nil
}
