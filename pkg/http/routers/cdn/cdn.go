package cdn

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers"
)

func contentType(artifactType artifacts.Type) string {
	switch artifactType {
	case artifacts.TypeMetadata, artifacts.TypeServices:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

func write(writer http.ResponseWriter, request *http.Request, log logr.Logger, contentType string, data []byte, err error) {
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			err = routers.NewAPIError(http.StatusNotFound, 40401, fmt.Errorf("artifact not found"))
		}
		routers.RenderError(writer, request, log, err)
		return
	}

	writer.Header().Set("Content-Type", contentType)
	writer.WriteHeader(http.StatusOK)
	if _, err := writer.Write(data); err != nil {
		log.Error(err, "error writing artifact")
	}
}

func parseType(request *http.Request) (artifacts.Type, error) {
	artifactType := artifacts.Type(chi.URLParam(request, "artifact"))
	if !artifactType.Valid() {
		return "", routers.NewAPIError(http.StatusNotFound, 40401, fmt.Errorf("unknown artifact %q", artifactType))
	}
	return artifactType, nil
}

// NewRouter serves what the artifact store holds. It never reads the database.
func NewRouter(publisher *artifacts.Publisher, log logr.Logger) *chi.Mux {
	chiRouter := chi.NewRouter()

	chiRouter.Get("/{target}/{artifact}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}
		artifactType, err := parseType(request)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data, err := publisher.Artifact(request.Context(), targetID, artifactType)
		write(writer, request, log, contentType(artifactType), data, err)
	})

	chiRouter.Get("/{target}/contracts/{contract}/{artifact}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}
		artifactType, err := parseType(request)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data, err := publisher.ContractArtifact(request.Context(), targetID, chi.URLParam(request, "contract"), artifactType)
		write(writer, request, log, contentType(artifactType), data, err)
	})

	chiRouter.Get("/{target}/apps/{name}/{version}/{hash}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data, err := publisher.Document(request.Context(), targetID, chi.URLParam(request, "name"), chi.URLParam(request, "version"), chi.URLParam(request, "hash"))
		write(writer, request, log, "application/graphql", data, err)
	})

	return chiRouter
}
