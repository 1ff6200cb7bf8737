package appdeployments

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	deployments "github.com/rmb938/franz-graphql-registry/pkg/appdeployments"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers"
)

type RequestCreateAppDeployment struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (r *RequestCreateAppDeployment) Bind(request *http.Request) error {
	return nil
}

type RequestAddDocuments struct {
	Documents []deployments.Document `json:"documents"`
}

func (r *RequestAddDocuments) Bind(request *http.Request) error {
	if len(r.Documents) == 0 {
		return fmt.Errorf("documents may not be empty")
	}
	return nil
}

type ResponseAppDeployment struct {
	*dbModels.AppDeployment
	IsSkipped bool `json:"isSkipped,omitempty"`
}

func (r *ResponseAppDeployment) Render(writer http.ResponseWriter, request *http.Request) error {
	return nil
}

func respond(result *deployments.Result) (*ResponseAppDeployment, error) {
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, nil)
	}
	return &ResponseAppDeployment{AppDeployment: result.AppDeployment, IsSkipped: result.IsSkipped}, nil
}

func createAppDeployment(ctx context.Context, manager *deployments.Manager, targetID uuid.UUID, data *RequestCreateAppDeployment) (*ResponseAppDeployment, error) {
	result, err := manager.Create(ctx, targetID, data.Name, data.Version)
	if err != nil {
		return nil, err
	}
	return respond(result)
}

func addDocuments(ctx context.Context, manager *deployments.Manager, targetID uuid.UUID, name string, version string, data *RequestAddDocuments) (*ResponseAppDeployment, error) {
	result, err := manager.AddDocuments(ctx, targetID, name, version, data.Documents)
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, result.DocumentErrors)
	}
	return &ResponseAppDeployment{AppDeployment: result.AppDeployment}, nil
}

func getAppDeployment(ctx context.Context, manager *deployments.Manager, targetID uuid.UUID, name string, version string) (*ResponseAppDeployment, error) {
	appDeployment, err := manager.GetAppDeployment(ctx, targetID, name, version)
	if err != nil {
		return nil, err
	}
	if appDeployment == nil {
		return nil, routers.NewAPIError(http.StatusNotFound, 40401, fmt.Errorf("App deployment not found"))
	}
	return &ResponseAppDeployment{AppDeployment: appDeployment}, nil
}

func NewRouter(manager *deployments.Manager, log logr.Logger) *chi.Mux {
	chiRouter := chi.NewRouter()

	chiRouter.Post("/{target}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data := &RequestCreateAppDeployment{}
		if err := render.Bind(request, data); err != nil {
			routers.RenderError(writer, request, log, routers.BindError(err))
			return
		}

		response, err := createAppDeployment(request.Context(), manager, targetID, data)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.Render(writer, request, response)
	})

	chiRouter.Get("/{target}/{name}/{version}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		response, err := getAppDeployment(request.Context(), manager, targetID, chi.URLParam(request, "name"), chi.URLParam(request, "version"))
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.Render(writer, request, response)
	})

	chiRouter.Post("/{target}/{name}/{version}/documents", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data := &RequestAddDocuments{}
		if err := render.Bind(request, data); err != nil {
			routers.RenderError(writer, request, log, routers.BindError(err))
			return
		}

		response, err := addDocuments(request.Context(), manager, targetID, chi.URLParam(request, "name"), chi.URLParam(request, "version"), data)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.Render(writer, request, response)
	})

	// activate and retire
	chiRouter.Post("/{target}/{name}/{version}/{transition}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}
		name := chi.URLParam(request, "name")
		version := chi.URLParam(request, "version")

		var result *deployments.Result
		switch strings.ToLower(chi.URLParam(request, "transition")) {
		case "activate":
			result, err = manager.Activate(request.Context(), targetID, name, version)
		case "retire":
			result, err = manager.Retire(request.Context(), targetID, name, version)
		default:
			routers.RenderError(writer, request, log, routers.NewAPIError(http.StatusNotFound, 40402, fmt.Errorf("unknown transition")))
			return
		}
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		response, err := respond(result)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.Render(writer, request, response)
	})

	return chiRouter
}
