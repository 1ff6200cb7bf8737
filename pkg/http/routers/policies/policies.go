package policies

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers"
	"github.com/rmb938/franz-graphql-registry/pkg/policy"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
)

type RequestUpdatePolicy struct {
	AllowOverrides *bool                 `json:"allowOverrides,omitempty"`
	Rules          []policy.RuleInstance `json:"rules"`
}

func (r *RequestUpdatePolicy) Bind(request *http.Request) error {
	for i, rule := range r.Rules {
		if rule.RuleID == "" {
			return fmt.Errorf("rule %d has no ruleId", i)
		}
	}
	return nil
}

func updateOrganizationPolicy(ctx context.Context, schemaRegistry *registry.Registry, organizationID uuid.UUID, data *RequestUpdatePolicy) (*policy.Policy, error) {
	allowOverrides := true
	if data.AllowOverrides != nil {
		allowOverrides = *data.AllowOverrides
	}

	result, err := schemaRegistry.UpdateSchemaPolicyForOrganization(ctx, organizationID, allowOverrides, data.Rules)
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, nil)
	}
	return result.Policy, nil
}

func updateProjectPolicy(ctx context.Context, schemaRegistry *registry.Registry, projectID uuid.UUID, data *RequestUpdatePolicy) (*policy.Policy, error) {
	if data.AllowOverrides != nil {
		return nil, routers.NewAPIError(http.StatusUnprocessableEntity, 42202, fmt.Errorf("allowOverrides can only be set on organization policies"))
	}

	result, err := schemaRegistry.UpdateSchemaPolicyForProject(ctx, projectID, data.Rules)
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		return nil, routers.NewFailureError(result.Failure, nil)
	}
	return result.Policy, nil
}

func getProjectPolicies(ctx context.Context, schemaRegistry *registry.Registry, projectID uuid.UUID) (*registry.SchemaPolicies, error) {
	policies, failure, err := schemaRegistry.GetSchemaPolicies(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, routers.NewFailureError(failure, nil)
	}
	return policies, nil
}

func NewRouter(schemaRegistry *registry.Registry, log logr.Logger) *chi.Mux {
	chiRouter := chi.NewRouter()

	chiRouter.Put("/organizations/{organization}/schema-policy", func(writer http.ResponseWriter, request *http.Request) {
		organizationID, err := routers.ParseID(request, "organization")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data := &RequestUpdatePolicy{}
		if err := render.Bind(request, data); err != nil {
			routers.RenderError(writer, request, log, routers.BindError(err))
			return
		}

		updated, err := updateOrganizationPolicy(request.Context(), schemaRegistry, organizationID, data)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, updated)
	})

	chiRouter.Put("/projects/{project}/schema-policy", func(writer http.ResponseWriter, request *http.Request) {
		projectID, err := routers.ParseID(request, "project")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data := &RequestUpdatePolicy{}
		if err := render.Bind(request, data); err != nil {
			routers.RenderError(writer, request, log, routers.BindError(err))
			return
		}

		updated, err := updateProjectPolicy(request.Context(), schemaRegistry, projectID, data)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, updated)
	})

	chiRouter.Get("/projects/{project}/schema-policy", func(writer http.ResponseWriter, request *http.Request) {
		projectID, err := routers.ParseID(request, "project")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		policies, err := getProjectPolicies(request.Context(), schemaRegistry, projectID)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, policies)
	})

	return chiRouter
}
