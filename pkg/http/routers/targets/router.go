package targets

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-logr/logr"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
)

func NewRouter(schemaRegistry *registry.Registry, log logr.Logger) *chi.Mux {
	chiRouter := chi.NewRouter()

	chiRouter.Post("/{target}/schemas", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data := &RequestPublishSchema{}
		if err := render.Bind(request, data); err != nil {
			routers.RenderError(writer, request, log, routers.BindError(err))
			return
		}

		result, err := publishSchema(request.Context(), schemaRegistry, targetID, data)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, result)
	})

	chiRouter.Post("/{target}/checks", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data := &RequestCheckSchema{}
		if err := render.Bind(request, data); err != nil {
			routers.RenderError(writer, request, log, routers.BindError(err))
			return
		}

		result, err := checkSchema(request.Context(), schemaRegistry, targetID, data)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, result)
	})

	chiRouter.Get("/{target}/checks/{check}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}
		checkID, err := routers.ParseID(request, "check")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		check, err := getSchemaCheck(request.Context(), schemaRegistry, targetID, checkID)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, check)
	})

	chiRouter.Get("/{target}/services", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		services, err := schemaRegistry.ListServices(request.Context(), targetID)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, services)
	})

	chiRouter.Delete("/{target}/services/{service}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		dryRun, _ := strconv.ParseBool(request.URL.Query().Get("dryRun"))
		result, err := deleteService(request.Context(), schemaRegistry, registry.DeleteServiceInput{
			TargetID:    targetID,
			ServiceName: chi.URLParam(request, "service"),
			Author:      request.URL.Query().Get("author"),
			Commit:      request.URL.Query().Get("commit"),
			DryRun:      dryRun,
		})
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, result)
	})

	chiRouter.Get("/{target}/versions", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		limit := defaultVersionsLimit
		if limitRaw := request.URL.Query().Get("limit"); limitRaw != "" {
			limit, err = strconv.Atoi(limitRaw)
			if err != nil || limit <= 0 {
				routers.RenderError(writer, request, log, routers.NewAPIError(http.StatusUnprocessableEntity, 42202, errInvalidLimit))
				return
			}
		}

		versions, err := schemaRegistry.ListVersions(request.Context(), targetID, limit)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, versions)
	})

	chiRouter.Get("/{target}/versions/{version}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}
		versionID, err := routers.ParseID(request, "version")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		version, err := getVersion(request.Context(), schemaRegistry, targetID, versionID)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, version)
	})

	chiRouter.Post("/{target}/sync", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		result, err := syncCDN(request.Context(), schemaRegistry, targetID)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, result)
	})

	chiRouter.Get("/{target}/contracts", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		// Whether to include disabled contracts
		disabled, _ := strconv.ParseBool(request.URL.Query().Get("disabled"))

		contracts, err := schemaRegistry.ListContracts(request.Context(), targetID, disabled)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, contracts)
	})

	chiRouter.Post("/{target}/contracts", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		data := &RequestCreateContract{}
		if err := render.Bind(request, data); err != nil {
			routers.RenderError(writer, request, log, routers.BindError(err))
			return
		}

		contract, err := createContract(request.Context(), schemaRegistry, targetID, data)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusCreated)
		render.JSON(writer, request, contract)
	})

	chiRouter.Delete("/{target}/contracts/{contract}", func(writer http.ResponseWriter, request *http.Request) {
		targetID, err := routers.ParseID(request, "target")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}
		contractID, err := routers.ParseID(request, "contract")
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		contract, err := disableContract(request.Context(), schemaRegistry, targetID, contractID)
		if err != nil {
			routers.RenderError(writer, request, log, err)
			return
		}

		render.Status(request, http.StatusOK)
		render.JSON(writer, request, contract)
	})

	return chiRouter
}
