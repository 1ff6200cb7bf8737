package appdeployments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/render"
	"github.com/go-logr/logr"
	deployments "github.com/rmb938/franz-graphql-registry/pkg/appdeployments"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	"github.com/rmb938/franz-graphql-registry/pkg/database/dbtest"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppDeploymentHandlers(t *testing.T) {
	ctx := context.Background()
	db, dbFile := dbtest.TempDatabase(t)
	defer func() {
		err := os.Remove(dbFile)
		if err != nil {
			t.Error("db file remove error:", err)
		}
	}()

	publisher := artifacts.NewPublisher(artifacts.NewMemoryStore(), logr.Discard())
	manager := deployments.NewManager(db, publisher, logr.Discard(), nil)
	fixture := dbtest.CreateTarget(t, db, dbModels.ProjectTypeSingle)
	targetID := fixture.Target.ID

	// feature flag off
	resp, err := createAppDeployment(ctx, manager, targetID, &RequestCreateAppDeployment{Name: "web", Version: "1"})
	apiError := &routers.APIError{}
	assert.ErrorAs(t, err, &apiError)
	assert.Nil(t, resp)
	assert.Equal(t, 42202, apiError.ErrorCode)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()
	assert.NoError(t, render.Render(w, req, apiError))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode)

	require.NoError(t, db.Model(fixture.Organization).Update("app_deployments_enabled", true).Error)

	resp, err = createAppDeployment(ctx, manager, targetID, &RequestCreateAppDeployment{Name: "web", Version: "1"})
	require.NoError(t, err)
	assert.Equal(t, dbModels.AppDeploymentStatusPending, resp.Status)

	// documents before any schema
	_, err = addDocuments(ctx, manager, targetID, "web", "1", &RequestAddDocuments{Documents: []deployments.Document{{Hash: "abc", Body: "{ a }"}}})
	assert.ErrorAs(t, err, &apiError)
	assert.Equal(t, "No schema has been published yet", apiError.Message)

	_, err = registry.NewRegistry(db, publisher, logr.Discard()).Publish(ctx, registry.PublishInput{TargetID: targetID, SDL: "type Query { a: String }"})
	require.NoError(t, err)

	// invalid documents are reported by index
	_, err = addDocuments(ctx, manager, targetID, "web", "1", &RequestAddDocuments{Documents: []deployments.Document{{Hash: "abc", Body: "{ a }"}, {Hash: "def", Body: "{ b }"}}})
	assert.ErrorAs(t, err, &apiError)
	documentErrors, ok := apiError.Details.([]deployments.DocumentError)
	require.True(t, ok)
	require.Len(t, documentErrors, 1)
	assert.Equal(t, 1, documentErrors[0].Index)

	// unknown deployment
	_, err = getAppDeployment(ctx, manager, targetID, "web", "2")
	assert.ErrorAs(t, err, &apiError)
	assert.Equal(t, 40401, apiError.ErrorCode)

	// through the router
	router := NewRouter(manager, logr.Discard())
	basePath := "/" + targetID.String()

	req = httptest.NewRequest(http.MethodPost, basePath+"/web/1/retire", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), "App deployment is not active")

	req = httptest.NewRequest(http.MethodPost, basePath+"/web/1/documents", strings.NewReader(`{"documents": [{"hash": "abc", "body": "{ a }"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)

	req = httptest.NewRequest(http.MethodPost, basePath+"/web/1/activate", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)

	req = httptest.NewRequest(http.MethodPost, basePath+"/web/1/activate", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"isSkipped":true`)

	req = httptest.NewRequest(http.MethodPost, basePath+"/web/1/pause", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)

	req = httptest.NewRequest(http.MethodGet, basePath+"/web/1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"Status":"active"`)
}
