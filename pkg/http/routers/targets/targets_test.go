package targets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/render"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	"github.com/rmb938/franz-graphql-registry/pkg/database/dbtest"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertAPIError(t *testing.T, err error, errorCode int, statusCode int) {
	t.Helper()

	apiError := &routers.APIError{}
	require.ErrorAs(t, err, &apiError)
	assert.Equal(t, errorCode, apiError.ErrorCode)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	assert.NoError(t, render.Render(w, req, apiError))
	assert.Equal(t, statusCode, w.Result().StatusCode)
}

func TestTargetHandlers(t *testing.T) {
	ctx := context.Background()
	db, dbFile := dbtest.TempDatabase(t)
	defer func() {
		err := os.Remove(dbFile)
		if err != nil {
			t.Error("db file remove error:", err)
		}
	}()

	publisher := artifacts.NewPublisher(artifacts.NewMemoryStore(), logr.Discard())
	schemaRegistry := registry.NewRegistry(db, publisher, logr.Discard())
	fixture := dbtest.CreateTarget(t, db, dbModels.ProjectTypeFederation)
	targetID := fixture.Target.ID

	// unknown target
	resp, err := publishSchema(ctx, schemaRegistry, uuid.New(), &RequestPublishSchema{ServiceName: "a", URL: "http://a", SDL: "type Query { a: String }"})
	assert.Nil(t, resp)
	assertAPIError(t, err, 40401, http.StatusNotFound)

	// missing service name
	resp, err = publishSchema(ctx, schemaRegistry, targetID, &RequestPublishSchema{SDL: "type Query { a: String }"})
	assert.Nil(t, resp)
	assertAPIError(t, err, 42203, http.StatusUnprocessableEntity)

	// missing url
	resp, err = publishSchema(ctx, schemaRegistry, targetID, &RequestPublishSchema{ServiceName: "a", SDL: "type Query { a: String }"})
	assert.Nil(t, resp)
	assertAPIError(t, err, 42204, http.StatusUnprocessableEntity)

	// composition failure carries the recorded version
	resp, err = publishSchema(ctx, schemaRegistry, targetID, &RequestPublishSchema{ServiceName: "a", URL: "http://a", SDL: "type Query { a: Missing }"})
	assert.Nil(t, resp)
	assertAPIError(t, err, 42201, http.StatusUnprocessableEntity)
	apiError := &routers.APIError{}
	require.ErrorAs(t, err, &apiError)
	details, ok := apiError.Details.(*registry.PublishResult)
	require.True(t, ok)
	assert.NotNil(t, details.Version)

	// publish
	resp, err = publishSchema(ctx, schemaRegistry, targetID, &RequestPublishSchema{ServiceName: "a", URL: "http://a", SDL: "type Query { a: String b: String }"})
	require.NoError(t, err)
	assert.Equal(t, registry.PublishOutcomePublished, resp.Outcome)

	// breaking change
	resp, err = publishSchema(ctx, schemaRegistry, targetID, &RequestPublishSchema{ServiceName: "a", SDL: "type Query { a: String }"})
	assert.Nil(t, resp)
	assertAPIError(t, err, 40901, http.StatusConflict)

	// check
	checkResp, err := checkSchema(ctx, schemaRegistry, targetID, &RequestCheckSchema{ServiceName: "a", SDL: "type Query { a: String }"})
	assert.Nil(t, checkResp)
	assertAPIError(t, err, 40901, http.StatusConflict)
	checkResp, err = checkSchema(ctx, schemaRegistry, targetID, &RequestCheckSchema{ServiceName: "a", SDL: "type Query { a: String b: String c: String }"})
	require.NoError(t, err)
	assert.True(t, checkResp.Valid)

	check, err := getSchemaCheck(ctx, schemaRegistry, targetID, checkResp.Check.ID)
	require.NoError(t, err)
	assert.True(t, check.Valid)
	_, err = getSchemaCheck(ctx, schemaRegistry, uuid.New(), checkResp.Check.ID)
	assertAPIError(t, err, 40402, http.StatusNotFound)

	// versions
	_, err = getVersion(ctx, schemaRegistry, targetID, uuid.New())
	assertAPIError(t, err, 40402, http.StatusNotFound)
	version, err := getVersion(ctx, schemaRegistry, targetID, details.Version.ID)
	require.NoError(t, err)
	assert.False(t, version.Valid)

	// delete the only service
	_, err = deleteService(ctx, schemaRegistry, registry.DeleteServiceInput{TargetID: targetID, ServiceName: "a"})
	assertAPIError(t, err, 42202, http.StatusUnprocessableEntity)

	// sync
	syncResp, err := syncCDN(ctx, schemaRegistry, targetID)
	require.NoError(t, err)
	assert.NotNil(t, syncResp.Version)
	_, err = syncCDN(ctx, schemaRegistry, uuid.New())
	assertAPIError(t, err, 40401, http.StatusNotFound)

	// contracts
	_, err = createContract(ctx, schemaRegistry, targetID, &RequestCreateContract{ContractName: "x"})
	assertAPIError(t, err, 42202, http.StatusUnprocessableEntity)
	contract, err := createContract(ctx, schemaRegistry, targetID, &RequestCreateContract{ContractName: "public", ExcludeTags: []string{"internal"}})
	require.NoError(t, err)
	_, err = createContract(ctx, schemaRegistry, targetID, &RequestCreateContract{ContractName: "public", ExcludeTags: []string{"internal"}})
	assertAPIError(t, err, 40903, http.StatusConflict)

	_, err = disableContract(ctx, schemaRegistry, uuid.New(), contract.ID)
	assertAPIError(t, err, 40401, http.StatusNotFound)
	disabled, err := disableContract(ctx, schemaRegistry, targetID, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.ID, disabled.ID)
}

func TestTargetRouter(t *testing.T) {
	db, dbFile := dbtest.TempDatabase(t)
	defer func() {
		err := os.Remove(dbFile)
		if err != nil {
			t.Error("db file remove error:", err)
		}
	}()

	publisher := artifacts.NewPublisher(artifacts.NewMemoryStore(), logr.Discard())
	router := NewRouter(registry.NewRegistry(db, publisher, logr.Discard()), logr.Discard())
	fixture := dbtest.CreateTarget(t, db, dbModels.ProjectTypeSingle)
	targetPath := "/" + fixture.Target.ID.String()

	// bad target id
	req := httptest.NewRequest(http.MethodGet, "/not-a-uuid/versions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode)

	// empty body
	req = httptest.NewRequest(http.MethodPost, targetPath+"/schemas", strings.NewReader(`{"sdl": ""}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode)

	// publish
	req = httptest.NewRequest(http.MethodPost, targetPath+"/schemas", strings.NewReader(`{"sdl": "type Query { a: String }", "author": "kamil"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	result := &registry.PublishResult{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(result))
	assert.Equal(t, registry.PublishOutcomePublished, result.Outcome)
	assert.True(t, result.Initial)

	// versions
	req = httptest.NewRequest(http.MethodGet, targetPath+"/versions?limit=10", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	var versions []dbModels.SchemaVersion
	require.NoError(t, json.NewDecoder(w.Body).Decode(&versions))
	require.Len(t, versions, 1)
	assert.Equal(t, "kamil", versions[0].Author)

	req = httptest.NewRequest(http.MethodGet, targetPath+"/versions?limit=zero", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode)
}
