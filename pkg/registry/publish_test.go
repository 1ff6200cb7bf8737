package registry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	"github.com/rmb938/franz-graphql-registry/pkg/database/dbtest"
	dbModels "github.com/rmb938/franz-graphql-registry/pkg/database/models"
	"github.com/rmb938/franz-graphql-registry/pkg/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const usersSDL = `
type Query {
  me: User
}

type User @key(fields: "id") {
  id: ID!
  name: String
}
`

const reviewsSDL = `
type Query {
  topReviews: [Review]
}

type Review {
  body: String
  author: User
}

type User @key(fields: "id") {
  id: ID!
  reviews: [Review]
}
`

func TestPublishSingle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fixture := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeSingle)
	targetID := fixture.Target.ID

	// unknown target
	result, err := env.registry.Publish(ctx, PublishInput{TargetID: uuid.New(), SDL: "type Query { a: String }"})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomeRejected, result.Outcome)
	assert.Equal(t, ErrorKindNotFound, result.Failure.Kind)

	// empty sdl
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "  "})
	require.NoError(t, err)
	assert.Equal(t, ErrorKindInputValidation, result.Failure.Kind)

	// initial publish
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String b: String }", Author: "kamil", Commit: "abc"})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.True(t, result.Initial)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Changes)
	first := result.Version

	sdl, err := env.publisher.Artifact(ctx, targetID, artifacts.TypeSDL)
	require.NoError(t, err)
	assert.Contains(t, string(sdl), "b: String")

	// identical republish is skipped
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String b: String }"})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomeIgnored, result.Outcome)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Changes)
	assert.Equal(t, []string{noChangesMessage}, result.Messages)
	assert.Equal(t, first.ID, result.Version.ID)

	// safe change
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String b: String c: Int }"})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.False(t, result.Initial)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "Query.c", result.Changes[0].Path)
	assert.Equal(t, first.ID, *result.Version.PreviousVersionID)

	// breaking change is recorded but invalid
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String c: Int }"})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomeRejected, result.Outcome)
	assert.False(t, result.Valid)
	require.NotNil(t, result.Failure)
	assert.Equal(t, ErrorKindValidation, result.Failure.Kind)
	assert.Contains(t, result.Failure.Message, "Query.b")
	require.NotNil(t, result.Version)
	assert.False(t, result.Version.Valid)

	sdl, err = env.publisher.Artifact(ctx, targetID, artifacts.TypeSDL)
	require.NoError(t, err)
	assert.Contains(t, string(sdl), "b: String")

	// forced
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String c: Int }", Force: true})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.True(t, result.Version.Forced)
	assert.NotEmpty(t, result.Messages)
	assert.NotEmpty(t, result.Changes)

	// composition failure is recorded without changes
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: Missing }"})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomeRejected, result.Outcome)
	assert.Equal(t, ErrorKindComposition, result.Failure.Kind)
	assert.NotEmpty(t, result.Errors)
	assert.Empty(t, result.Changes)
	assert.False(t, result.Version.IsComposable)

	// dry runs are not recorded
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String c: Int d: Int }", DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)

	// the log is newest first and the invalid entries are kept
	versions, err := env.registry.ListVersions(ctx, targetID, 0)
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i-1].Number, versions[i].Number)
		assert.False(t, versions[i-1].CreatedAt.Before(versions[i].CreatedAt))
	}
	assert.False(t, versions[0].Valid)
	assert.True(t, versions[1].Valid)

	limited, err := env.registry.ListVersions(ctx, targetID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	version, err := env.registry.GetVersion(ctx, targetID, first.ID)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, "kamil", version.Author)
	assert.Equal(t, "abc", version.Commit)

	version, err = env.registry.GetVersion(ctx, targetID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, version)
}

func TestPublishComposite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fixture := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeFederation)
	targetID := fixture.Target.ID

	// service name is required
	result, err := env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: usersSDL, URL: "http://users"})
	require.NoError(t, err)
	assert.Equal(t, ErrorKindMissingServiceName, result.Failure.Kind)

	// new services need an url
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, ServiceName: "users", SDL: usersSDL})
	require.NoError(t, err)
	assert.Equal(t, ErrorKindMissingURL, result.Failure.Kind)

	// service names are case insensitive
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, ServiceName: "MyService", URL: "http://users", SDL: usersSDL})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.True(t, result.Initial)
	assert.NotEmpty(t, result.Version.SupergraphSDL)

	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, ServiceName: "myService", SDL: usersSDL})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomeIgnored, result.Outcome)

	services, err := env.registry.ListServices(ctx, targetID)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "myservice", services[0].Name)

	// second service
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, ServiceName: "reviews", URL: "http://reviews", SDL: reviewsSDL})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.NotEmpty(t, result.Changes)

	// url update
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, ServiceName: "reviews", URL: "http://reviews.internal", SDL: reviewsSDL})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.Contains(t, result.Messages, `Updated url of service "reviews"`)

	servicesArtifact, err := env.publisher.Artifact(ctx, targetID, artifacts.TypeServices)
	require.NoError(t, err)
	assert.Contains(t, string(servicesArtifact), "http://reviews.internal")

	// delete service
	result, err = env.registry.DeleteService(ctx, DeleteServiceInput{TargetID: targetID, ServiceName: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, ErrorKindNotFound, result.Failure.Kind)

	result, err = env.registry.DeleteService(ctx, DeleteServiceInput{TargetID: targetID, ServiceName: "Reviews", DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	services, err = env.registry.ListServices(ctx, targetID)
	require.NoError(t, err)
	assert.Len(t, services, 2)

	result, err = env.registry.DeleteService(ctx, DeleteServiceInput{TargetID: targetID, ServiceName: "Reviews"})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.Equal(t, dbModels.SchemaVersionActionDelete, result.Version.Action)
	assert.Equal(t, "reviews", result.Version.DeletedService)
	assert.Empty(t, result.Version.SDL)
	assert.False(t, result.Version.Forced)
	assert.NotEmpty(t, result.Changes)
	assert.Contains(t, result.Messages, `Service "reviews" deleted`)

	services, err = env.registry.ListServices(ctx, targetID)
	require.NoError(t, err)
	require.Len(t, services, 1)

	// the last service stays
	result, err = env.registry.DeleteService(ctx, DeleteServiceInput{TargetID: targetID, ServiceName: "myservice"})
	require.NoError(t, err)
	assert.Equal(t, ErrorKindInputValidation, result.Failure.Kind)

	// re adding the deleted service is a new version
	result, err = env.registry.Publish(ctx, PublishInput{TargetID: targetID, ServiceName: "reviews", URL: "http://reviews", SDL: reviewsSDL})
	require.NoError(t, err)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)

	versions, err := env.registry.ListVersions(ctx, targetID, 2)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, dbModels.SchemaVersionActionDelete, versions[1].Action)
	assert.NotEqual(t, versions[0].ID, versions[1].ID)
	assert.Equal(t, versions[1].ID, *versions[0].PreviousVersionID)

	// deleting is only for composite projects
	single := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeSingle)
	result, err = env.registry.DeleteService(ctx, DeleteServiceInput{TargetID: single.Target.ID, ServiceName: "a"})
	require.NoError(t, err)
	assert.Equal(t, ErrorKindInputValidation, result.Failure.Kind)
}

func TestPublishBreakingChangeUsage(t *testing.T) {
	ctx := context.Background()

	publishRemoval := func(env *testEnv, validationEnabled bool) *PublishResult {
		fixture := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeSingle)
		err := env.db.Model(fixture.Target).Updates(map[string]any{
			"validation_enabled":    validationEnabled,
			"validation_percentage": 0,
		}).Error
		require.NoError(t, err)

		result, err := env.registry.Publish(ctx, PublishInput{TargetID: fixture.Target.ID, SDL: "type Query { a: String b: String }"})
		require.NoError(t, err)
		require.Equal(t, PublishOutcomePublished, result.Outcome)

		result, err = env.registry.Publish(ctx, PublishInput{TargetID: fixture.Target.ID, SDL: "type Query { a: String }"})
		require.NoError(t, err)
		return result
	}

	// no client uses Query.b
	oracle := usage.NewStaticOracle()
	env := newTestEnv(t, WithUsageOracle(oracle))
	result := publishRemoval(env, true)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)
	require.Len(t, result.Changes, 1)
	assert.True(t, result.Changes[0].IsSafeBasedOnUsage)

	// validation disabled means every breaking change counts
	result = publishRemoval(env, false)
	assert.Equal(t, PublishOutcomeRejected, result.Outcome)

	// validation enabled without usage data
	env = newTestEnv(t)
	result = publishRemoval(env, true)
	assert.Equal(t, PublishOutcomeRejected, result.Outcome)
	require.NotNil(t, result.Failure)
	assert.Equal(t, ErrorKindValidation, result.Failure.Kind)
	assert.Contains(t, result.Failure.Message, "Query.b")
	require.Len(t, result.Failure.Changes, 1)
	assert.Equal(t, "Query.b", result.Failure.Changes[0].Path)
}

func TestPublishArtifactFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fixture := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeSingle)
	targetID := fixture.Target.ID

	// nothing to sync yet
	sync, err := env.registry.SyncCDN(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, ErrorKindNotFound, sync.Failure.Kind)

	// the version is committed even though the store is down
	env.store.setFail(true)
	result, err := env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String }"})
	transientErr := &TransientError{}
	assert.ErrorAs(t, err, &transientErr)
	require.NotNil(t, result)
	assert.Equal(t, PublishOutcomePublished, result.Outcome)

	_, err = env.publisher.Artifact(ctx, targetID, artifacts.TypeSDL)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)

	// sync is still failing
	_, err = env.registry.SyncCDN(ctx, targetID)
	assert.ErrorAs(t, err, &transientErr)

	// sync recovers
	env.store.setFail(false)
	sync, err = env.registry.SyncCDN(ctx, targetID)
	require.NoError(t, err)
	assert.Nil(t, sync.Failure)
	assert.Equal(t, result.Version.ID, sync.Version.ID)

	sdl, err := env.publisher.Artifact(ctx, targetID, artifacts.TypeSDL)
	require.NoError(t, err)
	assert.Contains(t, string(sdl), "a: String")

	// sync is idempotent
	sync, err = env.registry.SyncCDN(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, result.Version.ID, sync.Version.ID)
}

func TestPublishTargetsShareDatabase(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	first := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeSingle)
	second := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeSingle)

	result, err := env.registry.Publish(ctx, PublishInput{TargetID: first.Target.ID, SDL: "type Query { a: String }"})
	require.NoError(t, err)
	require.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.Equal(t, int64(1), result.Version.Number)

	result, err = env.registry.Publish(ctx, PublishInput{TargetID: second.Target.ID, SDL: "type Query { a: String }"})
	require.NoError(t, err)
	require.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.Equal(t, int64(1), result.Version.Number)
	assert.Nil(t, result.Version.PreviousVersionID)

	result, err = env.registry.Publish(ctx, PublishInput{TargetID: first.Target.ID, SDL: "type Query { a: String b: String }"})
	require.NoError(t, err)
	require.Equal(t, PublishOutcomePublished, result.Outcome)
	assert.Equal(t, int64(2), result.Version.Number)

	// artifacts are kept apart
	sdl, err := env.publisher.Artifact(ctx, second.Target.ID, artifacts.TypeSDL)
	require.NoError(t, err)
	assert.NotContains(t, string(sdl), "b: String")
}

func TestPublishConcurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fixture := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeStitching)
	targetID := fixture.Target.ID

	results := make([]*PublishResult, 8)
	var group errgroup.Group
	for i := range results {
		i := i
		group.Go(func() error {
			result, err := env.registry.Publish(ctx, PublishInput{
				TargetID:    targetID,
				ServiceName: fmt.Sprintf("service-%d", i),
				URL:         fmt.Sprintf("http://service-%d", i),
				SDL:         fmt.Sprintf("type Query { field%d: String }", i),
			})
			results[i] = result
			return err
		})
	}
	require.NoError(t, group.Wait())
	for _, result := range results {
		assert.Equal(t, PublishOutcomePublished, result.Outcome)
	}

	// one linear history
	versions, err := env.registry.ListVersions(ctx, targetID, 0)
	require.NoError(t, err)
	require.Len(t, versions, len(results))
	for i, version := range versions {
		assert.Equal(t, int64(len(versions)-i), version.Number)
		if i == len(versions)-1 {
			assert.Nil(t, version.PreviousVersionID)
			continue
		}
		require.NotNil(t, version.PreviousVersionID)
		assert.Equal(t, versions[i+1].ID, *version.PreviousVersionID)
	}

	// the latest version carries every service
	services, err := env.registry.ListServices(ctx, targetID)
	require.NoError(t, err)
	assert.Len(t, services, len(results))
	assert.Len(t, versions[0].Services, len(results))

	pointer, err := env.publisher.LatestVersionID(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, versions[0].ID, pointer)
}

func TestSyncCDNKeepsNewerVersion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fixture := dbtest.CreateTarget(t, env.db, dbModels.ProjectTypeSingle)
	targetID := fixture.Target.ID

	first, err := env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String }"})
	require.NoError(t, err)
	require.Equal(t, PublishOutcomePublished, first.Outcome)

	// a sync of the first version stalls while staging
	held, release := env.store.holdWrite(first.Version.ID.String())
	syncErr := make(chan error, 1)
	go func() {
		_, err := env.registry.SyncCDN(ctx, targetID)
		syncErr <- err
	}()
	<-held

	type publishOutcome struct {
		result *PublishResult
		err    error
	}
	published := make(chan publishOutcome, 1)
	go func() {
		result, err := env.registry.Publish(ctx, PublishInput{TargetID: targetID, SDL: "type Query { a: String b: String }"})
		published <- publishOutcome{result: result, err: err}
	}()

	// the publish waits for the sync of the target
	select {
	case <-published:
		t.Fatal("publish finished while a sync of the target was running")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	require.NoError(t, <-syncErr)
	second := <-published
	require.NoError(t, second.err)
	require.Equal(t, PublishOutcomePublished, second.result.Outcome)

	versionID, err := env.publisher.LatestVersionID(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, second.result.Version.ID, versionID)
	sdl, err := env.publisher.Artifact(ctx, targetID, artifacts.TypeSDL)
	require.NoError(t, err)
	assert.Contains(t, string(sdl), "b: String")

	// a sync after the publish stays on the newest version
	sync, err := env.registry.SyncCDN(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, second.result.Version.ID, sync.Version.ID)
}
