package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*MemoryStore
	failOn string
}

func (s *failingStore) Put(ctx context.Context, key string, value []byte) error {
	if key == s.failOn {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Put(ctx, key, value)
}

func TestPublishSchema(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	publisher := NewPublisher(store, logr.Discard())
	targetID := uuid.New()

	// nothing published yet
	_, err := publisher.Artifact(ctx, targetID, TypeSDL)
	assert.ErrorIs(t, err, ErrNotFound)

	first := &Snapshot{
		TargetID:      targetID,
		VersionID:     uuid.New(),
		VersionNumber: 1,
		SDL:           "type Query { a: String }",
		SupergraphSDL: "schema @link(url: \"https://specs.apollo.dev/link/v1.0\") { query: Query }",
		Metadata:      json.RawMessage(`[{"team":"a"}]`),
		Services:      []Service{{Name: "a", URL: "http://a", SDL: "type Query { a: String }"}},
		Contracts:     map[string]ContractSnapshot{"public": {SDL: "type Query { a: String }"}},
	}
	require.NoError(t, publisher.PublishSchema(ctx, first))

	sdl, err := publisher.Artifact(ctx, targetID, TypeSDL)
	require.NoError(t, err)
	assert.Equal(t, first.SDL, string(sdl))

	services, err := publisher.Artifact(ctx, targetID, TypeServices)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a","url":"http://a","sdl":"type Query { a: String }"}]`, string(services))

	metadata, err := publisher.Artifact(ctx, targetID, TypeMetadata)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"team":"a"}]`, string(metadata))

	contract, err := publisher.ContractArtifact(ctx, targetID, "public", TypeSDL)
	require.NoError(t, err)
	assert.Equal(t, "type Query { a: String }", string(contract))

	versionID, err := publisher.LatestVersionID(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, first.VersionID, versionID)

	// a failure while staging keeps readers on the previous version
	second := &Snapshot{TargetID: targetID, VersionID: uuid.New(), VersionNumber: 2, SDL: "type Query { b: String }"}
	failing := NewPublisher(&failingStore{MemoryStore: store, failOn: versionKey(targetID, second.VersionID.String(), TypeMetadata)}, logr.Discard())
	assert.Error(t, failing.PublishSchema(ctx, second))

	sdl, err = publisher.Artifact(ctx, targetID, TypeSDL)
	require.NoError(t, err)
	assert.Equal(t, first.SDL, string(sdl))
	metadata, err = publisher.Artifact(ctx, targetID, TypeMetadata)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"team":"a"}]`, string(metadata))

	// republishing switches every artifact together
	require.NoError(t, publisher.PublishSchema(ctx, second))
	sdl, err = publisher.Artifact(ctx, targetID, TypeSDL)
	require.NoError(t, err)
	assert.Equal(t, second.SDL, string(sdl))
	metadata, err = publisher.Artifact(ctx, targetID, TypeMetadata)
	require.NoError(t, err)
	assert.Equal(t, "null", string(metadata))
	_, err = publisher.Artifact(ctx, targetID, TypeSupergraph)
	assert.ErrorIs(t, err, ErrNotFound)

	// an older version never replaces a newer one
	require.NoError(t, publisher.PublishSchema(ctx, first))
	versionID, err = publisher.LatestVersionID(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, second.VersionID, versionID)
	sdl, err = publisher.Artifact(ctx, targetID, TypeSDL)
	require.NoError(t, err)
	assert.Equal(t, second.SDL, string(sdl))

	// the same version can be published again
	require.NoError(t, publisher.PublishSchema(ctx, second))
	versionID, err = publisher.LatestVersionID(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, second.VersionID, versionID)
}

func TestPublishDocuments(t *testing.T) {
	ctx := context.Background()
	publisher := NewPublisher(NewMemoryStore(), logr.Discard())
	targetID := uuid.New()

	require.NoError(t, publisher.PublishDocuments(ctx, targetID, "app", "1.0.0", []Document{
		{Hash: "abc", Body: "query { a }"},
		{Hash: "def", Body: "query { b }"},
	}))

	body, err := publisher.Document(ctx, targetID, "app", "1.0.0", "abc")
	require.NoError(t, err)
	assert.Equal(t, "query { a }", string(body))

	_, err = publisher.Document(ctx, targetID, "app", "2.0.0", "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, publisher.RetireDocuments(ctx, targetID, "app", "1.0.0", []string{"abc", "def", "missing"}))
	_, err = publisher.Document(ctx, targetID, "app", "1.0.0", "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "key", value))
	value[0] = 'x'

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "key"))
	_, err = store.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)
}
