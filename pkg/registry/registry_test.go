package registry

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	"github.com/rmb938/franz-graphql-registry/pkg/database/dbtest"
	"gorm.io/gorm"
)

// toggleStore fails every write while fail is set. The first write to a key containing hold
// blocks until released.
type toggleStore struct {
	*artifacts.MemoryStore

	mu      sync.Mutex
	fail    bool
	hold    string
	held    chan struct{}
	release chan struct{}
}

func (s *toggleStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *toggleStore) holdWrite(key string) (held <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = key
	s.held = make(chan struct{})
	s.release = make(chan struct{})
	return s.held, func() { close(s.release) }
}

func (s *toggleStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	fail := s.fail
	var release chan struct{}
	if s.hold != "" && strings.Contains(key, s.hold) {
		s.hold = ""
		close(s.held)
		release = s.release
	}
	s.mu.Unlock()

	if release != nil {
		<-release
	}
	if fail {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Put(ctx, key, value)
}

type testEnv struct {
	db        *gorm.DB
	store     *toggleStore
	publisher *artifacts.Publisher
	registry  *Registry
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	db, dbFile := dbtest.TempDatabase(t)
	t.Cleanup(func() {
		err := os.Remove(dbFile)
		if err != nil {
			t.Error("db file remove error:", err)
		}
	})

	store := &toggleStore{MemoryStore: artifacts.NewMemoryStore()}
	publisher := artifacts.NewPublisher(store, logr.Discard())
	return &testEnv{
		db:        db,
		store:     store,
		publisher: publisher,
		registry:  NewRegistry(db, publisher, logr.Discard(), opts...),
	}
}
