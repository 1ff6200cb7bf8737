package registry

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	"github.com/rmb938/franz-graphql-registry/pkg/metrics"
	"github.com/rmb938/franz-graphql-registry/pkg/policy"
	"github.com/rmb938/franz-graphql-registry/pkg/schemas"
	"github.com/rmb938/franz-graphql-registry/pkg/usage"
	"gorm.io/gorm"
)

const defaultContractWorkers = 4

// Registry owns the version history of every target: publishing, deleting services and
// checking schemas, plus the contracts and policies those operations read.
type Registry struct {
	db              *gorm.DB
	log             logr.Logger
	composer        schemas.Composer
	policies        *policy.Registry
	publisher       *artifacts.Publisher
	usage           usage.Oracle
	metrics         *metrics.Metrics
	contractWorkers int

	locks *targetLocks
}

type Option func(r *Registry)

func WithComposer(composer schemas.Composer) Option {
	return func(r *Registry) {
		r.composer = composer
	}
}

func WithPolicyRegistry(policies *policy.Registry) Option {
	return func(r *Registry) {
		r.policies = policies
	}
}

func WithUsageOracle(oracle usage.Oracle) Option {
	return func(r *Registry) {
		r.usage = oracle
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithContractWorkers(workers int) Option {
	return func(r *Registry) {
		if workers > 0 {
			r.contractWorkers = workers
		}
	}
}

func NewRegistry(db *gorm.DB, publisher *artifacts.Publisher, log logr.Logger, opts ...Option) *Registry {
	r := &Registry{
		db:              db,
		log:             log,
		composer:        schemas.NewNativeComposer(),
		policies:        policy.DefaultRegistry(),
		publisher:       publisher,
		contractWorkers: defaultContractWorkers,
		locks:           &targetLocks{locks: make(map[uuid.UUID]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// targetLocks serializes version creation per target within the process.
type targetLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (l *targetLocks) lock(targetID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[targetID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[targetID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
