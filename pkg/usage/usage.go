package usage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// Window selects the usage data a breaking change is checked against.
type Window struct {
	PeriodDays      int
	Percentage      float64
	ExcludedClients []string
}

// Oracle answers whether a schema coordinate was used by clients within a window.
type Oracle interface {
	IsCoordinateUsed(ctx context.Context, targetID uuid.UUID, coordinate string, window Window) (bool, error)
}

// Record is the share of a target's operations, sent by one client, that touched a coordinate.
type Record struct {
	Coordinate string
	Client     string
	Percentage float64
}

// StaticOracle answers from records it was given. Useful for tests and for targets fed by an
// offline export.
type StaticOracle struct {
	mu      sync.RWMutex
	records map[uuid.UUID][]Record
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{records: make(map[uuid.UUID][]Record)}
}

func (o *StaticOracle) Record(targetID uuid.UUID, records ...Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[targetID] = append(o.records[targetID], records...)
}

// IsCoordinateUsed reports a coordinate as used when a client outside the excluded list
// touched it in more than the window's percentage of operations.
func (o *StaticOracle) IsCoordinateUsed(ctx context.Context, targetID uuid.UUID, coordinate string, window Window) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, record := range o.records[targetID] {
		if record.Coordinate != coordinate {
			continue
		}
		if slices.Contains(window.ExcludedClients, record.Client) {
			continue
		}
		if record.Percentage > window.Percentage {
			return true, nil
		}
	}
	return false, nil
}
