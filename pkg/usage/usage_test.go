package usage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticOracle(t *testing.T) {
	ctx := context.Background()
	oracle := NewStaticOracle()
	targetID := uuid.New()

	oracle.Record(targetID,
		Record{Coordinate: "Query.users", Client: "web", Percentage: 12.5},
		Record{Coordinate: "Query.legacy", Client: "batch", Percentage: 40},
		Record{Coordinate: "Query.rare", Client: "web", Percentage: 0.5},
	)

	used, err := oracle.IsCoordinateUsed(ctx, targetID, "Query.users", Window{PeriodDays: 7})
	require.NoError(t, err)
	assert.True(t, used)

	// unknown coordinates are unused
	used, err = oracle.IsCoordinateUsed(ctx, targetID, "Query.other", Window{PeriodDays: 7})
	require.NoError(t, err)
	assert.False(t, used)

	// excluded clients do not count
	used, err = oracle.IsCoordinateUsed(ctx, targetID, "Query.legacy", Window{PeriodDays: 7, ExcludedClients: []string{"batch"}})
	require.NoError(t, err)
	assert.False(t, used)

	// usage below the threshold does not count
	used, err = oracle.IsCoordinateUsed(ctx, targetID, "Query.rare", Window{PeriodDays: 7, Percentage: 1})
	require.NoError(t, err)
	assert.False(t, used)

	// other targets have no data
	used, err = oracle.IsCoordinateUsed(ctx, uuid.New(), "Query.users", Window{})
	require.NoError(t, err)
	assert.False(t, used)
}
