package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"talon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func execution(positionID string, openedAt time.Time) *types.ExecutionRecord {
	return &types.ExecutionRecord{
		PositionID:      positionID,
		DecisionID:      "dec-" + positionID,
		Symbol:          "BTCUSDT",
		Direction:       types.DirectionLong,
		OptionType:      types.OptionCall,
		Strike:          101,
		Expiry:          openedAt.AddDate(0, 0, 5),
		DTE:             5,
		Bucket:          types.BucketWeekly,
		Contracts:       3,
		FillRatio:       1,
		FilledContracts: 3,
		TheoPrice:       5,
		EntryPrice:      5.05,
		UnderlyingEntry: 100,
		Target1:         101.5,
		Target2:         103,
		StopLoss:        98.5,
		OpenedAt:        openedAt,
	}
}

func TestStore_OpenPositionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	openedAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendExecution(ctx, execution("pos-1", openedAt)))
	require.NoError(t, s.AppendExecution(ctx, execution("pos-2", openedAt.Add(time.Minute))))

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "pos-1", open[0].PositionID, "ordered by open time")
	assert.Equal(t, types.BucketWeekly, open[0].Bucket)
	assert.Equal(t, 101.5, open[0].Target1)
	assert.True(t, open[0].OpenedAt.Equal(openedAt))
}

func TestStore_ExitRowClosesPositionPermanently(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	openedAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendExecution(ctx, execution("pos-1", openedAt)))
	require.NoError(t, s.AppendExecution(ctx, execution("pos-2", openedAt)))

	require.NoError(t, s.AppendExit(ctx, &types.ExitRecord{
		PositionID: "pos-1",
		Symbol:     "BTCUSDT",
		Reason:     types.ExitTarget2,
		ExitTime:   openedAt.Add(4 * time.Hour),
		GrossPnL:   900,
		NetPnL:     880,
	}))

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "pos-2", open[0].PositionID)

	closed, err := s.HasExit(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, closed)

	stillOpen, err := s.HasExit(ctx, "pos-2")
	require.NoError(t, err)
	assert.False(t, stillOpen)
}

func TestStore_AppendDecision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pkt := &types.DecisionPacket{
		ID:            "pkt-1",
		Symbol:        "BTCUSDT",
		Action:        types.ActionWait,
		Direction:     types.DirectionLong,
		Confidence:    63,
		EngineVersion: "talon-engine/1.2.0",
		CreatedAt:     time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.AppendDecision(ctx, pkt))
	require.Error(t, s.AppendDecision(ctx, pkt), "duplicate packet ids are rejected by the unique index")
}

func TestStore_NilRecordsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.Error(t, s.AppendDecision(ctx, nil))
	require.Error(t, s.AppendExecution(ctx, nil))
	require.Error(t, s.AppendExit(ctx, nil))
}

func TestNewStore_EmptyPathRejected(t *testing.T) {
	_, err := NewStore("  ")
	require.Error(t, err)
}
