package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
)

func seededMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	cat, err := catalog.LoadEmbedded()
	require.NoError(t, err)
	require.NoError(t, m.SeedReference(context.Background(), cat))
	return m
}

func TestMemoryInsertAndQuery(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	for i := 3; i >= 1; i-- {
		require.NoError(t, m.InsertEvent(ctx, testEvent(i)))
	}

	got, err := m.QueryEventsSince(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
	}
}

func TestMemoryDuplicateInsert(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	ev := testEvent(1)
	require.NoError(t, m.InsertEvent(ctx, ev))

	err := m.InsertEvent(ctx, ev)
	require.Error(t, err)
	assert.True(t, IsIntegrityError(err))

	n, err := m.UpsertIgnoreEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMemoryReferenceEnforcement(t *testing.T) {
	m := seededMemory(t)

	ev := testEvent(1)
	ev.ProcedureType = "Teleportation"
	err := m.InsertEvent(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, IsIntegrityError(err))
}

func TestMemoryUnseededAcceptsAnyReference(t *testing.T) {
	m := NewMemory()

	ev := testEvent(1)
	ev.FacilityID = "ANYTHING"
	assert.NoError(t, m.InsertEvent(context.Background(), ev))
}

func TestMemoryQuerySinceStrict(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, m.InsertEvent(ctx, testEvent(i)))
	}

	got, err := m.QueryEventsSince(ctx, testBase.Add(2*time.Millisecond), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = m.QueryEventsSince(ctx, time.Time{}, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMemoryWatermark(t *testing.T) {
	m := seededMemory(t)
	ctx := context.Background()

	w0, err := m.GetWatermark(ctx, "edge-1")
	require.NoError(t, err)
	assert.True(t, w0.LastCreatedAt.IsZero())
	assert.Zero(t, w0.RowsTransferred)

	require.NoError(t, m.SetWatermark(ctx, "edge-1", testBase, 5))
	require.NoError(t, m.SetWatermark(ctx, "edge-1", testBase.Add(time.Second), 7))

	w, err := m.GetWatermark(ctx, "edge-1")
	require.NoError(t, err)
	assert.True(t, w.LastCreatedAt.Equal(testBase.Add(time.Second)))
	assert.Equal(t, int64(12), w.RowsTransferred)
}
