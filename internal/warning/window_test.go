package warning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_DistinctReporters(t *testing.T) {
	a := NewAggregator(2 * time.Minute)
	now := time.UnixMilli(10 * 120_000)

	first, isNew := a.Add("audio", "Alice", now, now)
	require.True(t, isNew)
	assert.Equal(t, []string{"Alice"}, first.Reporters)
	assert.NotEmpty(t, first.AlertID)

	again, isNew := a.Add("audio", "Alice", now.Add(time.Second), now.Add(time.Second))
	assert.False(t, isNew)
	assert.Len(t, again.Reporters, 1)
	assert.Equal(t, first.AlertID, again.AlertID)

	second, isNew := a.Add("audio", "Bob", now, now.Add(2*time.Second))
	assert.True(t, isNew)
	assert.Equal(t, []string{"Alice", "Bob"}, second.Reporters)
	assert.Equal(t, now, second.FirstReport)

	other, isNew := a.Add("video", "Alice", now, now)
	assert.True(t, isNew)
	assert.NotEqual(t, first.AlertID, other.AlertID)
}

func TestAggregator_WindowBoundaries(t *testing.T) {
	a := NewAggregator(2 * time.Minute)
	start := time.UnixMilli(10 * 120_000)

	a.Add("audio", "Alice", start, start)
	// Same reporter in the next window counts again
	_, isNew := a.Add("audio", "Alice", start, start.Add(2*time.Minute))
	assert.True(t, isNew)
	assert.Equal(t, 2, a.Len())

	// Rolling two windows ahead drops the oldest
	a.Add("audio", "Alice", start, start.Add(4*time.Minute))
	assert.Equal(t, 2, a.Len())
	_, ok := a.Current("audio", start)
	assert.False(t, ok)
}

func TestAggregator_ResolveAndReopen(t *testing.T) {
	a := NewAggregator(time.Minute)
	now := time.UnixMilli(60_000 * 5)

	assert.False(t, a.Resolve("audio"))
	a.Add("audio", "Alice", now, now)
	assert.True(t, a.Resolve("audio"))

	cur, ok := a.Current("audio", now)
	require.True(t, ok)
	assert.True(t, cur.Resolved)

	reopened, isNew := a.Add("audio", "Bob", now, now)
	assert.True(t, isNew)
	assert.False(t, reopened.Resolved)

	a.Reset()
	assert.Zero(t, a.Len())
}

func TestAggregator_PinSurvivesRollover(t *testing.T) {
	a := NewAggregator(2 * time.Minute)
	start := time.UnixMilli(10 * 120_000)

	agg, _ := a.Add("audio", "Alice", start, start)
	assert.False(t, a.Pin("unknown"))
	require.True(t, a.Pin(agg.AlertID))

	a.Add("video", "Bob", start, start.Add(6*time.Minute))
	pinned, ok := a.Lookup(agg.AlertID)
	require.True(t, ok)
	assert.Equal(t, []string{"Alice"}, pinned.Reporters)

	// Resolve reaches pinned aggregates
	assert.True(t, a.Resolve("audio"))
	pinned, _ = a.Lookup(agg.AlertID)
	assert.True(t, pinned.Resolved)

	a.Unpin(agg.AlertID)
	_, ok = a.Lookup(agg.AlertID)
	assert.False(t, ok)
	assert.Equal(t, 1, a.Len())
}

func TestAggregator_DefaultCooldown(t *testing.T) {
	a := NewAggregator(0)
	assert.Equal(t, int64(1), a.WindowOf(time.UnixMilli(120_000)))
	assert.Equal(t, int64(0), a.WindowOf(time.UnixMilli(119_999)))
}

func TestCatalog(t *testing.T) {
	assert.True(t, IsKnownProblem("screen"))
	assert.False(t, IsKnownProblem("keyboard"))
	assert.Equal(t, "Problème de son", Label("audio"))
	assert.Equal(t, "keyboard", Label("keyboard"))
	assert.Equal(t, "Un étudiant signale un problème", CountMessage(1))
	assert.Equal(t, "3 étudiants signalent un problème", CountMessage(3))
}
