package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/persist/memory"
)

type brokenPort struct{ err error }

func (b brokenPort) Name() string { return "sheets" }
func (b brokenPort) Load(context.Context) (core.Snapshot, bool, error) {
	return core.Snapshot{}, false, b.err
}
func (b brokenPort) Save(context.Context, core.Snapshot) error { return b.err }

// switchPort is a memory-backed primary whose saves can be made to fail.
type switchPort struct {
	*memory.Store
	down bool
}

func (p *switchPort) Name() string { return "sheets" }

func (p *switchPort) Save(ctx context.Context, snap core.Snapshot) error {
	if p.down {
		return errors.New("503 backend error")
	}
	return p.Store.Save(ctx, snap)
}

func TestLoadPrefersSecondaryUntilPrimaryCatchesUp(t *testing.T) {
	ctx := context.Background()
	primary := &switchPort{Store: memory.New()}
	secondary := memory.New()
	c := New(primary, secondary)

	older := core.EmptySnapshot()
	older.NextID = 2
	require.NoError(t, c.Save(ctx, older))

	primary.down = true
	newer := core.EmptySnapshot()
	newer.NextID = 3
	require.NoError(t, c.Save(ctx, newer))
	assert.True(t, c.Pending())

	primary.down = false
	got, found, err := c.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, got.NextID, "the primary copy is stale")
	assert.Equal(t, "memory", c.Name())
	assert.Contains(t, c.Degraded(), "503 backend error")

	require.NoError(t, c.Save(ctx, got))
	assert.False(t, c.Pending())
	assert.Empty(t, c.Degraded())
	got, _, err = c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NextID)
	assert.Equal(t, "sheets", c.Name())
}

func TestPendingLoadNeverServesStalePrimary(t *testing.T) {
	ctx := context.Background()
	primary := &switchPort{Store: memory.New()}
	c := New(primary, memory.New())
	require.NoError(t, c.Save(ctx, core.EmptySnapshot()))

	primary.down = true
	require.NoError(t, c.Save(ctx, core.EmptySnapshot()))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, found, err := c.Load(cancelled)
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, c.Pending())
}

func TestSaveFallsBackToSecondary(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	c := New(brokenPort{err: errors.New("quota exceeded")}, local)

	snap := core.EmptySnapshot()
	snap.NextID = 9
	require.NoError(t, c.Save(ctx, snap))
	assert.Equal(t, 1, local.Saves())
	assert.Equal(t, "memory", c.Name())
	assert.Contains(t, c.Degraded(), "quota exceeded")

	got, found, err := c.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 9, got.NextID)
}

func TestSaveFailsWhenBothFail(t *testing.T) {
	c := New(brokenPort{err: errors.New("a")}, brokenPort{err: errors.New("b")})
	err := c.Save(context.Background(), core.EmptySnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestHealthyPrimaryIsPreferred(t *testing.T) {
	ctx := context.Background()
	primary, secondary := memory.New(), memory.New()
	c := New(primary, secondary)

	require.NoError(t, c.Save(ctx, core.EmptySnapshot()))
	assert.Equal(t, 1, primary.Saves())
	assert.Equal(t, 0, secondary.Saves())
	assert.Empty(t, c.Degraded())
}

func TestLoadUsesSecondaryWhenPrimaryEmpty(t *testing.T) {
	ctx := context.Background()
	secondary := memory.New()
	snap := core.EmptySnapshot()
	snap.NextID = 4
	require.NoError(t, secondary.Save(ctx, snap))

	c := New(memory.New(), secondary)
	got, found, err := c.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4, got.NextID)
	assert.Empty(t, c.Degraded())
}
