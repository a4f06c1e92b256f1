package counter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusbilling/subrelay/app/models"
)

type fakeStatRepo struct {
	delivered map[string]int64
	failed    map[string]int64
}

func newFakeStatRepo() *fakeStatRepo {
	return &fakeStatRepo{delivered: map[string]int64{}, failed: map[string]int64{}}
}

func (r *fakeStatRepo) AddCounts(route string, delivered, failed int64) error {
	r.delivered[route] += delivered
	r.failed[route] += failed
	return nil
}

func (r *fakeStatRepo) List() ([]models.DeliveryStat, error) { return nil, nil }

func newTestCounters(t *testing.T) *Counters {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestCountersAccumulate(t *testing.T) {
	c := newTestCounters(t)

	c.Delivered("salesforce")
	c.Delivered("salesforce")
	c.Failed("firefox")
	c.Dispatched("accepted")
	c.Dispatched("ignored")
	c.Dispatched("accepted")

	delivered, failed, dispatched, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), delivered["salesforce"])
	assert.Equal(t, int64(1), failed["firefox"])
	assert.Equal(t, int64(2), dispatched["accepted"])
	assert.Equal(t, int64(1), dispatched["ignored"])
}

func TestFlushDeliveriesDrainsCounters(t *testing.T) {
	c := newTestCounters(t)
	repo := newFakeStatRepo()

	c.Delivered("salesforce")
	c.Delivered("firefox")
	c.Failed("firefox")

	require.NoError(t, c.FlushDeliveries(repo))
	assert.Equal(t, int64(1), repo.delivered["salesforce"])
	assert.Equal(t, int64(1), repo.delivered["firefox"])
	assert.Equal(t, int64(1), repo.failed["firefox"])

	// The flush drained the hashes.
	delivered, failed, _, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, delivered)
	assert.Empty(t, failed)
}

func TestFlushDeliveriesEmptyIsNoop(t *testing.T) {
	c := newTestCounters(t)
	repo := newFakeStatRepo()

	require.NoError(t, c.FlushDeliveries(repo))
	assert.Empty(t, repo.delivered)
	assert.Empty(t, repo.failed)
}
