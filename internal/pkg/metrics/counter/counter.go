package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/nimbusbilling/subrelay/app/repository"
)

const (
	deliveredKey = "relay:counters:delivered"
	failedKey    = "relay:counters:failed"
	dispatchKey  = "relay:counters:dispatch"
)

// Counters accumulates dispatch and delivery tallies in redis hashes so
// concurrent webhook workers never contend on the database.
type Counters struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Counters {
	return &Counters{rdb: rdb}
}

// Delivered increments the success tally for a route.
func (c *Counters) Delivered(route string) {
	if err := c.rdb.HIncrBy(context.Background(), deliveredKey, route, 1).Err(); err != nil {
		fiberlog.Warnf("[Counter] delivered increment failed for %s: %v", route, err)
	}
}

// Failed increments the failure tally for a route.
func (c *Counters) Failed(route string) {
	if err := c.rdb.HIncrBy(context.Background(), failedKey, route, 1).Err(); err != nil {
		fiberlog.Warnf("[Counter] failed increment failed for %s: %v", route, err)
	}
}

// Dispatched increments the tally for a dispatch outcome (accepted,
// ignored, rejected).
func (c *Counters) Dispatched(outcome string) {
	if err := c.rdb.HIncrBy(context.Background(), dispatchKey, outcome, 1).Err(); err != nil {
		fiberlog.Warnf("[Counter] dispatch increment failed for %s: %v", outcome, err)
	}
}

// Snapshot returns the current tallies without draining them.
func (c *Counters) Snapshot(ctx context.Context) (delivered, failed, dispatched map[string]int64, err error) {
	delivered, err = c.readHash(ctx, deliveredKey)
	if err != nil {
		return nil, nil, nil, err
	}
	failed, err = c.readHash(ctx, failedKey)
	if err != nil {
		return nil, nil, nil, err
	}
	dispatched, err = c.readHash(ctx, dispatchKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return delivered, failed, dispatched, nil
}

func (c *Counters) readHash(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, val := range raw {
		n, convErr := strconv.ParseInt(val, 10, 64)
		if convErr != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

// FlushDeliveries drains the delivery tallies into the stats table. The
// hash is renamed to a temp key first so increments racing the flush land
// in a fresh hash instead of being lost.
func (c *Counters) FlushDeliveries(repo repository.DeliveryStatRepository) error {
	delivered, err := c.drainHash(deliveredKey)
	if err != nil {
		return err
	}
	failed, err := c.drainHash(failedKey)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(delivered)+len(failed))
	for route := range delivered {
		seen[route] = struct{}{}
	}
	for route := range failed {
		seen[route] = struct{}{}
	}
	for route := range seen {
		if err := repo.AddCounts(route, delivered[route], failed[route]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Counters) drainHash(key string) (map[string]int64, error) {
	ctx := context.Background()

	tmpKey := fmt.Sprintf("%s:tmp:%d", key, time.Now().UnixNano())
	if err := c.rdb.Do(ctx, "RENAME", key, tmpKey).Err(); err != nil {
		// Nothing accumulated since the last flush.
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil, nil
		}
		return nil, err
	}
	defer c.rdb.Del(ctx, tmpKey)

	return c.readHash(ctx, tmpKey)
}
