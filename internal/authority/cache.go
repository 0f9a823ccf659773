package authority

import (
	"context"
	"encoding/json"
	"fmt"

	"barberbook/internal/models"
)

func slotsCacheKey(shopID int64, date models.Date) string {
	return fmt.Sprintf("booked_slots:%d:%s", shopID, date)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// invalidateSlots drops every cached day of the shop. A reschedule may free
// a slot on a date the response no longer mentions.
func (c *Client) invalidateSlots(ctx context.Context, shopID int64) {
	if c.redis == nil || c.cacheTTL <= 0 || shopID == 0 {
		return
	}
	iter := c.redis.Scan(ctx, 0, fmt.Sprintf("booked_slots:%d:*", shopID), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Debug().Err(err).Str("key", iter.Val()).Msg("cache invalidate failed")
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Debug().Err(err).Int64("shop_id", shopID).Msg("cache scan failed")
	}
}
