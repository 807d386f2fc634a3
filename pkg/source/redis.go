package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/people-pager/pkg/pagination"
)

// Redis pages through records stored as JSON in a Redis list.
type Redis struct {
	client   redis.Cmdable
	key      string
	pageSize int
	logger   zerolog.Logger
}

// NewRedis creates a source reading the list at key.
func NewRedis(client redis.Cmdable, key string, pageSize int, logger zerolog.Logger) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Redis{
		client:   client,
		key:      key,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "redis-source").Str("key", key).Logger(),
	}
}

// FetchPage implements pagination.PageFetcher.
func (r *Redis) FetchPage(ctx context.Context, cursor pagination.Cursor) (pagination.Page, error) {
	offset, err := decodeOffset(cursor)
	if err != nil {
		return pagination.Page{}, err
	}

	// read the slice and the length together so the next cursor matches the data
	var rangeCmd *redis.StringSliceCmd
	var lenCmd *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, r.key, int64(offset), int64(offset+r.pageSize-1))
		lenCmd = pipe.LLen(ctx, r.key)
		return nil
	})
	if err != nil {
		return pagination.Page{}, fmt.Errorf("redis lrange: %w", err)
	}

	values := rangeCmd.Val()
	total := int(lenCmd.Val())

	records := make([]pagination.Record, 0, len(values))
	for i, v := range values {
		var rec pagination.Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return pagination.Page{}, fmt.Errorf("decode record at %d: %w", offset+i, err)
		}
		records = append(records, rec)
	}

	r.logger.Debug().
		Int("offset", offset).
		Int("records", len(records)).
		Int("total", total).
		Msg("Read page from list")

	return pagination.Page{
		Records:    records,
		NextCursor: encodeOffset(offset+len(records), total),
	}, nil
}

// Append adds records to the end of the list.
func (r *Redis) Append(ctx context.Context, records ...pagination.Record) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.ID, err)
		}
		values = append(values, data)
	}

	if err := r.client.RPush(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// Len returns the number of stored records.
func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return int(n), nil
}

// Clear deletes the list.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
