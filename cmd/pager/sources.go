package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/people-pager/pkg/pagination"
	"github.com/Sternrassler/people-pager/pkg/source"
)

// staticOptions configures the generated static source.
type staticOptions struct {
	Records   int
	FailFirst int
	FailEvery int
}

// openSource builds the fetcher selected by s. The returned close function
// releases any connection the source holds.
func openSource(ctx context.Context, s settings, opts staticOptions) (pagination.PageFetcher, func(), error) {
	noop := func() {}

	switch s.Source {
	case sourceStatic:
		return source.NewStatic(source.GeneratePeople(opts.Records), source.StaticConfig{
			PageSize:  s.PageSize,
			FailFirst: opts.FailFirst,
			FailEvery: opts.FailEvery,
		}), noop, nil

	case sourceHTTP:
		cfg := source.DefaultHTTPConfig(s.BaseURL, s.UserAgent)
		cfg.BreakerThreshold = s.BreakerFailures
		var client *redis.Client
		if s.SharedRateLimit {
			var err error
			if client, err = connectRedis(ctx, s.RedisAddr); err != nil {
				return nil, noop, err
			}
			cfg.Redis = client
		}
		h, err := source.NewHTTP(cfg, logger)
		if err != nil {
			if client != nil {
				client.Close()
			}
			return nil, noop, err
		}
		if client == nil {
			return h, noop, nil
		}
		return h, func() { client.Close() }, nil

	case sourceRedis:
		client, err := connectRedis(ctx, s.RedisAddr)
		if err != nil {
			return nil, noop, err
		}
		return source.NewRedis(client, s.RedisKey, s.PageSize, logger), func() { client.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown source %q", s.Source)
	}
}

func connectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	logger.Debug().Str("addr", addr).Msg("Connected to Redis")
	return client, nil
}
