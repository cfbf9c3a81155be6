// Package repository provides cached access to upstream route data.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/maypok86/otter"
	"github.com/redis/go-redis/v9"

	"github.com/trainseat/matrix/internal/railapi"
)

const routeKeyPrefix = "route:"

// RouteFetcher is the upstream side of the repository: the railapi
// client in production.
type RouteFetcher interface {
	FetchTrainData(ctx context.Context, trainModel, apiDate string) (*railapi.TrainData, error)
}

// cachedRoute is a route response plus its fetch time. Staleness is
// checked against the fetch time so the in-process layer needs no
// per-entry expiry of its own.
type cachedRoute struct {
	Data      *railapi.TrainData `json:"data"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// RouteRepository is a read-through cache over train-routes responses:
// a bounded in-process layer first, Redis second (when configured),
// the upstream API last. Both cache layers degrade silently — a cache
// failure only costs the fallthrough.
//
// Seat availability is deliberately not cached here: seat counts are
// volatile and correctness-bearing, so search-trips calls always go
// upstream.
type RouteRepository struct {
	upstream RouteFetcher
	local    otter.Cache[string, cachedRoute]
	redis    *redis.Client // nil disables the second layer
	ttl      time.Duration
}

// NewRouteRepository creates a repository bounded to size in-process
// entries, each fresh for ttl. redisClient may be nil.
func NewRouteRepository(upstream RouteFetcher, redisClient *redis.Client, size int, ttl time.Duration) (*RouteRepository, error) {
	local, err := otter.MustBuilder[string, cachedRoute](size).
		Cost(func(_ string, _ cachedRoute) uint32 { return 1 }).
		Build()
	if err != nil {
		return nil, fmt.Errorf("repository: build route cache: %w", err)
	}
	return &RouteRepository{
		upstream: upstream,
		local:    local,
		redis:    redisClient,
		ttl:      ttl,
	}, nil
}

// FetchTrainData returns the route description for a train model on an
// API-format date, serving from cache when a fresh copy exists.
func (r *RouteRepository) FetchTrainData(ctx context.Context, trainModel, apiDate string) (*railapi.TrainData, error) {
	key := routeKeyPrefix + trainModel + ":" + apiDate

	if entry, ok := r.local.Get(key); ok && r.fresh(entry) {
		return entry.Data, nil
	}

	if r.redis != nil {
		if entry, ok := r.fromRedis(ctx, key); ok && r.fresh(entry) {
			r.local.Set(key, entry)
			return entry.Data, nil
		}
	}

	data, err := r.upstream.FetchTrainData(ctx, trainModel, apiDate)
	if err != nil {
		return nil, err
	}
	if data != nil {
		entry := cachedRoute{Data: data, FetchedAt: time.Now()}
		r.local.Set(key, entry)
		r.toRedis(ctx, key, entry)
	}
	return data, nil
}

func (r *RouteRepository) fresh(entry cachedRoute) bool {
	return entry.Data != nil && time.Since(entry.FetchedAt) < r.ttl
}

func (r *RouteRepository) fromRedis(ctx context.Context, key string) (cachedRoute, bool) {
	raw, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[repository] redis get %s: %v", key, err)
		}
		return cachedRoute{}, false
	}
	var entry cachedRoute
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Printf("[repository] redis decode %s: %v", key, err)
		return cachedRoute{}, false
	}
	return entry, true
}

// toRedis populates the second layer, fire-and-forget.
func (r *RouteRepository) toRedis(ctx context.Context, key string, entry cachedRoute) {
	if r.redis == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		log.Printf("[repository] redis set %s: %v", key, err)
	}
}
