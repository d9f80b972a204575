package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/metrics"
	"github.com/ukydev/eventual/internal/models"
)

const (
	cacheKeyPrefix = "geocode:"
	missMarker     = "none"
)

// CachedResolver memoizes another Resolver in Redis. Misses are cached too,
// with their own TTL. Upstream errors are never cached and a Redis outage
// only costs the cache: lookups fall through to the wrapped resolver.
type CachedResolver struct {
	next    Resolver
	rdb     *redis.Client
	ttl     time.Duration
	missTTL time.Duration
}

// NewCachedResolver wraps next with a Redis cache.
func NewCachedResolver(next Resolver, rdb *redis.Client, ttl, missTTL time.Duration) *CachedResolver {
	return &CachedResolver{next: next, rdb: rdb, ttl: ttl, missTTL: missTTL}
}

// Resolve implements Resolver.
func (c *CachedResolver) Resolve(ctx context.Context, address string) (*models.Coordinate, error) {
	key := cacheKey(address)
	if key == cacheKeyPrefix {
		return nil, nil
	}

	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		coord, found, perr := decodeCached(val)
		if perr == nil {
			metrics.ObserveGeocode("cache_hit")
			if !found {
				return nil, nil
			}
			return coord, nil
		}
		log.WithError(perr).WithField("key", key).Warn("Discarding malformed geocode cache value")
	case errors.Is(err, redis.Nil):
	default:
		log.WithError(err).Warn("Geocode cache read failed")
	}

	coord, err := c.next.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}

	value, ttl := missMarker, c.missTTL
	if coord != nil {
		value, ttl = encodeCached(*coord), c.ttl
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		log.WithError(err).Warn("Geocode cache write failed")
	}
	return coord, nil
}

func cacheKey(address string) string {
	return cacheKeyPrefix + strings.ToLower(strings.Join(strings.Fields(address), " "))
}

func encodeCached(c models.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

func decodeCached(val string) (*models.Coordinate, bool, error) {
	if val == missMarker {
		return nil, false, nil
	}
	latStr, lonStr, ok := strings.Cut(val, ",")
	if !ok {
		return nil, false, fmt.Errorf("malformed cache value %q", val)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, false, err
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, false, err
	}
	return &models.Coordinate{Lat: lat, Lon: lon}, true, nil
}
