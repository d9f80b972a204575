package geocode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/eventual/internal/models"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, address string) (*models.Coordinate, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coordinate), args.Error(1)
}

func newCache(t *testing.T, next Resolver) (*CachedResolver, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewCachedResolver(next, rdb, time.Hour, time.Minute), srv
}

func TestCachedResolver_HitAfterMiss(t *testing.T) {
	next := new(MockResolver)
	next.On("Resolve", mock.Anything, "Puerta del Sol").Return(&models.Coordinate{Lat: 40.4169, Lon: -3.7035}, nil).Once()
	cache, srv := newCache(t, next)

	first, err := cache.Resolve(context.Background(), "Puerta del Sol")
	require.NoError(t, err)
	second, err := cache.Resolve(context.Background(), "  puerta   DEL sol ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	cached, err := srv.Get("geocode:puerta del sol")
	require.NoError(t, err)
	assert.Equal(t, "40.4169,-3.7035", cached)
	assert.Equal(t, time.Hour, srv.TTL("geocode:puerta del sol"))
	next.AssertExpectations(t)
}

func TestCachedResolver_CachesMisses(t *testing.T) {
	next := new(MockResolver)
	next.On("Resolve", mock.Anything, "Atlantis").Return(nil, nil).Once()
	cache, srv := newCache(t, next)

	for i := 0; i < 3; i++ {
		c, err := cache.Resolve(context.Background(), "Atlantis")
		require.NoError(t, err)
		assert.Nil(t, c)
	}
	assert.Equal(t, time.Minute, srv.TTL("geocode:atlantis"))
	next.AssertExpectations(t)
}

func TestCachedResolver_DoesNotCacheErrors(t *testing.T) {
	upstream := &models.UpstreamError{Service: "geocoder", Err: errors.New("timeout")}
	next := new(MockResolver)
	next.On("Resolve", mock.Anything, "Madrid").Return(nil, upstream).Twice()
	cache, srv := newCache(t, next)

	for i := 0; i < 2; i++ {
		_, err := cache.Resolve(context.Background(), "Madrid")
		assert.ErrorIs(t, err, upstream)
	}
	assert.False(t, srv.Exists("geocode:madrid"))
	next.AssertExpectations(t)
}

func TestCachedResolver_RedisDownFallsThrough(t *testing.T) {
	next := new(MockResolver)
	next.On("Resolve", mock.Anything, "Madrid").Return(&models.Coordinate{Lat: 40.4, Lon: -3.7}, nil)
	cache, srv := newCache(t, next)
	srv.Close()

	c, err := cache.Resolve(context.Background(), "Madrid")
	require.NoError(t, err)
	assert.Equal(t, &models.Coordinate{Lat: 40.4, Lon: -3.7}, c)
}

func TestCachedResolver_MalformedValueIsIgnored(t *testing.T) {
	next := new(MockResolver)
	next.On("Resolve", mock.Anything, "Madrid").Return(&models.Coordinate{Lat: 40.4, Lon: -3.7}, nil).Once()
	cache, srv := newCache(t, next)
	require.NoError(t, srv.Set("geocode:madrid", "garbage"))

	c, err := cache.Resolve(context.Background(), "Madrid")
	require.NoError(t, err)
	assert.Equal(t, &models.Coordinate{Lat: 40.4, Lon: -3.7}, c)
	cached, err := srv.Get("geocode:madrid")
	require.NoError(t, err)
	assert.Equal(t, "40.4,-3.7", cached)
}
