// Package geocode resolves free-text addresses to coordinates.
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/ukydev/eventual/internal/metrics"
	"github.com/ukydev/eventual/internal/models"
)

// Resolver turns an address into a coordinate. A nil coordinate with a nil
// error means the address has no match. Errors are *models.UpstreamError.
type Resolver interface {
	Resolve(ctx context.Context, address string) (*models.Coordinate, error)
}

// BreakerSettings configures the circuit breaker in front of the geocoder.
type BreakerSettings struct {
	FailureThreshold uint32
	Timeout          time.Duration
	Interval         time.Duration
}

var defaultBreakerSettings = BreakerSettings{
	FailureThreshold: 5,
	Timeout:          30 * time.Second,
	Interval:         time.Minute,
}

// NominatimResolver queries a Nominatim compatible search endpoint.
type NominatimResolver struct {
	baseURL   string
	language  string
	userAgent string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*models.Coordinate]
}

// NewNominatimResolver creates a resolver for baseURL, e.g.
// https://nominatim.openstreetmap.org/search.
func NewNominatimResolver(baseURL, language, userAgent string, timeout time.Duration) *NominatimResolver {
	return NewNominatimResolverWithBreaker(baseURL, language, userAgent, timeout, defaultBreakerSettings)
}

// NewNominatimResolverWithBreaker is NewNominatimResolver with explicit breaker settings.
func NewNominatimResolverWithBreaker(baseURL, language, userAgent string, timeout time.Duration, bs BreakerSettings) *NominatimResolver {
	settings := gobreaker.Settings{
		Name:     "geocoder",
		Interval: bs.Interval,
		Timeout:  bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("Circuit breaker state changed")
		},
	}
	return &NominatimResolver{
		baseURL:   baseURL,
		language:  language,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		breaker:   gobreaker.NewCircuitBreaker[*models.Coordinate](settings),
	}
}

// Resolve implements Resolver.
func (r *NominatimResolver) Resolve(ctx context.Context, address string) (*models.Coordinate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}

	c, err := r.breaker.Execute(func() (*models.Coordinate, error) {
		return r.lookup(ctx, address)
	})
	if err != nil {
		metrics.ObserveGeocode("error")
		return nil, &models.UpstreamError{Service: "geocoder", Err: err}
	}
	if c == nil {
		metrics.ObserveGeocode("not_found")
		return nil, nil
	}
	metrics.ObserveGeocode("found")
	return c, nil
}

// State reports the circuit breaker state.
func (r *NominatimResolver) State() string {
	return r.breaker.State().String()
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (r *NominatimResolver) lookup(ctx context.Context, address string) (*models.Coordinate, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("q", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if r.language != "" {
		req.Header.Set("Accept-Language", r.language)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode geocoder response: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed latitude %q", places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed longitude %q", places[0].Lon)
	}
	c := models.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return nil, fmt.Errorf("geocoder returned out of range coordinate %v,%v", lat, lon)
	}
	log.WithFields(log.Fields{"address": address, "match": places[0].DisplayName}).Debug("Resolved address")
	return &c, nil
}
