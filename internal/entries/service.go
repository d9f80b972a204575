// Package entries composes the store, the proximity filter and the external
// collaborators into the retrieve, create and delete operations.
package entries

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/db"
	"github.com/ukydev/eventual/internal/geocode"
	"github.com/ukydev/eventual/internal/media"
	"github.com/ukydev/eventual/internal/metrics"
	"github.com/ukydev/eventual/internal/models"
	"github.com/ukydev/eventual/internal/notify"
	"github.com/ukydev/eventual/internal/proximity"
	"github.com/ukydev/eventual/internal/validation"
)

// Service is the query orchestrator.
type Service struct {
	store     db.EntryCollection
	geocoder  geocode.Resolver
	uploader  media.Uploader
	publisher notify.Publisher
	radius    float64

	publishTimeout time.Duration
}

// DefaultPublishTimeout bounds how long a create or delete waits on the
// publisher before giving up on the notification.
const DefaultPublishTimeout = 2 * time.Second

// Option customizes a Service.
type Option func(*Service)

// WithRadius overrides proximity.DefaultRadius.
func WithRadius(r float64) Option {
	return func(s *Service) {
		if r > 0 {
			s.radius = r
		}
	}
}

// WithUploader sets the media collaborator. Without it uploads are rejected.
func WithUploader(u media.Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithPublisher sets where entry changes are announced.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// NewService creates the orchestrator.
func NewService(store db.EntryCollection, geocoder geocode.Resolver, opts ...Option) *Service {
	s := &Service{
		store:     store,
		geocoder:  geocoder,
		uploader:  media.DisabledUploader{},
		publisher: notify.NoopPublisher{},
		radius:    proximity.DefaultRadius,

		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Radius returns the search radius in use.
func (s *Service) Radius() float64 {
	return s.radius
}

// Retrieve lists entries newest first. With a nil origin nothing is filtered;
// otherwise only entries strictly within the search radius are returned.
func (s *Service) Retrieve(ctx context.Context, origin *models.Coordinate) ([]models.Entry, error) {
	all, err := s.store.FindEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if origin == nil {
		metrics.ObserveRetrieval(false, len(all))
		return all, nil
	}

	near := proximity.FilterByProximity(all, *origin, s.radius)
	metrics.ObserveRetrieval(true, len(near))
	return near, nil
}

// Create publishes a new entry. An attached image is uploaded first and a
// failed upload aborts the call. The address is then geocoded; when it has no
// match, or the geocoder is unreachable, the entry is stored at the sentinel
// coordinate with Resolved unset rather than rejected.
func (s *Service) Create(ctx context.Context, req models.CreateRequest, image *media.File) (*models.Entry, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Address = strings.TrimSpace(req.Address)
	req.AuthorID = strings.TrimSpace(req.AuthorID)
	if err := validation.ValidateCreateRequest(req); err != nil {
		return nil, err
	}

	if image != nil {
		url, err := s.uploader.Upload(ctx, *image)
		if err != nil {
			return nil, err
		}
		req.MediaURL = url
	}

	loc := s.locate(ctx, req.Address)
	entry, err := s.store.InsertEntry(ctx, req.Draft(loc))
	if err != nil {
		return nil, err
	}
	metrics.ObserveCreate(string(entry.Kind), entry.Location.Resolved)

	log.WithFields(log.Fields{
		"entry_id": entry.ID.Hex(),
		"kind":     entry.Kind,
		"author":   entry.AuthorID,
		"resolved": entry.Location.Resolved,
	}).Info("Created entry")

	s.announce(ctx, notify.Event{Type: notify.EventCreated, EntryID: entry.ID.Hex(), Entry: entry})
	return entry, nil
}

// Delete removes an entry from future retrievals.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return err
	}
	log.WithField("entry_id", id).Info("Deleted entry")
	s.announce(ctx, notify.Event{Type: notify.EventDeleted, EntryID: id})
	return nil
}

func (s *Service) locate(ctx context.Context, address string) models.Location {
	coord, err := s.geocoder.Resolve(ctx, address)
	if err != nil {
		log.WithError(err).WithField("address", address).Warn("Geocoding failed, storing entry at sentinel coordinate")
		return models.UnresolvedLocation(address)
	}
	if coord == nil {
		log.WithField("address", address).Warn("Address not found, storing entry at sentinel coordinate")
		return models.UnresolvedLocation(address)
	}
	return models.ResolvedLocation(address, *coord)
}

func (s *Service) announce(ctx context.Context, ev notify.Event) {
	ev.At = time.Now().UTC()
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.WithError(err).WithField("event", ev.Type).Warn("Failed to publish entry event")
	}
}
