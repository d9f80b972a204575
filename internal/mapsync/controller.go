// Package mapsync keeps a map view in step with the entries around its
// center. Every retrieval is tagged with a sequence number when it is issued
// and only the latest issued retrieval may update the view, so responses that
// arrive out of order never overwrite newer results.
package mapsync

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/geocode"
	"github.com/ukydev/eventual/internal/models"
)

// Messages shown through View.Notify.
const (
	MsgAddressNotFound = "address not found"
	MsgSearchFailed    = "address search is unavailable, try again later"
	MsgLoadFailed      = "could not load entries"
	MsgPublished       = "entry published"
	MsgPublishFailed   = "could not publish entry"
)

// Retriever lists the entries near origin.
type Retriever interface {
	Retrieve(ctx context.Context, origin *models.Coordinate) ([]models.Entry, error)
}

// Creator publishes a new entry.
type Creator interface {
	Create(ctx context.Context, req models.CreateRequest) (*models.Entry, error)
}

// View is the map being kept in sync.
type View interface {
	Recenter(c models.Coordinate)
	Render(entries []models.Entry)
	Notify(message string)
}

// State is a copy of the controller state.
type State struct {
	Center      models.Coordinate
	LastQueried *models.Coordinate
	Displayed   []models.Entry
	// Issued is the sequence number of the latest issued retrieval.
	Issued uint64
}

// Controller drives a View from user actions. View methods are called with
// the controller lock held, one at a time.
type Controller struct {
	retriever Retriever
	geocoder  geocode.Resolver
	creator   Creator
	view      View

	mu          sync.Mutex
	center      models.Coordinate
	lastQueried *models.Coordinate
	displayed   []models.Entry
	retrieveSeq uint64
	// centerSeq counts user actions that pick a center. A search result is
	// applied only if no such action was issued after the search.
	centerSeq uint64

	wg sync.WaitGroup
}

// New creates a controller centered on initialCenter. No retrieval is issued
// until SetCenter or Refresh is called.
func New(retriever Retriever, geocoder geocode.Resolver, creator Creator, view View, initialCenter models.Coordinate) *Controller {
	return &Controller{
		retriever: retriever,
		geocoder:  geocoder,
		creator:   creator,
		view:      view,
		center:    initialCenter,
	}
}

// SetCenter moves the center and issues a retrieval for it.
func (c *Controller) SetCenter(ctx context.Context, center models.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.centerSeq++
	c.center = center
	c.issueLocked(ctx, center)
}

// Refresh issues a retrieval for the current center.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.centerSeq++
	c.issueLocked(ctx, c.center)
}

// Search resolves text and moves the center there. Blank text is ignored. A
// search overtaken by a newer Search, SetCenter or Refresh is dropped when it
// completes.
func (c *Controller) Search(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	c.centerSeq++
	seq := c.centerSeq
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		coord, err := c.geocoder.Resolve(ctx, text)

		c.mu.Lock()
		defer c.mu.Unlock()
		if seq != c.centerSeq {
			log.WithFields(log.Fields{"query": text, "seq": seq, "latest": c.centerSeq}).Debug("Discarding stale search")
			return
		}
		switch {
		case err != nil:
			log.WithError(err).WithField("query", text).Warn("Address search failed")
			c.view.Notify(MsgSearchFailed)
		case coord == nil:
			c.view.Notify(MsgAddressNotFound)
		default:
			c.center = *coord
			c.issueLocked(ctx, *coord)
		}
	}()
}

// Submit publishes req and, once it is stored, refreshes around the center
// current at that moment.
func (c *Controller) Submit(ctx context.Context, req models.CreateRequest) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		entry, err := c.creator.Create(ctx, req)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			log.WithError(err).WithField("title", req.Title).Warn("Failed to publish entry")
			c.view.Notify(MsgPublishFailed + ": " + err.Error())
			return
		}
		log.WithField("entry_id", entry.ID.Hex()).Info("Published entry")
		c.view.Notify(MsgPublished)
		c.issueLocked(ctx, c.center)
	}()
}

// Wait blocks until every issued operation has completed.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Center:    c.center,
		Displayed: append([]models.Entry(nil), c.displayed...),
		Issued:    c.retrieveSeq,
	}
	if c.lastQueried != nil {
		q := *c.lastQueried
		s.LastQueried = &q
	}
	return s
}

func (c *Controller) issueLocked(ctx context.Context, at models.Coordinate) {
	c.retrieveSeq++
	seq := c.retrieveSeq
	c.wg.Add(1)
	go c.retrieve(ctx, seq, at)
}

func (c *Controller) retrieve(ctx context.Context, seq uint64, at models.Coordinate) {
	defer c.wg.Done()
	entries, err := c.retriever.Retrieve(ctx, &at)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.retrieveSeq {
		log.WithFields(log.Fields{"seq": seq, "latest": c.retrieveSeq}).Debug("Discarding stale retrieval")
		return
	}
	if err != nil {
		log.WithError(err).WithField("seq", seq).Warn("Retrieval failed")
		c.view.Notify(MsgLoadFailed)
		return
	}

	c.displayed = entries
	c.lastQueried = &at
	c.view.Recenter(at)
	c.view.Render(entries)
}
