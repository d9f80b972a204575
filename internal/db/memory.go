package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/eventual/internal/models"
	"github.com/ukydev/eventual/internal/validation"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryEntryCollection keeps entries in process memory. It is used when no
// MongoDB is configured and as the store in tests.
type MemoryEntryCollection struct {
	mu      sync.RWMutex
	entries []models.Entry
	now     func() time.Time
}

// NewMemoryEntryCollection creates an empty in-memory collection.
func NewMemoryEntryCollection() *MemoryEntryCollection {
	return &MemoryEntryCollection{now: time.Now}
}

// InsertEntry validates the draft, assigns its id and creation time and stores it.
func (c *MemoryEntryCollection) InsertEntry(ctx context.Context, draft models.EntryDraft) (*models.Entry, error) {
	draft.Normalize()
	if err := validation.ValidateDraft(draft); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry := draft.Entry(primitive.NewObjectID(), c.now().UTC())
	c.entries = append(c.entries, entry)
	return &entry, nil
}

// FindEntries lists every entry, newest first. Entries created within the
// same clock tick keep reverse insertion order.
func (c *MemoryEntryCollection) FindEntries(ctx context.Context) ([]models.Entry, error) {
	c.mu.RLock()
	out := make([]models.Entry, len(c.entries))
	for i := range c.entries {
		out[len(out)-1-i] = c.entries[i]
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteEntry removes an entry by its ID.
func (c *MemoryEntryCollection) DeleteEntry(ctx context.Context, id string) error {
	objectID, err := parseEntryID(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID == objectID {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}
