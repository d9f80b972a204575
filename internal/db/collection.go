package db

import (
	"context"

	"github.com/ukydev/eventual/internal/models"
)

// EntryCollection defines the interface for entry persistence.
type EntryCollection interface {
	InsertEntry(ctx context.Context, draft models.EntryDraft) (*models.Entry, error)
	FindEntries(ctx context.Context) ([]models.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// EntryCursor defines the interface for entry cursor operations.
type EntryCursor interface {
	All(ctx context.Context, out interface{}) error
	Close(ctx context.Context) error
}
