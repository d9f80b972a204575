package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EntryKind distinguishes events from reviews. Both share the same shape.
type EntryKind string

const (
	KindEvent  EntryKind = "event"
	KindReview EntryKind = "review"
)

// IsValidKind checks if a kind is known
func IsValidKind(kind EntryKind) bool {
	switch kind {
	case KindEvent, KindReview:
		return true
	default:
		return false
	}
}

// KindForRank picks the default kind for a rank: timestamps are events,
// ratings are reviews.
func KindForRank(r Rank) EntryKind {
	if r.Kind == RankRating {
		return KindReview
	}
	return KindEvent
}

// Entry is a published geotagged item.
type Entry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind      EntryKind          `bson:"kind" json:"kind"`
	Title     string             `bson:"title" json:"title"`
	Location  Location           `bson:"location" json:"location"`
	Rank      Rank               `bson:"rank" json:"rank"`
	AuthorID  string             `bson:"author_id" json:"authorId"`
	MediaURL  string             `bson:"media_url,omitempty" json:"mediaUrl,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// EntryDraft is an entry before the store has assigned its id and creation time.
type EntryDraft struct {
	Kind     EntryKind `validate:"omitempty,oneof=event review"`
	Title    string    `validate:"required"`
	Location Location
	Rank     Rank
	AuthorID string `validate:"required"`
	MediaURL string `validate:"omitempty,url"`
}

// Normalize trims text fields and fills the kind from the rank.
func (d *EntryDraft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.AuthorID = strings.TrimSpace(d.AuthorID)
	d.MediaURL = strings.TrimSpace(d.MediaURL)
	d.Location.Address = strings.TrimSpace(d.Location.Address)
	if d.Kind == "" {
		d.Kind = KindForRank(d.Rank)
	}
}

// Entry builds the stored form of the draft.
func (d EntryDraft) Entry(id primitive.ObjectID, createdAt time.Time) Entry {
	return Entry{
		ID:        id,
		Kind:      d.Kind,
		Title:     d.Title,
		Location:  d.Location,
		Rank:      d.Rank,
		AuthorID:  d.AuthorID,
		MediaURL:  d.MediaURL,
		CreatedAt: createdAt,
	}
}

// CreateRequest is the body of a create call.
type CreateRequest struct {
	Title    string    `json:"title" validate:"required"`
	Kind     EntryKind `json:"kind,omitempty" validate:"omitempty,oneof=event review"`
	Rank     Rank      `json:"rank"`
	Address  string    `json:"address" validate:"required"`
	AuthorID string    `json:"authorId"`
	MediaURL string    `json:"mediaUrl,omitempty" validate:"omitempty,url"`
}

// Draft turns the request into a store draft at the given location.
func (r CreateRequest) Draft(loc Location) EntryDraft {
	d := EntryDraft{
		Kind:     r.Kind,
		Title:    r.Title,
		Location: loc,
		Rank:     r.Rank,
		AuthorID: r.AuthorID,
		MediaURL: r.MediaURL,
	}
	d.Normalize()
	return d
}

// MessageResponse is the body returned by operations without a payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body returned on failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
