package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// RankKind says how a Rank should be interpreted.
type RankKind string

const (
	RankTimestamp RankKind = "timestamp"
	RankRating    RankKind = "rating"
)

const (
	MinRating = 0.0
	MaxRating = 5.0
)

// datetimeLocalLayout is what browsers send for <input type="datetime-local">.
const datetimeLocalLayout = "2006-01-02T15:04"

// Rank is either the time an event happens or the score of a review.
// On the wire it is a JSON string for timestamps and a JSON number for ratings.
type Rank struct {
	Kind  RankKind  `bson:"kind"`
	At    time.Time `bson:"at,omitempty"`
	Score float64   `bson:"score"`
}

// TimestampRank returns an event rank.
func TimestampRank(at time.Time) Rank {
	return Rank{Kind: RankTimestamp, At: at.UTC()}
}

// RatingRank returns a review rank.
func RatingRank(score float64) Rank {
	return Rank{Kind: RankRating, Score: score}
}

// IsZero reports whether the rank was never set.
func (r Rank) IsZero() bool {
	return r.Kind == ""
}

// Validate checks the rank against the domain declared by its kind.
func (r Rank) Validate() error {
	switch r.Kind {
	case RankTimestamp:
		if r.At.IsZero() {
			return &ValidationError{Field: "rank", Message: "timestamp rank requires a time"}
		}
	case RankRating:
		if math.IsNaN(r.Score) || r.Score < MinRating || r.Score > MaxRating {
			return &ValidationError{Field: "rank", Message: fmt.Sprintf("rating must be between %g and %g", MinRating, MaxRating)}
		}
	case "":
		return &ValidationError{Field: "rank", Message: "rank is required"}
	default:
		return &ValidationError{Field: "rank", Message: fmt.Sprintf("unknown rank kind %q", r.Kind)}
	}
	return nil
}

// String renders the rank for display.
func (r Rank) String() string {
	switch r.Kind {
	case RankTimestamp:
		return r.At.Format(time.RFC3339)
	case RankRating:
		return strconv.FormatFloat(r.Score, 'f', -1, 64) + "/5"
	default:
		return ""
	}
}

// MarshalJSON implements json.Marshaler.
func (r Rank) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RankTimestamp:
		return json.Marshal(r.At.Format(time.RFC3339))
	case RankRating:
		return []byte(strconv.FormatFloat(r.Score, 'f', -1, 64)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rank) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Rank{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		at, err := ParseRankTime(s)
		if err != nil {
			return err
		}
		*r = TimestampRank(at)
		return nil
	}
	score, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("rank must be a time string or a number: %w", err)
	}
	*r = RatingRank(score)
	return nil
}

// ParseRankTime accepts RFC 3339 and the datetime-local layout.
func ParseRankTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(datetimeLocalLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid rank time %q", s)
	}
	return t, nil
}

// ParseRank reads a rank from a form value: a number is a rating, anything
// else must be a time. An empty value is the zero rank.
func ParseRank(s string) (Rank, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rank{}, nil
	}
	if score, err := strconv.ParseFloat(s, 64); err == nil {
		return RatingRank(score), nil
	}
	at, err := ParseRankTime(s)
	if err != nil {
		return Rank{}, err
	}
	return TimestampRank(at), nil
}
