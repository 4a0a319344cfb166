package model

import (
	"errors"
	"time"
)

// ErrMalformedEvent is returned for feed records missing magnitude or place.
// The feed never corrects past records, so these are skipped, never retried.
var ErrMalformedEvent = errors.New("event is missing magnitude or place")

// Event is one seismic occurrence as reported by the feed.
// Immutable after fetch and never persisted.
type Event struct {
	ID         string    `json:"id"`
	Magnitude  float64   `json:"magnitude"`
	Place      string    `json:"place"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Depth      float64   `json:"depth"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Validate reports ErrMalformedEvent when magnitude or place is absent.
// A zero magnitude is treated as absent, as the upstream feed omits it rather than sending 0.
func (e Event) Validate() error {
	if e.Magnitude <= 0 || e.Place == "" {
		return ErrMalformedEvent
	}
	return nil
}

// Summary returns the report form of the event
func (e Event) Summary() EventSummary {
	return EventSummary{
		ID:        e.ID,
		Magnitude: e.Magnitude,
		Place:     e.Place,
		Time:      e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// EventSummary is an attempted or notified event as it appears in results
type EventSummary struct {
	ID        string  `json:"id"`
	Magnitude float64 `json:"magnitude"`
	Place     string  `json:"place"`
	Time      string  `json:"time"`
}
