// Package filter decides whether an event is relevant to one device configuration.
package filter

import (
	"github.com/quocanhngo/quakealert/internal/geo"
	"github.com/quocanhngo/quakealert/internal/model"
)

// Reason names the predicate that rejected an event
type Reason string

const (
	ReasonRegion    Reason = "region"
	ReasonMagnitude Reason = "magnitude"
	ReasonDistance  Reason = "distance"
)

// Decision is the outcome of evaluating one event against one configuration
type Decision struct {
	Admit   bool
	Reasons []Reason
	// DistanceKm is set when the configuration carries a user location
	DistanceKm *float64
}

// Has reports whether reason fired
func (d Decision) Has(reason Reason) bool {
	for _, r := range d.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// FilterReasons converts the decision into its report form
func (d Decision) FilterReasons() model.FilterReasons {
	return model.FilterReasons{
		Region:    d.Has(ReasonRegion),
		Magnitude: d.Has(ReasonMagnitude),
		Distance:  d.Has(ReasonDistance),
	}
}

// Evaluate applies the magnitude, region and distance predicates enabled in cfg.
// Malformed events return model.ErrMalformedEvent before any predicate runs.
// Evaluate has no side effects.
func Evaluate(event model.Event, cfg model.DeviceConfig) (Decision, error) {
	if err := event.Validate(); err != nil {
		return Decision{}, err
	}

	d := Decision{}
	if cfg.HasLocation() {
		km := geo.DistanceKm(*cfg.UserLatitude, *cfg.UserLongitude, event.Latitude, event.Longitude)
		d.DistanceKm = &km
	}

	if cfg.FilterByMagnitude && event.Magnitude < cfg.MinMagnitude {
		d.Reasons = append(d.Reasons, ReasonMagnitude)
	}
	if cfg.FilterByRegion && cfg.Region != model.RegionAll && !geo.RegionMatches(event.Place, cfg.Region) {
		d.Reasons = append(d.Reasons, ReasonRegion)
	}
	if cfg.FilterByDistance &&
		!geo.WithinDistance(event.Latitude, event.Longitude, cfg.UserLatitude, cfg.UserLongitude, cfg.MaxDistanceKm) {
		d.Reasons = append(d.Reasons, ReasonDistance)
	}

	d.Admit = len(d.Reasons) == 0
	return d, nil
}

// Report is the result of partitioning a batch of events for one configuration
type Report struct {
	Admitted  []model.Event
	Rejected  []model.FilteredEvent
	Malformed int
	Details   model.FilteringDetails
}

// Partition evaluates every event and splits the batch into admitted and rejected items
func Partition(events []model.Event, cfg model.DeviceConfig) Report {
	r := Report{
		Admitted: make([]model.Event, 0, len(events)),
		Rejected: []model.FilteredEvent{},
	}
	for _, ev := range events {
		d, err := Evaluate(ev, cfg)
		if err != nil {
			r.Malformed++
			continue
		}
		if d.Admit {
			r.Admitted = append(r.Admitted, ev)
			continue
		}

		reasons := d.FilterReasons()
		if reasons.Region {
			r.Details.ByRegion++
		}
		if reasons.Magnitude {
			r.Details.ByMagnitude++
		}
		if reasons.Distance {
			r.Details.ByDistance++
		}
		r.Rejected = append(r.Rejected, model.FilteredEvent{
			ID:        ev.ID,
			Magnitude: ev.Magnitude,
			Place:     ev.Place,
			Distance:  roundedKm(d.DistanceKm),
			Reason:    reasons,
		})
	}
	return r
}

func roundedKm(km *float64) *float64 {
	if km == nil {
		return nil
	}
	v := float64(int64(*km*10+0.5)) / 10
	return &v
}
