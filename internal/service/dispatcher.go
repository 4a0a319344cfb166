package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/quakealert/internal/filter"
	"github.com/quocanhngo/quakealert/internal/ledger"
	"github.com/quocanhngo/quakealert/internal/metrics"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/registry"
	"github.com/quocanhngo/quakealert/pkg/notification"
)

const (
	PathTargeted  = "targeted"
	PathBroadcast = "broadcast"

	// UnknownDevice owns the device-level ledger entries of unmapped endpoints
	UnknownDevice = "unknown"

	outcomeDelivered = "delivered"
)

// RetryPolicy bounds delivery attempts on the broadcast path
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy is three attempts one second apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Second}
}

// Publisher receives audit events for the live stream
type Publisher interface {
	Publish(event model.WSEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(model.WSEvent) {}

// Dispatcher delivers admitted events to endpoints and keeps the ledger current
type Dispatcher struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	sender   notification.Sender
	events   Publisher
	metrics  *metrics.Metrics
	retry    RetryPolicy
	now      func() time.Time
}

func NewDispatcher(
	reg *registry.Registry,
	led *ledger.Ledger,
	sender notification.Sender,
	events Publisher,
	m *metrics.Metrics,
	retry RetryPolicy,
) *Dispatcher {
	if events == nil {
		events = noopPublisher{}
	}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Dispatcher{
		registry: reg,
		ledger:   led,
		sender:   sender,
		events:   events,
		metrics:  m,
		retry:    retry,
		now:      time.Now,
	}
}

// Dispatch sends ev to deviceID's endpoints, or to every endpoint when deviceID is empty.
// The targeted path expects ev to be admitted already; the broadcast path filters per endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.Event, deviceID string) model.DispatchResult {
	if deviceID == "" {
		return d.broadcast(ctx, ev)
	}
	return d.targeted(ctx, ev, deviceID)
}

// DispatchDevice filters events under deviceID's configuration and dispatches the admitted ones
func (d *Dispatcher) DispatchDevice(ctx context.Context, deviceID string, events []model.Event) model.DispatchResult {
	res := newResult()
	cfg := d.registry.GetConfig(deviceID)
	if !cfg.Enabled {
		log.Printf("⏸️  Notifications disabled for device %s, skipping", deviceID)
		return res
	}

	report := filter.Partition(events, cfg)
	res.Malformed = report.Malformed
	res.FilteringDetails = report.Details
	if cfg.LogFilteringDetails && len(report.Rejected) > 0 {
		log.Printf("🔎 Device %s filtered %d of %d events (region=%d magnitude=%d distance=%d)",
			deviceID, len(report.Rejected), len(events),
			report.Details.ByRegion, report.Details.ByMagnitude, report.Details.ByDistance)
	}

	for _, ev := range report.Admitted {
		if ctx.Err() != nil {
			break
		}
		res.Merge(d.targeted(ctx, ev, deviceID))
	}
	return res
}

// Broadcast runs the broadcast path for every event
func (d *Dispatcher) Broadcast(ctx context.Context, events []model.Event) model.DispatchResult {
	res := newResult()
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		res.Merge(d.broadcast(ctx, ev))
	}
	return res
}

func (d *Dispatcher) targeted(ctx context.Context, ev model.Event, deviceID string) model.DispatchResult {
	res := newResult()
	if d.ledger.IsDeviceNotified(deviceID, ev.ID) {
		res.AlreadyNotified++
		return res
	}

	endpoints := d.registry.EndpointsFor(deviceID)
	if len(endpoints) == 0 {
		token, ok := d.registry.MostRecentEndpoint()
		if !ok {
			log.Printf("⚠️  No endpoint available for device %s, event %s not delivered", deviceID, ev.ID)
			res.Unreachable++
			return res
		}
		log.Printf("⚠️  Device %s has no mapped endpoint, falling back to most recent endpoint %s",
			deviceID, registry.Mask(token))
		endpoints = []string{token}
	}

	msg := notification.EarthquakeMessage(ev, d.now(), false)
	for _, token := range endpoints {
		if !d.ledger.ClaimEndpoint(token, ev.ID) {
			continue
		}
		err := d.attempt(ctx, PathTargeted, deviceID, token, ev, msg, 1)
		if err == nil {
			d.ledger.MarkEndpointNotified(token, ev.ID)
			d.ledger.MarkDeviceNotified(deviceID, ev.ID)
			res.Delivered++
			res.Attempted = append(res.Attempted, ev.Summary())
		}
		d.ledger.ReleaseEndpoint(token, ev.ID)
	}
	return res
}

func (d *Dispatcher) broadcast(ctx context.Context, ev model.Event) model.DispatchResult {
	res := newResult()
	if err := ev.Validate(); err != nil {
		log.Printf("⚠️  Skipping malformed event %s: %v", ev.ID, err)
		res.Malformed++
		return res
	}

	// device gates are read once per event so sibling endpoints of a device all get their turn
	gates := make(map[string]bool)
	msg := notification.EarthquakeMessage(ev, d.now(), true)

	for _, token := range d.registry.Endpoints() {
		if ctx.Err() != nil {
			break
		}

		owner, mapped := d.registry.OwnerOf(token)
		var cfg model.DeviceConfig
		if mapped {
			cfg = d.registry.GetConfig(owner)
		} else {
			owner = UnknownDevice
			cfg = d.registry.Defaults()
		}

		notified, seen := gates[owner]
		if !seen {
			notified = d.ledger.IsDeviceNotified(owner, ev.ID)
			gates[owner] = notified
		}
		if notified {
			res.AlreadyNotified++
			continue
		}
		if !cfg.Enabled {
			continue
		}

		decision, err := filter.Evaluate(ev, cfg)
		if err != nil {
			continue
		}
		if !decision.Admit {
			addReasons(&res.FilteringDetails, decision)
			continue
		}

		if !d.ledger.ClaimEndpoint(token, ev.ID) {
			continue
		}
		err = d.sendWithRetry(ctx, owner, token, ev, msg)
		d.ledger.ReleaseEndpoint(token, ev.ID)

		switch {
		case err == nil:
			d.ledger.MarkDeviceNotified(owner, ev.ID)
			res.Delivered++
			res.Attempted = append(res.Attempted, ev.Summary())
		case notification.IsPermanent(err):
			if d.Invalidate(token, err) {
				res.EndpointsInvalidated++
			}
		default:
			log.Printf("❌ Giving up on endpoint %s for event %s after %d attempts", registry.Mask(token), ev.ID, d.retry.Attempts)
		}
	}
	return res
}

// sendWithRetry makes up to retry.Attempts attempts with a fixed delay.
// A permanent error stops immediately.
func (d *Dispatcher) sendWithRetry(ctx context.Context, owner, token string, ev model.Event, msg *notification.Message) error {
	var err error
	for attempt := 1; attempt <= d.retry.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(d.retry.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = d.attempt(ctx, PathBroadcast, owner, token, ev, msg, attempt)
		if err == nil || notification.IsPermanent(err) {
			return err
		}
	}
	return err
}

// attempt performs one send and records it in the audit log, metrics and live stream
func (d *Dispatcher) attempt(ctx context.Context, path, deviceID, token string, ev model.Event, msg *notification.Message, n int) error {
	err := d.sender.Send(ctx, token, msg)

	outcome := outcomeDelivered
	errText := ""
	if err != nil {
		outcome = string(notification.KindTransient)
		if notification.IsPermanent(err) {
			outcome = string(notification.KindPermanent)
		}
		errText = err.Error()
	}

	log.Printf("📨 path=%s device=%s endpoint=%s event=%s attempt=%d outcome=%s err=%q",
		path, deviceID, registry.Mask(token), ev.ID, n, outcome, errText)
	if d.metrics != nil {
		d.metrics.ObserveAttempt(path, outcome)
	}
	d.events.Publish(model.WSEvent{
		Type: model.WSEventNotificationAttempt,
		Payload: model.AttemptEvent{
			ID:       uuid.New().String(),
			Path:     path,
			DeviceID: deviceID,
			Endpoint: registry.Mask(token),
			EventID:  ev.ID,
			Attempt:  n,
			Outcome:  outcome,
			Error:    errText,
			At:       d.now(),
		},
	})
	return err
}

// Invalidate removes token from the registry after a permanent error.
// It reports whether the token was still registered.
func (d *Dispatcher) Invalidate(token string, cause error) bool {
	if err := d.registry.RemoveEndpoint(token); err != nil {
		return false
	}
	log.Printf("🗑️  Removed invalid endpoint %s: %v", registry.Mask(token), cause)
	if d.metrics != nil {
		d.metrics.ObserveInvalidation()
	}
	d.events.Publish(model.WSEvent{
		Type: model.WSEventEndpointRemoved,
		Payload: map[string]string{
			"endpoint": registry.Mask(token),
			"reason":   cause.Error(),
		},
	})
	return true
}

func addReasons(details *model.FilteringDetails, decision filter.Decision) {
	if decision.Has(filter.ReasonRegion) {
		details.ByRegion++
	}
	if decision.Has(filter.ReasonMagnitude) {
		details.ByMagnitude++
	}
	if decision.Has(filter.ReasonDistance) {
		details.ByDistance++
	}
}

func newResult() model.DispatchResult {
	return model.DispatchResult{Attempted: []model.EventSummary{}}
}
