package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/quakealert/internal/feed"
	"github.com/quocanhngo/quakealert/internal/filter"
	"github.com/quocanhngo/quakealert/internal/ledger"
	"github.com/quocanhngo/quakealert/internal/metrics"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/registry"
	"github.com/quocanhngo/quakealert/pkg/notification"
)

var (
	// ErrPassInProgress is returned when a pass is requested while another one runs
	ErrPassInProgress = errors.New("poll pass already in progress")
	// ErrDeviceIDRequired is returned by device-scoped operations called without an id
	ErrDeviceIDRequired = errors.New("deviceId is required")
)

const (
	stateIdle int32 = iota
	stateRunning
)

// Test notification defaults, a point in central Bangkok
const (
	testMagnitude = 5.0
	testPlace     = "ทดสอบ, ประเทศไทย"
	testLatitude  = 13.7563
	testLongitude = 100.5018
	testDepth     = 10.0
)

// Engine owns the registry, the dedup ledger and the collaborators of a pass.
// All engine state lives here; nothing is package-global.
type Engine struct {
	registry   *registry.Registry
	ledger     *ledger.Ledger
	feed       feed.Source
	sender     notification.Sender
	events     Publisher
	metrics    *metrics.Metrics
	dispatcher *Dispatcher

	state    atomic.Int32
	lastPass atomic.Pointer[model.PassReport]
	now      func() time.Time
}

func NewEngine(
	reg *registry.Registry,
	led *ledger.Ledger,
	src feed.Source,
	sender notification.Sender,
	events Publisher,
	m *metrics.Metrics,
	retry RetryPolicy,
) *Engine {
	if events == nil {
		events = noopPublisher{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		registry:   reg,
		ledger:     led,
		feed:       src,
		sender:     sender,
		events:     events,
		metrics:    m,
		dispatcher: NewDispatcher(reg, led, sender, events, m, retry),
		now:        time.Now,
	}
}

// Registry returns the device registry
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Dispatcher returns the dispatch executor
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// Running reports whether a pass is in progress
func (e *Engine) Running() bool {
	return e.state.Load() == stateRunning
}

// RunPass performs one fetch-filter-dispatch pass.
// It returns ErrPassInProgress instead of overlapping a running pass.
func (e *Engine) RunPass(ctx context.Context, trigger string) (*model.PassReport, error) {
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		log.Printf("⏭️  Poll pass (%s) skipped, previous pass still running", trigger)
		e.metrics.ObservePass(trigger, "skipped", 0)
		return nil, ErrPassInProgress
	}
	defer e.state.Store(stateIdle)

	start := e.now()
	report := &model.PassReport{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		StartedAt: start,
	}

	events := e.fetch(ctx)
	report.Fetched = len(events)

	devices := e.registry.ListDeviceIDs()
	report.Devices = len(devices)

	result := newResult()
	if len(devices) > 0 {
		for _, deviceID := range devices {
			if ctx.Err() != nil {
				break
			}
			result.Merge(e.dispatcher.DispatchDevice(ctx, deviceID, events))
		}
	} else {
		result = e.dispatcher.Broadcast(ctx, events)
	}

	report.Delivered = result.Delivered
	report.EndpointsInvalidated = result.EndpointsInvalidated
	report.Duration = time.Since(start)

	e.lastPass.Store(report)
	e.metrics.ObservePass(trigger, "completed", report.Duration)
	e.refreshGauges()
	e.events.Publish(model.WSEvent{Type: model.WSEventPassCompleted, Payload: report})

	log.Printf("✅ Poll pass %s (%s): fetched=%d devices=%d delivered=%d invalidated=%d duration=%s",
		report.ID, trigger, report.Fetched, report.Devices, report.Delivered,
		report.EndpointsInvalidated, report.Duration.Round(time.Millisecond))
	return report, nil
}

// CheckDevice fetches recent events, reports how deviceID's filters treat them
// and dispatches the admitted ones to the device
func (e *Engine) CheckDevice(ctx context.Context, deviceID string) (*model.CheckReport, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}

	events := e.fetch(ctx)
	cfg := e.registry.GetConfig(deviceID)
	partition := filter.Partition(events, cfg)

	report := &model.CheckReport{
		Success:  true,
		Settings: cfg,
		Total:    len(events),
		Filtered: model.FilteredSummary{
			Count:       len(partition.Rejected),
			ByRegion:    partition.Details.ByRegion,
			ByMagnitude: partition.Details.ByMagnitude,
			ByDistance:  partition.Details.ByDistance,
			Earthquakes: partition.Rejected,
		},
		Earthquakes:    partition.Admitted,
		NotifiedQuakes: []model.EventSummary{},
	}

	if !cfg.Enabled {
		log.Printf("⏸️  Notifications disabled for device %s, check reports only", deviceID)
		return report, nil
	}

	result := newResult()
	for _, ev := range partition.Admitted {
		if ctx.Err() != nil {
			break
		}
		result.Merge(e.dispatcher.Dispatch(ctx, ev, deviceID))
	}
	report.NotificationsCount = result.Delivered
	report.NotifiedQuakes = result.Attempted
	report.FilteredByNotification = result.AlreadyNotified
	return report, nil
}

// SendTest sends a synthetic alert to one token. The ledger is not touched.
func (e *Engine) SendTest(ctx context.Context, req model.TestNotificationRequest) (model.EventSummary, error) {
	now := e.now()
	ev := model.Event{
		ID:         fmt.Sprintf("test_%d", now.UnixMilli()),
		Magnitude:  floatOr(req.Magnitude, testMagnitude),
		Place:      req.Location,
		Latitude:   floatOr(req.Latitude, testLatitude),
		Longitude:  floatOr(req.Longitude, testLongitude),
		Depth:      floatOr(req.Depth, testDepth),
		OccurredAt: now,
	}
	if ev.Place == "" {
		ev.Place = testPlace
	}

	msg := notification.TestMessage(ev, req.Title, req.Body, now)
	if err := e.sender.Send(ctx, req.Token, msg); err != nil {
		log.Printf("❌ Test notification to %s failed: %v", registry.Mask(req.Token), err)
		return ev.Summary(), fmt.Errorf("send test notification: %w", err)
	}
	log.Printf("🧪 Test notification %s sent to %s", ev.ID, registry.Mask(req.Token))
	return ev.Summary(), nil
}

// ResetAll clears all notification history
func (e *Engine) ResetAll() {
	e.ledger.ResetAll()
	e.refreshGauges()
	log.Println("🔁 Notification history cleared")
}

// ResetDevice clears deviceID's history and that of its currently mapped endpoints.
// It returns how many endpoint histories were cleared.
func (e *Engine) ResetDevice(deviceID string) (int, error) {
	if deviceID == "" {
		return 0, ErrDeviceIDRequired
	}
	cleared := e.ledger.ResetDevice(deviceID, e.registry.EndpointsFor(deviceID))
	e.refreshGauges()
	log.Printf("🔁 Notification history cleared for device %s (%d endpoints)", deviceID, cleared)
	return cleared, nil
}

// Maintain prunes oversized ledger sets and removes endpoints the transport rejects
func (e *Engine) Maintain(ctx context.Context) (pruned, removed int) {
	pruned = e.ledger.PruneIfOversized()

	for _, token := range e.registry.Endpoints() {
		if ctx.Err() != nil {
			break
		}
		err := e.sender.Validate(ctx, token)
		if err == nil {
			continue
		}
		if notification.IsPermanent(err) {
			if e.dispatcher.Invalidate(token, err) {
				removed++
			}
			continue
		}
		log.Printf("⚠️  Could not validate endpoint %s: %v", registry.Mask(token), err)
	}

	e.refreshGauges()
	log.Printf("🧹 Maintenance done: pruned=%d removed=%d", pruned, removed)
	return pruned, removed
}

// Stats reports registry and ledger sizes and the last pass
func (e *Engine) Stats() model.EngineStats {
	endpoints, mapped, devices := e.registry.Counts()
	stats := model.EngineStats{
		Endpoints:       endpoints,
		MappedEndpoints: mapped,
		Devices:         devices,
		Ledger:          e.ledger.Stats(),
		PollerState:     "idle",
		LastPass:        e.lastPass.Load(),
	}
	if e.Running() {
		stats.PollerState = "running"
	}
	return stats
}

func (e *Engine) fetch(ctx context.Context) []model.Event {
	events, err := e.feed.Fetch(ctx)
	e.metrics.ObserveFetch(len(events), err)
	if err != nil {
		log.Printf("❌ Feed fetch failed, continuing with no events: %v", err)
		return nil
	}
	return events
}

func (e *Engine) refreshGauges() {
	endpoints, _, devices := e.registry.Counts()
	e.metrics.SetRegistrySize(endpoints, devices)
	ls := e.ledger.Stats()
	e.metrics.SetLedgerSize(ls.EndpointEntries, ls.DeviceEntries)
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
