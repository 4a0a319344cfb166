package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quocanhngo/quakealert/internal/ledger"
	"github.com/quocanhngo/quakealert/internal/metrics"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/registry"
	"github.com/quocanhngo/quakealert/pkg/notification"
)

var (
	errTransient = &notification.DeliveryError{Kind: notification.KindTransient, Err: errors.New("unavailable")}
	errPermanent = &notification.DeliveryError{Kind: notification.KindPermanent, Err: errors.New("unregistered")}
)

type fakeSender struct {
	mu       sync.Mutex
	failures map[string]error
	invalid  map[string]bool
	calls    map[string]int
	messages []*notification.Message
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failures: make(map[string]error),
		invalid:  make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (s *fakeSender) Send(ctx context.Context, token string, msg *notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[token]++
	s.messages = append(s.messages, msg)
	return s.failures[token]
}

func (s *fakeSender) Validate(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalid[token] {
		return errPermanent
	}
	return nil
}

func (s *fakeSender) fail(token string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[token] = err
}

func (s *fakeSender) callsTo(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[token]
}

type fakeFeed struct {
	events []model.Event
	err    error
	block  chan struct{}
	calls  atomic.Int32
}

func (f *fakeFeed) Fetch(ctx context.Context) ([]model.Event, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.events, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.WSEvent
}

func (p *recordingPublisher) Publish(event model.WSEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(t string) []model.WSEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.WSEvent
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	registry  *registry.Registry
	ledger    *ledger.Ledger
	sender    *fakeSender
	feed      *fakeFeed
	publisher *recordingPublisher
	engine    *Engine
}

func newFixture() *fixture {
	f := &fixture{
		registry:  registry.New(nil),
		ledger:    ledger.New(),
		sender:    newFakeSender(),
		feed:      &fakeFeed{},
		publisher: &recordingPublisher{},
	}
	f.engine = NewEngine(f.registry, f.ledger, f.feed, f.sender, f.publisher, metrics.New(),
		RetryPolicy{Attempts: 3, Delay: time.Millisecond})
	return f
}

func (f *fixture) dispatcher() *Dispatcher {
	return f.engine.Dispatcher()
}

func quake(id string, mag float64) model.Event {
	return model.Event{
		ID:         id,
		Magnitude:  mag,
		Place:      "Bangkok, Thailand",
		Latitude:   13.75,
		Longitude:  100.5,
		Depth:      10,
		OccurredAt: time.Date(2025, 3, 28, 6, 20, 0, 0, time.UTC),
	}
}
