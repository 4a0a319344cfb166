package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
)

// Pass triggers
const (
	TriggerTicker  = "ticker"
	TriggerStartup = "startup"
	TriggerWarmup  = "warmup"
	TriggerManual  = "manual"
)

// PollerConfig controls pass scheduling
type PollerConfig struct {
	Interval     time.Duration
	StartupCheck bool
	Warmups      []time.Duration
	Maintenance  time.Duration
}

// DefaultPollerConfig polls every minute with warm-up checks at two and four minutes
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:     time.Minute,
		StartupCheck: true,
		Warmups:      []time.Duration{2 * time.Minute, 4 * time.Minute},
		Maintenance:  24 * time.Hour,
	}
}

// Poller drives the engine from a ticker plus startup, warm-up and manual triggers
type Poller struct {
	engine  *Engine
	cfg     PollerConfig
	restart chan struct{}
	wg      sync.WaitGroup
}

func NewPoller(engine *Engine, cfg PollerConfig) *Poller {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Maintenance <= 0 {
		cfg.Maintenance = def.Maintenance
	}
	return &Poller{
		engine:  engine,
		cfg:     cfg,
		restart: make(chan struct{}, 1),
	}
}

// Interval returns the ticker period
func (p *Poller) Interval() time.Duration {
	return p.cfg.Interval
}

// Run schedules passes until ctx is canceled, then waits for in-flight work
func (p *Poller) Run(ctx context.Context) {
	log.Printf("🚀 Poller started: interval=%s warmups=%v maintenance=%s", p.cfg.Interval, p.cfg.Warmups, p.cfg.Maintenance)

	if p.cfg.StartupCheck {
		p.spawn(ctx, TriggerStartup)
	}
	for _, delay := range p.cfg.Warmups {
		p.wg.Add(1)
		go func(d time.Duration) {
			defer p.wg.Done()
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				p.pass(ctx, TriggerWarmup)
			case <-ctx.Done():
			}
		}(delay)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	maintenance := time.NewTicker(p.cfg.Maintenance)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			log.Println("🛑 Poller stopped")
			return
		case <-ticker.C:
			p.spawn(ctx, TriggerTicker)
		case <-p.restart:
			ticker.Reset(p.cfg.Interval)
			log.Printf("🔁 Poll ticker restarted (interval=%s)", p.cfg.Interval)
		case <-maintenance.C:
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.engine.Maintain(ctx)
			}()
		}
	}
}

// Trigger runs a pass now and restarts the ticker so the next scheduled pass is a full interval away
func (p *Poller) Trigger(ctx context.Context) (*model.PassReport, error) {
	report, err := p.engine.RunPass(ctx, TriggerManual)
	select {
	case p.restart <- struct{}{}:
	default:
	}
	return report, err
}

// spawn runs a pass in the background so a slow pass never delays the ticker;
// the engine itself rejects overlapping passes
func (p *Poller) spawn(ctx context.Context, trigger string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pass(ctx, trigger)
	}()
}

func (p *Poller) pass(ctx context.Context, trigger string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Poll pass (%s) panicked: %v", trigger, r)
		}
	}()
	_, _ = p.engine.RunPass(ctx, trigger)
}
