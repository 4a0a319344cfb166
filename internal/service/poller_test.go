package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_RunsStartupAndTicks(t *testing.T) {
	f := newFixture()
	p := NewPoller(f.engine, PollerConfig{
		Interval:     10 * time.Millisecond,
		StartupCheck: true,
		Warmups:      []time.Duration{5 * time.Millisecond},
		Maintenance:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return f.feed.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.False(t, f.engine.Running())
}

func TestPoller_TriggerRunsPassAndRestartsTicker(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "", "")
	f.feed.events = append(f.feed.events, quake("eq1", 5.0))
	p := NewPoller(f.engine, PollerConfig{Interval: time.Hour})

	report, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.Equal(t, TriggerManual, report.Trigger)
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, p.restart, 1)

	_, err = p.Trigger(context.Background())
	require.NoError(t, err)
	assert.Len(t, p.restart, 1)
}

func TestPoller_Defaults(t *testing.T) {
	p := NewPoller(newFixture().engine, PollerConfig{})
	assert.Equal(t, time.Minute, p.cfg.Interval)
	assert.Equal(t, 24*time.Hour, p.cfg.Maintenance)
	assert.False(t, p.cfg.StartupCheck)
}
