package service

import (
	"context"
	"testing"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_BroadcastRetriesTransientFailures(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "android")
	f.registry.RegisterEndpoint("tok-b", "dev-1", "android")
	f.sender.fail("tok-b", errTransient)

	res := f.dispatcher().Dispatch(context.Background(), quake("eq1", 5.0), "")

	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
	assert.Equal(t, 3, f.sender.callsTo("tok-b"))
	assert.Zero(t, res.EndpointsInvalidated)
	assert.ElementsMatch(t, []string{"tok-a", "tok-b"}, f.registry.Endpoints())
	assert.True(t, f.ledger.IsDeviceNotified("dev-1", "eq1"))
}

func TestDispatcher_BroadcastIsIdempotent(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	ctx := context.Background()

	first := f.dispatcher().Dispatch(ctx, quake("eq1", 5.0), "")
	second := f.dispatcher().Dispatch(ctx, quake("eq1", 5.0), "")

	assert.Equal(t, 1, first.Delivered)
	assert.Zero(t, second.Delivered)
	assert.Equal(t, 1, second.AlreadyNotified)
	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
}

func TestDispatcher_TargetedIsIdempotent(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	ctx := context.Background()

	first := f.dispatcher().Dispatch(ctx, quake("eq1", 5.0), "dev-1")
	second := f.dispatcher().Dispatch(ctx, quake("eq1", 5.0), "dev-1")

	assert.Equal(t, 1, first.Delivered)
	require.Len(t, first.Attempted, 1)
	assert.Equal(t, "eq1", first.Attempted[0].ID)
	assert.Zero(t, second.Delivered)
	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
	assert.True(t, f.ledger.IsEndpointNotified("tok-a", "eq1"))
}

func TestDispatcher_TargetedSkipsNotifiedSiblingOnly(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.registry.RegisterEndpoint("tok-b", "dev-1", "")
	f.ledger.MarkEndpointNotified("tok-a", "eq1")

	res := f.dispatcher().Dispatch(context.Background(), quake("eq1", 5.0), "dev-1")

	assert.Equal(t, 1, res.Delivered)
	assert.Zero(t, f.sender.callsTo("tok-a"))
	assert.Equal(t, 1, f.sender.callsTo("tok-b"))
}

func TestDispatcher_PermanentErrorRemovesEndpointForGood(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.registry.RegisterEndpoint("tok-b", "dev-2", "")
	f.sender.fail("tok-a", errPermanent)
	ctx := context.Background()

	res := f.dispatcher().Dispatch(ctx, quake("eq1", 5.0), "")

	assert.Equal(t, 1, res.EndpointsInvalidated)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
	assert.Equal(t, []string{"tok-b"}, f.registry.Endpoints())
	assert.Len(t, f.publisher.ofType(model.WSEventEndpointRemoved), 1)

	f.dispatcher().Dispatch(ctx, quake("eq2", 5.0), "")
	f.dispatcher().Dispatch(ctx, quake("eq3", 5.0), "dev-1")

	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
	assert.NotContains(t, f.registry.Endpoints(), "tok-a")
}

func TestDispatcher_TargetedNeverRetriesOrInvalidates(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.sender.fail("tok-a", errPermanent)

	res := f.dispatcher().Dispatch(context.Background(), quake("eq1", 5.0), "dev-1")

	assert.Zero(t, res.Delivered)
	assert.Zero(t, res.EndpointsInvalidated)
	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
	assert.Equal(t, []string{"tok-a"}, f.registry.Endpoints())
	assert.False(t, f.ledger.IsEndpointNotified("tok-a", "eq1"))
	assert.False(t, f.ledger.IsDeviceNotified("dev-1", "eq1"))
}

func TestDispatcher_FallbackOnlyWhenDeviceHasNoEndpoints(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-other", "dev-2", "")
	f.registry.GetConfig("dev-1")
	ctx := context.Background()

	res := f.dispatcher().Dispatch(ctx, quake("eq1", 5.0), "dev-1")
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, f.sender.callsTo("tok-other"))

	f.registry.RegisterEndpoint("tok-own", "dev-1", "")
	res = f.dispatcher().Dispatch(ctx, quake("eq2", 5.0), "dev-1")

	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, f.sender.callsTo("tok-own"))
	assert.Equal(t, 1, f.sender.callsTo("tok-other"))
}

func TestDispatcher_NoEndpointsAtAll(t *testing.T) {
	f := newFixture()

	res := f.dispatcher().Dispatch(context.Background(), quake("eq1", 5.0), "dev-1")

	assert.Zero(t, res.Delivered)
	assert.Equal(t, 1, res.Unreachable)
}

func TestDispatcher_DispatchDeviceFilters(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	malformed := quake("bad", 4.0)
	malformed.Place = ""

	res := f.dispatcher().DispatchDevice(context.Background(), "dev-1", []model.Event{
		quake("small", 2.0),
		quake("big", 5.0),
		malformed,
	})

	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 1, res.FilteringDetails.ByMagnitude)
	require.Len(t, res.Attempted, 1)
	assert.Equal(t, "big", res.Attempted[0].ID)
}

func TestDispatcher_DisabledDeviceGetsNothing(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.registry.UpdateConfig("dev-1", func(cfg *model.DeviceConfig) { cfg.Enabled = false })

	res := f.dispatcher().DispatchDevice(context.Background(), "dev-1", []model.Event{quake("eq1", 6.0)})

	assert.Zero(t, res.Delivered)
	assert.Zero(t, f.sender.callsTo("tok-a"))
}

func TestDispatcher_BroadcastUnmappedEndpointUsesDefaults(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-free", "", "")
	f.registry.UpdateDefaults(func(cfg *model.DeviceConfig) { cfg.MinMagnitude = 6 })
	ctx := context.Background()

	res := f.dispatcher().Dispatch(ctx, quake("small", 5.0), "")
	assert.Zero(t, res.Delivered)
	assert.Equal(t, 1, res.FilteringDetails.ByMagnitude)

	res = f.dispatcher().Dispatch(ctx, quake("big", 6.5), "")
	assert.Equal(t, 1, res.Delivered)
	assert.True(t, f.ledger.IsDeviceNotified(UnknownDevice, "big"))
	assert.False(t, f.ledger.IsEndpointNotified("tok-free", "big"))
	assert.Equal(t, "earthquake", f.sender.messages[0].Data["type"])
}

func TestDispatcher_BroadcastSkipsMalformed(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "", "")
	ev := quake("eq1", 0)

	res := f.dispatcher().Dispatch(context.Background(), ev, "")

	assert.Equal(t, 1, res.Malformed)
	assert.Zero(t, f.sender.callsTo("tok-a"))
}

func TestDispatcher_PublishesEveryAttempt(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.sender.fail("tok-a", errTransient)

	f.dispatcher().Dispatch(context.Background(), quake("eq1", 5.0), "")

	attempts := f.publisher.ofType(model.WSEventNotificationAttempt)
	require.Len(t, attempts, 3)
	last := attempts[2].Payload.(model.AttemptEvent)
	assert.Equal(t, 3, last.Attempt)
	assert.Equal(t, "transient", last.Outcome)
	assert.Equal(t, PathBroadcast, last.Path)
	assert.Equal(t, "tok-a...", last.Endpoint)
}

func TestDispatcher_RetryStopsOnCancel(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.sender.fail("tok-a", errTransient)
	d := NewDispatcher(f.registry, f.ledger, f.sender, nil, nil, RetryPolicy{Attempts: 3, Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := d.Dispatch(ctx, quake("eq1", 5.0), "")

	assert.Zero(t, res.Delivered)
	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
}
