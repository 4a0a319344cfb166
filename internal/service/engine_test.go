package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_RunPassBroadcastsWhenNoDevices(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "", "")
	f.feed.events = []model.Event{quake("eq1", 5.0)}

	report, err := f.engine.RunPass(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Fetched)
	assert.Zero(t, report.Devices)
	assert.Equal(t, 1, report.Delivered)
	assert.NotEmpty(t, report.ID)
	assert.Len(t, f.publisher.ofType(model.WSEventPassCompleted), 1)
}

func TestEngine_RunPassTargetsEveryDevice(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.registry.RegisterEndpoint("tok-b", "dev-2", "")
	f.registry.UpdateConfig("dev-2", func(cfg *model.DeviceConfig) { cfg.MinMagnitude = 6 })
	f.feed.events = []model.Event{quake("eq1", 5.0)}

	report, err := f.engine.RunPass(context.Background(), TriggerTicker)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Devices)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
	assert.Zero(t, f.sender.callsTo("tok-b"))

	report, err = f.engine.RunPass(context.Background(), TriggerTicker)
	require.NoError(t, err)
	assert.Zero(t, report.Delivered)
}

func TestEngine_RunPassSurvivesFeedError(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.feed.err = errors.New("connection refused")

	report, err := f.engine.RunPass(context.Background(), TriggerTicker)
	require.NoError(t, err)

	assert.Zero(t, report.Fetched)
	assert.Zero(t, report.Delivered)
	assert.False(t, f.engine.Running())
}

func TestEngine_SkipsPassWhileRunning(t *testing.T) {
	f := newFixture()
	f.feed.block = make(chan struct{})

	done := make(chan *model.PassReport)
	go func() {
		report, _ := f.engine.RunPass(context.Background(), TriggerTicker)
		done <- report
	}()
	require.Eventually(t, f.engine.Running, time.Second, time.Millisecond)

	_, err := f.engine.RunPass(context.Background(), TriggerTicker)
	assert.ErrorIs(t, err, ErrPassInProgress)
	assert.Equal(t, "running", f.engine.Stats().PollerState)

	close(f.feed.block)
	report := <-done
	require.NotNil(t, report)
	assert.Equal(t, int32(1), f.feed.calls.Load())
	assert.False(t, f.engine.Running())
}

func TestEngine_CheckDevice(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.feed.events = []model.Event{quake("small", 2.0), quake("big", 5.0)}
	ctx := context.Background()

	report, err := f.engine.CheckDevice(ctx, "dev-1")
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Filtered.Count)
	assert.Equal(t, 1, report.Filtered.ByMagnitude)
	require.Len(t, report.Earthquakes, 1)
	assert.Equal(t, "big", report.Earthquakes[0].ID)
	assert.Equal(t, 1, report.NotificationsCount)

	report, err = f.engine.CheckDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Zero(t, report.NotificationsCount)
	assert.Equal(t, 1, report.FilteredByNotification)

	_, err = f.engine.CheckDevice(ctx, "")
	assert.ErrorIs(t, err, ErrDeviceIDRequired)
}

func TestEngine_ResetDeviceAllowsRedelivery(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.registry.RegisterEndpoint("tok-b", "dev-2", "")
	f.feed.events = []model.Event{quake("eq1", 5.0)}
	ctx := context.Background()

	_, err := f.engine.RunPass(ctx, TriggerTicker)
	require.NoError(t, err)

	cleared, err := f.engine.ResetDevice("dev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	report, err := f.engine.RunPass(ctx, TriggerTicker)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 2, f.sender.callsTo("tok-a"))
	assert.Equal(t, 1, f.sender.callsTo("tok-b"))

	f.engine.ResetAll()
	assert.Zero(t, f.engine.Stats().Ledger.DeviceEntries)
}

func TestEngine_SendTestLeavesLedgerAlone(t *testing.T) {
	f := newFixture()
	mag := 6.1

	summary, err := f.engine.SendTest(context.Background(), model.TestNotificationRequest{
		Token:     "tok-a",
		Magnitude: &mag,
	})
	require.NoError(t, err)

	assert.Contains(t, summary.ID, "test_")
	assert.Equal(t, 6.1, summary.Magnitude)
	assert.Equal(t, testPlace, summary.Place)
	assert.Equal(t, 1, f.sender.callsTo("tok-a"))
	assert.Equal(t, "true", f.sender.messages[0].Data["isTest"])
	assert.Zero(t, f.engine.Stats().Ledger.EndpointEntries)

	f.sender.fail("tok-b", errTransient)
	_, err = f.engine.SendTest(context.Background(), model.TestNotificationRequest{Token: "tok-b"})
	assert.Error(t, err)
}

func TestEngine_MaintainRemovesInvalidEndpoints(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-good", "dev-1", "")
	f.registry.RegisterEndpoint("tok-dead", "dev-1", "")
	f.sender.invalid["tok-dead"] = true
	for i := 0; i < 1200; i++ {
		f.ledger.MarkDeviceNotified("dev-1", time.Unix(int64(i), 0).String())
	}

	pruned, removed := f.engine.Maintain(context.Background())

	assert.Equal(t, 1, pruned)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"tok-good"}, f.registry.Endpoints())
	assert.Equal(t, 500, f.engine.Stats().Ledger.DeviceEntries)
}

func TestEngine_Stats(t *testing.T) {
	f := newFixture()
	f.registry.RegisterEndpoint("tok-a", "dev-1", "")
	f.registry.RegisterEndpoint("tok-b", "", "")

	stats := f.engine.Stats()
	assert.Equal(t, 2, stats.Endpoints)
	assert.Equal(t, 1, stats.MappedEndpoints)
	assert.Equal(t, 1, stats.Devices)
	assert.Equal(t, "idle", stats.PollerState)
	assert.Nil(t, stats.LastPass)

	_, err := f.engine.RunPass(context.Background(), TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, f.engine.Stats().LastPass)
	assert.Equal(t, TriggerManual, f.engine.Stats().LastPass.Trigger)
}
