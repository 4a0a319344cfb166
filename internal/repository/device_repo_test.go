package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.DeviceRecord{}, &model.EndpointRecord{}))
	return db
}

func TestSaveDeviceUpserts(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))
	ctx := context.Background()

	cfg := model.DefaultDeviceConfig()
	cfg.DeviceID = "dev-1"
	require.NoError(t, repo.SaveDevice(ctx, cfg))

	cfg.Enabled = false
	cfg.MinMagnitude = 5.5
	lat, lon := 13.75, 100.5
	cfg.UserLatitude, cfg.UserLongitude = &lat, &lon
	require.NoError(t, repo.SaveDevice(ctx, cfg))

	devices, _, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	got := devices[0].Config()
	assert.False(t, got.Enabled)
	assert.Equal(t, 5.5, got.MinMagnitude)
	require.True(t, got.HasLocation())
	assert.Equal(t, 13.75, *got.UserLatitude)

	count, err := repo.CountDevices(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestEndpointLifecycle(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))
	ctx := context.Background()

	dev := "dev-1"
	now := time.Now()
	require.NoError(t, repo.SaveEndpoint(ctx, model.EndpointRecord{Token: "tok-a", DeviceID: &dev, Platform: "android", RegisteredAt: now}))
	require.NoError(t, repo.SaveEndpoint(ctx, model.EndpointRecord{Token: "tok-b", Platform: "ios", RegisteredAt: now.Add(time.Second)}))

	// unmap tok-a
	require.NoError(t, repo.SaveEndpoint(ctx, model.EndpointRecord{Token: "tok-a", Platform: "android", RegisteredAt: now.Add(2 * time.Second)}))

	_, endpoints, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, endpoints, 2)
	assert.Equal(t, "tok-b", endpoints[0].Token)
	assert.Equal(t, "tok-a", endpoints[1].Token)
	assert.Nil(t, endpoints[1].DeviceID)

	require.NoError(t, repo.DeleteEndpoint(ctx, "tok-b"))
	_, endpoints, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, endpoints, 1)
}

func TestRegistryRoundTripThroughRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	reg := registry.New(repo)
	reg.RegisterEndpoint("tok-1", "dev-1", "android")
	reg.UpdateConfig("dev-1", func(cfg *model.DeviceConfig) {
		cfg.Region = model.RegionThailand
		cfg.FilterByMagnitude = false
	})
	reg.RegisterEndpoint("tok-2", "", "")

	restored := registry.New(NewDeviceRepository(db))
	require.NoError(t, restored.Load(context.Background()))

	assert.Equal(t, []string{"tok-1", "tok-2"}, restored.Endpoints())
	assert.Equal(t, []string{"tok-1"}, restored.EndpointsFor("dev-1"))

	cfg := restored.GetConfig("dev-1")
	assert.Equal(t, model.RegionThailand, cfg.Region)
	assert.False(t, cfg.FilterByMagnitude)
}
