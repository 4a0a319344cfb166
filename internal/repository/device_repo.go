package repository

import (
	"context"
	"fmt"

	"github.com/quocanhngo/quakealert/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository persists device configurations and endpoint mappings.
// It implements registry.Store.
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// LoadAll returns every device and endpoint, endpoints in registration order
func (r *DeviceRepository) LoadAll(ctx context.Context) ([]model.DeviceRecord, []model.EndpointRecord, error) {
	var devices []model.DeviceRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&devices).Error; err != nil {
		return nil, nil, fmt.Errorf("load devices: %w", err)
	}

	var endpoints []model.EndpointRecord
	if err := r.db.WithContext(ctx).Order("registered_at ASC, token ASC").Find(&endpoints).Error; err != nil {
		return nil, nil, fmt.Errorf("load endpoints: %w", err)
	}
	return devices, endpoints, nil
}

// SaveDevice upserts a device configuration
func (r *DeviceRepository) SaveDevice(ctx context.Context, cfg model.DeviceConfig) error {
	rec := model.NewDeviceRecord(cfg)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "filter_by_region", "region", "filter_by_magnitude", "min_magnitude",
			"filter_by_distance", "user_latitude", "user_longitude", "max_distance_km",
			"check_interval_minutes", "auto_check_on_startup", "log_filtering_details", "updated_at",
		}),
	}).Create(&rec).Error
}

// SaveEndpoint upserts a token mapping. A nil DeviceID unmaps the token.
func (r *DeviceRepository) SaveEndpoint(ctx context.Context, rec model.EndpointRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"device_id", "platform", "registered_at"}),
	}).Create(&rec).Error
}

// DeleteEndpoint removes a token
func (r *DeviceRepository) DeleteEndpoint(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&model.EndpointRecord{}).Error
}

// CountDevices returns the number of persisted devices
func (r *DeviceRepository) CountDevices(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.DeviceRecord{}).Count(&count).Error
	return count, err
}
