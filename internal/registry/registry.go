// Package registry keeps device configurations and the endpoint-to-device mapping.
package registry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
)

// ErrEndpointNotFound is returned when removing a token that is not registered
var ErrEndpointNotFound = errors.New("endpoint not found")

const storeTimeout = 5 * time.Second

// Store persists registry mutations. The in-memory registry stays authoritative;
// store failures are logged and never fail the mutation.
type Store interface {
	LoadAll(ctx context.Context) ([]model.DeviceRecord, []model.EndpointRecord, error)
	SaveDevice(ctx context.Context, cfg model.DeviceConfig) error
	SaveEndpoint(ctx context.Context, rec model.EndpointRecord) error
	DeleteEndpoint(ctx context.Context, token string) error
}

// Registry maps device ids to configurations and tokens to devices.
// Iteration order is registration order; re-registering a token moves it to the end.
type Registry struct {
	mu          sync.RWMutex
	defaults    model.DeviceConfig
	configs     map[string]*model.DeviceConfig
	deviceOrder []string
	endpoints   []string
	platforms   map[string]string
	owners      map[string]string
	store       Store
}

// New creates an empty registry. store may be nil.
func New(store Store) *Registry {
	return &Registry{
		defaults:  model.DefaultDeviceConfig(),
		configs:   make(map[string]*model.DeviceConfig),
		platforms: make(map[string]string),
		owners:    make(map[string]string),
		store:     store,
	}
}

// Load replaces the in-memory state with what the store holds
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	devices, endpoints, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = make(map[string]*model.DeviceConfig, len(devices))
	r.deviceOrder = r.deviceOrder[:0]
	for _, rec := range devices {
		cfg := rec.Config()
		r.configs[rec.DeviceID] = &cfg
		r.deviceOrder = append(r.deviceOrder, rec.DeviceID)
	}
	r.endpoints = r.endpoints[:0]
	r.platforms = make(map[string]string, len(endpoints))
	r.owners = make(map[string]string, len(endpoints))
	for _, rec := range endpoints {
		r.endpoints = append(r.endpoints, rec.Token)
		r.platforms[rec.Token] = rec.Platform
		if rec.DeviceID != nil && *rec.DeviceID != "" {
			r.owners[rec.Token] = *rec.DeviceID
		}
	}
	log.Printf("📦 Registry loaded: %d devices, %d endpoints", len(r.configs), len(r.endpoints))
	return nil
}

// Defaults returns the configuration applied to new devices and unmapped endpoints
func (r *Registry) Defaults() model.DeviceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults.Clone()
}

// UpdateDefaults mutates the global defaults. Existing devices are unaffected.
func (r *Registry) UpdateDefaults(fn func(cfg *model.DeviceConfig)) model.DeviceConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.defaults)
	r.defaults.DeviceID = ""
	return r.defaults.Clone()
}

// GetConfig returns the configuration of deviceID, creating it from the defaults on first access
func (r *Registry) GetConfig(deviceID string) model.DeviceConfig {
	r.mu.RLock()
	cfg, ok := r.configs[deviceID]
	if ok {
		out := cfg.Clone()
		r.mu.RUnlock()
		return out
	}
	r.mu.RUnlock()

	r.mu.Lock()
	out, created := r.ensureLocked(deviceID)
	r.mu.Unlock()

	if created {
		r.persistDevice(out)
	}
	return out
}

// UpdateConfig applies fn to deviceID's configuration, creating it first if needed
func (r *Registry) UpdateConfig(deviceID string, fn func(cfg *model.DeviceConfig)) model.DeviceConfig {
	r.mu.Lock()
	r.ensureLocked(deviceID)
	cfg := r.configs[deviceID]
	fn(cfg)
	cfg.DeviceID = deviceID
	out := cfg.Clone()
	r.mu.Unlock()

	r.persistDevice(out)
	return out
}

// ListDeviceIDs returns every configured device in creation order
func (r *Registry) ListDeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.deviceOrder))
	copy(out, r.deviceOrder)
	return out
}

// Endpoints returns every registered token, oldest registration first
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// EndpointsFor returns the tokens currently mapped to deviceID
func (r *Registry) EndpointsFor(deviceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, token := range r.endpoints {
		if r.owners[token] == deviceID {
			out = append(out, token)
		}
	}
	return out
}

// OwnerOf returns the device a token is mapped to
func (r *Registry) OwnerOf(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[token]
	return id, ok
}

// MostRecentEndpoint returns the last registered token
func (r *Registry) MostRecentEndpoint() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.endpoints) == 0 {
		return "", false
	}
	return r.endpoints[len(r.endpoints)-1], true
}

// Counts returns the number of endpoints, mapped endpoints and devices
func (r *Registry) Counts() (endpoints, mapped, devices int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints), len(r.owners), len(r.configs)
}

// RegisterEndpoint adds token and maps it to deviceID, replacing any previous owner.
// An empty deviceID registers the token unmapped, keeping an existing mapping.
// It returns the owner's configuration, or the defaults for an unmapped token.
func (r *Registry) RegisterEndpoint(token, deviceID, platform string) model.DeviceConfig {
	r.mu.Lock()
	var (
		cfg     model.DeviceConfig
		created bool
	)
	if deviceID != "" {
		cfg, created = r.ensureLocked(deviceID)
		if prev, ok := r.owners[token]; ok && prev != deviceID {
			log.Printf("🔁 Token %s remapped from device %s to %s", Mask(token), prev, deviceID)
		}
		r.owners[token] = deviceID
	} else {
		cfg = r.defaults.Clone()
	}
	r.touchLocked(token, platform)
	rec := r.endpointRecordLocked(token)
	r.mu.Unlock()

	if created {
		r.persistDevice(cfg)
	}
	r.persistEndpoint(rec)
	return cfg
}

// ReplaceDeviceEndpoints unmaps every other token of deviceID and maps token to it.
// Unmapped tokens stay registered.
func (r *Registry) ReplaceDeviceEndpoints(token, deviceID, platform string) model.DeviceConfig {
	r.mu.Lock()
	var released []model.EndpointRecord
	for _, existing := range r.endpoints {
		if existing != token && r.owners[existing] == deviceID {
			delete(r.owners, existing)
			released = append(released, r.endpointRecordLocked(existing))
			log.Printf("🔁 Token %s unmapped from device %s", Mask(existing), deviceID)
		}
	}
	r.mu.Unlock()

	for _, rec := range released {
		r.persistEndpoint(rec)
	}
	return r.RegisterEndpoint(token, deviceID, platform)
}

// RemoveEndpoint deletes token and its mapping
func (r *Registry) RemoveEndpoint(token string) error {
	r.mu.Lock()
	idx := -1
	for i, t := range r.endpoints {
		if t == token {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return ErrEndpointNotFound
	}
	r.endpoints = append(r.endpoints[:idx], r.endpoints[idx+1:]...)
	delete(r.owners, token)
	delete(r.platforms, token)
	r.mu.Unlock()

	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := r.store.DeleteEndpoint(ctx, token); err != nil {
			log.Printf("⚠️  Failed to delete endpoint %s from store: %v", Mask(token), err)
		}
	}
	return nil
}

// ensureLocked creates deviceID from the defaults when absent. Callers hold r.mu.
func (r *Registry) ensureLocked(deviceID string) (model.DeviceConfig, bool) {
	if cfg, ok := r.configs[deviceID]; ok {
		return cfg.Clone(), false
	}
	cfg := r.defaults.Clone()
	cfg.DeviceID = deviceID
	r.configs[deviceID] = &cfg
	r.deviceOrder = append(r.deviceOrder, deviceID)
	log.Printf("🆕 Created default settings for device: %s", deviceID)
	return cfg.Clone(), true
}

// touchLocked moves token to the most-recent position. Callers hold r.mu.
func (r *Registry) touchLocked(token, platform string) {
	for i, t := range r.endpoints {
		if t == token {
			r.endpoints = append(r.endpoints[:i], r.endpoints[i+1:]...)
			break
		}
	}
	r.endpoints = append(r.endpoints, token)
	if platform != "" {
		r.platforms[token] = platform
	} else if _, ok := r.platforms[token]; !ok {
		r.platforms[token] = "unknown"
	}
}

func (r *Registry) endpointRecordLocked(token string) model.EndpointRecord {
	rec := model.EndpointRecord{
		Token:        token,
		Platform:     r.platforms[token],
		RegisteredAt: time.Now(),
	}
	if owner, ok := r.owners[token]; ok {
		rec.DeviceID = &owner
	}
	return rec
}

func (r *Registry) persistDevice(cfg model.DeviceConfig) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.SaveDevice(ctx, cfg); err != nil {
		log.Printf("⚠️  Failed to persist device %s: %v", cfg.DeviceID, err)
	}
}

func (r *Registry) persistEndpoint(rec model.EndpointRecord) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.SaveEndpoint(ctx, rec); err != nil {
		log.Printf("⚠️  Failed to persist endpoint %s: %v", Mask(rec.Token), err)
	}
}

// Mask shortens a token for logs
func Mask(token string) string {
	if len(token) <= 8 {
		return token + "..."
	}
	return token[:8] + "..."
}
