package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/quocanhngo/quakealert/internal/config"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/registry"
	"github.com/quocanhngo/quakealert/internal/repository"
	"github.com/quocanhngo/quakealert/migrations"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SeedFile is the YAML layout accepted by the seed command:
//
//	devices:
//	  - deviceId: pixel-7
//	    region: th
//	    minMagnitude: 4.0
//	    latitude: 13.75
//	    longitude: 100.5
//	    maxDistanceKm: 800
//	    tokens: [fcm-token-1]
type SeedFile struct {
	Devices []SeedDevice `yaml:"devices"`
}

// SeedDevice overrides the default settings of one device. Omitted fields keep the default.
type SeedDevice struct {
	DeviceID          string   `yaml:"deviceId"`
	Enabled           *bool    `yaml:"enabled"`
	Region            string   `yaml:"region"`
	FilterByRegion    *bool    `yaml:"filterByRegion"`
	MinMagnitude      *float64 `yaml:"minMagnitude"`
	FilterByMagnitude *bool    `yaml:"filterByMagnitude"`
	Latitude          *float64 `yaml:"latitude"`
	Longitude         *float64 `yaml:"longitude"`
	MaxDistanceKm     *float64 `yaml:"maxDistanceKm"`
	FilterByDistance  *bool    `yaml:"filterByDistance"`
	Platform          string   `yaml:"platform"`
	Tokens            []string `yaml:"tokens"`
}

// ParseSeedFile decodes and validates a seed document
func ParseSeedFile(r io.Reader) (*SeedFile, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for i, d := range f.Devices {
		if d.DeviceID == "" {
			return nil, fmt.Errorf("device #%d: deviceId is required", i+1)
		}
		if d.Region != "" && !model.Region(d.Region).IsValid() {
			return nil, fmt.Errorf("device %s: invalid region %q", d.DeviceID, d.Region)
		}
	}
	return &f, nil
}

// Apply writes the seed into reg, returning the number of devices and tokens applied
func (f *SeedFile) Apply(reg *registry.Registry) (devices, tokens int) {
	for _, d := range f.Devices {
		reg.UpdateConfig(d.DeviceID, func(cfg *model.DeviceConfig) {
			if d.Enabled != nil {
				cfg.Enabled = *d.Enabled
			}
			if d.Region != "" {
				cfg.Region = model.Region(d.Region)
			}
			if d.FilterByRegion != nil {
				cfg.FilterByRegion = *d.FilterByRegion
			}
			if d.MinMagnitude != nil {
				cfg.MinMagnitude = *d.MinMagnitude
			}
			if d.FilterByMagnitude != nil {
				cfg.FilterByMagnitude = *d.FilterByMagnitude
			}
			if d.Latitude != nil && d.Longitude != nil {
				lat, lon := *d.Latitude, *d.Longitude
				cfg.UserLatitude, cfg.UserLongitude = &lat, &lon
			}
			if d.MaxDistanceKm != nil {
				cfg.MaxDistanceKm = *d.MaxDistanceKm
			}
			if d.FilterByDistance != nil {
				cfg.FilterByDistance = *d.FilterByDistance
			}
		})
		devices++
		for _, token := range d.Tokens {
			reg.RegisterEndpoint(token, d.DeviceID, d.Platform)
			tokens++
		}
	}
	return devices, tokens
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "seed <file.yaml>",
		Short:        "Upsert devices and tokens from a YAML file into PostgreSQL",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer fh.Close()

			seed, err := ParseSeedFile(fh)
			if err != nil {
				return err
			}

			cfg := config.Load()
			db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Silent),
			})
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			if err := migrations.Run(cfg.DB.URL()); err != nil {
				return err
			}

			ctx := context.Background()
			repo := repository.NewDeviceRepository(db)
			reg := registry.New(repo)
			if err := reg.Load(ctx); err != nil {
				return fmt.Errorf("load registry: %w", err)
			}
			devices, tokens := seed.Apply(reg)

			stored, err := repo.CountDevices(ctx)
			if err != nil {
				return fmt.Errorf("count devices: %w", err)
			}

			out := map[string]int64{"devices": int64(devices), "tokens": int64(tokens), "stored": stored}
			return write(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) {
				fmt.Fprintf(w, "🌱 Seeded %d devices and %d tokens (%d devices stored)\n", devices, tokens, stored)
			})
		},
	}

	return cmd
}
