package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/quocanhngo/quakealert/internal/feed"
	"github.com/quocanhngo/quakealert/internal/filter"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/spf13/cobra"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	FeedURL      string
	Window       time.Duration
	Region       string
	MinMagnitude float64
	Latitude     float64
	Longitude    float64
	MaxKm        float64
	NoRegion     bool
	NoMagnitude  bool
}

type checkOutput struct {
	Total     int                    `json:"total"`
	Admitted  []model.EventSummary   `json:"admitted"`
	Rejected  []model.FilteredEvent  `json:"rejected"`
	Malformed int                    `json:"malformed"`
	Details   model.FilteringDetails `json:"details"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{}
	def := model.DefaultDeviceConfig()

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Dry-run device filters against the live feed",
		Long: `Fetch the recent window from the feed and show which events a device
with the given settings would be notified about. Nothing is sent.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := def
			cfg.Region = model.Region(opts.Region)
			if !cfg.Region.IsValid() {
				return fmt.Errorf("invalid region %q: must be one of %v", opts.Region, model.ValidRegions)
			}
			cfg.FilterByRegion = !opts.NoRegion
			cfg.FilterByMagnitude = !opts.NoMagnitude
			cfg.MinMagnitude = opts.MinMagnitude
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
				lat, lon := opts.Latitude, opts.Longitude
				cfg.UserLatitude, cfg.UserLongitude = &lat, &lon
				cfg.FilterByDistance = true
				cfg.MaxDistanceKm = opts.MaxKm
			}

			src := feed.NewClient(opts.FeedURL, opts.Window, 0)
			events, err := src.Fetch(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch feed: %w", err)
			}
			return runCheck(cmd.OutOrStdout(), rootOpts.Format, events, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.FeedURL, "feed-url", feed.DefaultURL, "USGS FDSN event query URL")
	cmd.Flags().DurationVar(&opts.Window, "window", feed.DefaultWindow, "how far back to query")
	cmd.Flags().StringVar(&opts.Region, "region", string(def.Region), "region filter")
	cmd.Flags().Float64Var(&opts.MinMagnitude, "min-magnitude", def.MinMagnitude, "minimum magnitude")
	cmd.Flags().Float64Var(&opts.Latitude, "lat", 0, "user latitude (enables the distance filter with --lon)")
	cmd.Flags().Float64Var(&opts.Longitude, "lon", 0, "user longitude")
	cmd.Flags().Float64Var(&opts.MaxKm, "max-km", def.MaxDistanceKm, "maximum distance in km")
	cmd.Flags().BoolVar(&opts.NoRegion, "no-region", false, "disable the region filter")
	cmd.Flags().BoolVar(&opts.NoMagnitude, "no-magnitude", false, "disable the magnitude filter")

	return cmd
}

func runCheck(w io.Writer, format string, events []model.Event, cfg model.DeviceConfig) error {
	report := filter.Partition(events, cfg)

	out := checkOutput{
		Total:     len(events),
		Admitted:  make([]model.EventSummary, 0, len(report.Admitted)),
		Rejected:  report.Rejected,
		Malformed: report.Malformed,
		Details:   report.Details,
	}
	for _, ev := range report.Admitted {
		out.Admitted = append(out.Admitted, ev.Summary())
	}

	return write(w, format, out, func(w io.Writer) {
		fmt.Fprintf(w, "%d events, %d admitted, %d rejected (region=%d magnitude=%d distance=%d), %d malformed\n",
			out.Total, len(out.Admitted), len(out.Rejected),
			out.Details.ByRegion, out.Details.ByMagnitude, out.Details.ByDistance, out.Malformed)
		for _, ev := range out.Admitted {
			fmt.Fprintf(w, "  + M%.1f %s (%s)\n", ev.Magnitude, ev.Place, ev.ID)
		}
		for _, ev := range out.Rejected {
			fmt.Fprintf(w, "  - M%.1f %s (%s)\n", ev.Magnitude, ev.Place, ev.ID)
		}
	})
}
