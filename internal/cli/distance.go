package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/quocanhngo/quakealert/internal/geo"
	"github.com/spf13/cobra"
)

type distanceOutput struct {
	DistanceKm float64 `json:"distanceKm"`
}

// NewDistanceCommand creates the distance command.
func NewDistanceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "distance <lat1> <lon1> <lat2> <lon2>",
		Short:        "Great-circle distance between two points in km",
		Args:         cobra.ExactArgs(4),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			coords := make([]float64, len(args))
			for i, a := range args {
				v, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("invalid coordinate %q: %w", a, err)
				}
				coords[i] = v
			}

			km := geo.DistanceKm(coords[0], coords[1], coords[2], coords[3])
			out := distanceOutput{DistanceKm: math.Round(km*100) / 100}
			return write(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) {
				fmt.Fprintf(w, "%.1f km\n", km)
			})
		},
	}

	return cmd
}
