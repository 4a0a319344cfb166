package cli

import (
	"fmt"
	"io"

	"github.com/quocanhngo/quakealert/internal/config"
	"github.com/quocanhngo/quakealert/migrations"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command with up, down and version subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the devices/endpoints schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:          "up",
		Short:        "Apply pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrations.Run(config.Load().DB.URL())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "down",
		Short:        "Revert the last migration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrations.Rollback(config.Load().DB.URL())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "version",
		Short:        "Print the applied schema version",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, dirty, err := migrations.Version(config.Load().DB.URL())
			if err != nil {
				return err
			}
			out := map[string]interface{}{"version": version, "dirty": dirty}
			return write(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) {
				fmt.Fprintf(w, "version %d (dirty: %v)\n", version, dirty)
			})
		},
	})

	return cmd
}
