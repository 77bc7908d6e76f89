// Package cli implements the gridctl maintenance commands.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacentio/lattice/config"
	"github.com/jacentio/lattice/grid"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for gridctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gridctl",
		Short: "gridctl - maintenance for lattice grid stores",
		Long:  "Inspect and maintain the tuples and id sources stored through a lattice grid dialect.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "lattice.yaml", "path to the configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every dialect call to stderr")

	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewNextValueCommand(opts))

	return cmd
}

// open loads the configuration and opens the dialect it describes.
func (o *RootOptions) open(ctx context.Context, stderr io.Writer) (grid.Dialect, io.Closer, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	logger := zap.NewNop()
	if o.Verbose {
		cfg.Logging.Enabled = true
		logger = zap.New(zapCore(stderr))
	}
	d, closer, err := config.Open(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s dialect: %w", cfg.Dialect, err)
	}
	return d, closer, nil
}
