package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/lattice/grid"
)

// NextValueOptions holds flags for the next-value command.
type NextValueOptions struct {
	Sequence     string
	Table        string
	KeyColumn    string
	ValueColumn  string
	Segment      string
	InitialValue int64
	Increment    int
	Count        int
}

// NewNextValueCommand creates the next-value command.
func NewNextValueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NextValueOptions{}

	cmd := &cobra.Command{
		Use:          "next-value",
		Short:        "Advance a sequence or table id source and print the values",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNextValue(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Sequence, "sequence", "", "sequence name")
	cmd.Flags().StringVar(&opts.Table, "table", "", "id table name")
	cmd.Flags().StringVar(&opts.KeyColumn, "key-column", "sequence_name", "key column of the id table")
	cmd.Flags().StringVar(&opts.ValueColumn, "value-column", "next_val", "value column of the id table")
	cmd.Flags().StringVar(&opts.Segment, "segment", "default", "segment of the id table")
	cmd.Flags().Int64Var(&opts.InitialValue, "initial", 1, "value returned by the first call")
	cmd.Flags().IntVar(&opts.Increment, "increment", 1, "increment between values")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of values to allocate")
	cmd.MarkFlagsMutuallyExclusive("sequence", "table")

	return cmd
}

// Request builds the id source request described by the flags.
func (o *NextValueOptions) Request() (grid.NextValueRequest, error) {
	var key grid.IdSourceKey
	switch {
	case o.Sequence != "":
		key = grid.ForSequence(o.Sequence)
	case o.Table != "":
		key = grid.ForTable(o.Table, o.KeyColumn, o.ValueColumn, o.Segment)
	default:
		return grid.NextValueRequest{}, errors.New("one of --sequence or --table is required")
	}
	if o.Count < 1 {
		return grid.NextValueRequest{}, fmt.Errorf("--count must be positive, got %d", o.Count)
	}
	return grid.NextValueRequest{Key: key, Increment: o.Increment, InitialValue: o.InitialValue}, nil
}

func runNextValue(cmd *cobra.Command, rootOpts *RootOptions, opts *NextValueOptions) error {
	req, err := opts.Request()
	if err != nil {
		return err
	}

	d, closer, err := rootOpts.open(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	for i := 0; i < opts.Count; i++ {
		v, err := d.NextValue(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}
