package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jacentio/lattice/grid"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	Tables     []string
	KeyColumns []string
}

// DumpLine is one tuple written by dump.
type DumpLine struct {
	Table string         `json:"table"`
	Tuple map[string]any `json:"tuple"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write every stored tuple of the given tables as JSON lines",
		Long: `Iterate over every stored tuple of the given tables and write one JSON
object per tuple to stdout. Every table shares the key columns given with
--key-columns.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Tables, "table", "t", nil, "table to dump (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.KeyColumns, "key-columns", "k", []string{"id"}, "key column names of the tables")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runDump(cmd *cobra.Command, rootOpts *RootOptions, opts *DumpOptions) error {
	metas := make([]*grid.EntityKeyMetadata, 0, len(opts.Tables))
	for _, table := range opts.Tables {
		meta, err := grid.NewEntityKeyMetadata(table, opts.KeyColumns...)
		if err != nil {
			return err
		}
		metas = append(metas, meta)
	}

	d, closer, err := rootOpts.open(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	n, err := dump(cmd.Context(), d, metas, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d tuple(s)\n", n)
	return nil
}

func dump(ctx context.Context, d grid.Dialect, metas []*grid.EntityKeyMetadata, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	err := d.ForEachTuple(ctx, func(meta *grid.EntityKeyMetadata, t *grid.Tuple) error {
		n++
		return enc.Encode(DumpLine{Table: meta.Table(), Tuple: t.Map()})
	}, metas...)
	return n, err
}
