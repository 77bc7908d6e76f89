package badgergrid

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/grid"
)

// mapError classifies a badger failure. Refusals of the transaction are
// rejections; a closed database or a cancelled call means unavailable.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var exists *grid.TupleAlreadyExistsError
	if errors.As(err, &exists) ||
		errors.Is(err, grid.ErrInvalidKey) ||
		errors.Is(err, grid.ErrBackendRejected) ||
		errors.Is(err, grid.ErrBackendUnavailable) {
		return err
	}
	switch {
	case errors.Is(err, badger.ErrDBClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return grid.Unavailable(op, err)
	case errors.Is(err, badger.ErrConflict),
		errors.Is(err, badger.ErrTxnTooBig),
		errors.Is(err, badger.ErrEmptyKey):
		return grid.Rejected(op, err)
	}
	return grid.Unavailable(op, err)
}
