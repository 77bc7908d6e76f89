package redisgrid

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/jacentio/lattice/grid"
)

// mapError classifies a Redis failure. Error replies from the server are
// rejections; anything else means the server was not reached.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) && !errors.Is(err, redis.Nil) {
		return grid.Rejected(op, err)
	}
	return grid.Unavailable(op, err)
}
