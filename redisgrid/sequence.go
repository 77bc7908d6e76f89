package redisgrid

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jacentio/lattice/grid"
)

// NextValue seeds the counter with InitialValue-step if absent and
// increments it, both inside one MULTI/EXEC.
func (d *Dialect) NextValue(ctx context.Context, req grid.NextValueRequest) (int64, error) {
	k := d.sequenceKey(req.Key)
	step := req.Step()

	var incr *redis.IntCmd
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, req.InitialValue-step, 0)
		incr = pipe.IncrBy(ctx, k, step)
		return nil
	})
	if err != nil {
		return 0, mapError("incrby", err)
	}
	return incr.Val(), nil
}

func (d *Dialect) sequenceKey(key grid.IdSourceKey) string {
	if key.Kind() == grid.IdSourceSequence {
		return fmt.Sprintf("%s:seq:%s", d.config.Prefix, key.Name())
	}
	return fmt.Sprintf("%s:tbl:%s:%s", d.config.Prefix, key.Name(), key.Segment())
}
