// Package redisgrid implements the grid dialect on Redis.
//
// Every tuple is a hash named <prefix>:t:<table>:<digest of the entity key>
// with one field per column. Field values are CBOR encoded.
//
// # Key Features
//
//   - Insert-only writes guarded by WATCH/MULTI/EXEC
//   - Optimistic locking by comparing the watched hash in memory
//   - Whole-queue batches in one MULTI/EXEC
//   - Counters seeded with SETNX and advanced with INCRBY
//
// # Associations
//
// With InEntity storage (the default) the rows of an association are kept
// in the owner's hash under the field _assoc.<role>. With AssociationHash
// storage each association gets its own hash, <prefix>:a:<table>:<digest>,
// holding one field per row. Embedded collections always live in the owner.
//
// # Configuration
//
//	d := redisgrid.New(client, redisgrid.Config{
//	    Prefix:             "shop",
//	    AssociationStorage: redisgrid.AssociationHash,
//	})
//
// # Errors
//
// Error replies are returned as grid.ErrBackendRejected, connection
// failures as grid.ErrBackendUnavailable.
package redisgrid
