// Package dynamo provides a DynamoDB grid dialect.
//
// Tuples are items in a table named after the entity's table, keyed by the
// entity's key columns. Associations are either kept on the owning item or
// spread over a dedicated association table.
//
// # Key Features
//
//   - Insert-only writes via conditional PutItem
//   - Updates that persist only the tuple's change log
//   - Optimistic locking on any set of columns
//   - Batches as TransactWriteItems rounds
//   - Atomic counters for sequences and table generators
//   - Optional soft delete via DynamoDB TTL
//   - Configurable write sharding for association rows
//
// # Tables
//
// Entity tables are created by the application. The dialect additionally
// uses:
//
//	lattice_associations  pk (S) + sk (S)   when AssociationStorage is AssociationTable
//	lattice_sequences     sequence_name (S) for named sequences
//
// # Configuration
//
// Use [DefaultConfig] for small datasets (NumShards=1, single queries).
// Increase NumShards for associations with many rows:
//
//	cfg := dynamo.DefaultConfig()
//	cfg.AssociationStorage = dynamo.AssociationTable
//	cfg.NumShards = 16
//	d := dynamo.New(client, cfg)
//
// # Errors
//
// Service errors are reported as [grid.ErrBackendRejected], transport
// failures as [grid.ErrBackendUnavailable]. A taken key on insert is a
// [*grid.TupleAlreadyExistsError].
package dynamo
