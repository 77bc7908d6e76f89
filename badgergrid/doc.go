// Package badgergrid implements the grid dialect on an embedded Badger
// database.
//
// Keys are laid out by kind, with NUL separators:
//
//	t <table> <digest of entity key>                       tuple record
//	a <table> <digest of association key> <digest of row>  association row
//	q <sequence>                                           sequence counter
//	s <table> <segment>                                    table id source
//	i <table>                                              identity counter
//
// Records are CBOR encoded; counters are 8-byte big-endian integers.
//
// Every call runs in one badger transaction and is retried when badger
// reports a conflict, so reads and compare-and-swap writes are serializable.
// ExecuteBatch applies the whole queue in a single transaction.
//
// Capabilities: batch, optimistic lock, identity columns.
package badgergrid
