// Package shard computes partition keys and storage digests for grid dialects.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// AssociationPK computes the sharded partition key of an association row.
// With numShards=1, all rows of an association go to shard "00".
// With numShards>1, rows are distributed across shards based on the row ID hash.
func AssociationPK(associationID, rowID string, numShards int) string {
	if numShards <= 1 {
		return fmt.Sprintf("%s#00", associationID)
	}
	h := fnv.New32a()
	h.Write([]byte(rowID))
	shard := h.Sum32() % uint32(numShards)
	return fmt.Sprintf("%s#%02x", associationID, shard)
}

// ShardPKs returns the partition key of every shard of an association.
func ShardPKs(associationID string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	pks := make([]string, numShards)
	for i := range pks {
		pks[i] = fmt.Sprintf("%s#%02x", associationID, i)
	}
	return pks
}

// Digest hashes a canonical key ID into a fixed-length identifier so that
// backend keys stay short regardless of the key's column values.
func Digest(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:16]) // 128-bit hash as hex
}
