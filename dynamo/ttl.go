package dynamo

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TTLAttribute is the attribute soft-deleted items carry.
const TTLAttribute = "ttl"

// IsDeleted checks if an item has an expired TTL (is marked for deletion).
func IsDeleted(item map[string]types.AttributeValue, now time.Time) bool {
	ttlAttr, exists := item[TTLAttribute]
	if !exists {
		return false // No TTL = active
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// deadCondition matches soft-deleted items whose TTL has passed.
const deadCondition = "#ttl <= :now"

// aliveCondition matches items without an expired TTL.
const aliveCondition = "(attribute_not_exists(#ttl) OR #ttl > :now)"

func unixValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}
