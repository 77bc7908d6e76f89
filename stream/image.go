package stream

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/dynamo"
	"github.com/jacentio/lattice/grid"
)

// ConvertImage converts a stream image to SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := ConvertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

// ConvertValue converts one stream attribute value. It returns nil for
// values without a data type.
func ConvertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := ConvertValue(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}

// TupleFromImage decodes a stream image into a loaded tuple. The TTL
// marker and embedded collections are left out.
func TupleFromImage(image map[string]events.DynamoDBAttributeValue) (*grid.Tuple, error) {
	snapshot := make(grid.MapSnapshot, len(image))
	for name, av := range ConvertImage(image) {
		if !dynamo.IsTupleAttribute(name) {
			continue
		}
		var v any
		if err := attributevalue.Unmarshal(av, &v); err != nil {
			return nil, fmt.Errorf("unmarshal attribute %q: %w", name, err)
		}
		snapshot[name] = v
	}
	return grid.NewTupleFromSnapshot(snapshot, grid.SnapshotUpdate), nil
}

// EntityKeyFromImage builds the key of meta's entity from the key
// attributes of a stream record.
func EntityKeyFromImage(meta *grid.EntityKeyMetadata, keys map[string]events.DynamoDBAttributeValue) (grid.EntityKey, error) {
	names := meta.ColumnNames()
	values := make([]any, len(names))
	for i, name := range names {
		raw, ok := keys[name]
		if !ok {
			return grid.EntityKey{}, fmt.Errorf("%w: stream record of %s lacks key column %q", grid.ErrInvalidKey, meta.Table(), name)
		}
		if err := attributevalue.Unmarshal(ConvertValue(raw), &values[i]); err != nil {
			return grid.EntityKey{}, fmt.Errorf("unmarshal key column %q: %w", name, err)
		}
	}
	return grid.NewEntityKey(meta, values...)
}
