package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/grid"
)

const (
	sequenceKeyAttribute   = "sequence_name"
	sequenceValueAttribute = "next_val"
)

// NextValue atomically advances the counter with a single UpdateItem. The
// first call on a fresh source returns req.InitialValue.
func (d *Dialect) NextValue(ctx context.Context, req grid.NextValueRequest) (int64, error) {
	table, keyAttr, valueAttr, segment := d.idSourceLocation(req.Key)
	step := req.Step()
	start := req.InitialValue - step

	result, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			keyAttr: &types.AttributeValueMemberS{Value: segment},
		},
		UpdateExpression: aws.String("SET #v = if_not_exists(#v, :start) + :inc"),
		ExpressionAttributeNames: map[string]string{
			"#v": valueAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":start": &types.AttributeValueMemberN{Value: strconv.FormatInt(start, 10)},
			":inc":   &types.AttributeValueMemberN{Value: strconv.FormatInt(step, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, mapError("update_item", err)
	}

	n, ok := result.Attributes[valueAttr].(*types.AttributeValueMemberN)
	if !ok {
		return 0, grid.Rejected("next_value", fmt.Errorf("attribute %q missing from response", valueAttr))
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, grid.Rejected("next_value", err)
	}
	return v, nil
}

// idSourceLocation maps an id source to table, key attribute, value
// attribute and key value.
func (d *Dialect) idSourceLocation(key grid.IdSourceKey) (table, keyAttr, valueAttr, segment string) {
	if key.Kind() == grid.IdSourceSequence {
		return d.config.SequenceTable, sequenceKeyAttribute, sequenceValueAttribute, key.Name()
	}
	keyAttr, _ = key.KeyColumnName()
	valueAttr, _ = key.ValueColumnName()
	if keyAttr == "" {
		keyAttr = sequenceKeyAttribute
	}
	if valueAttr == "" {
		valueAttr = sequenceValueAttribute
	}
	return key.Name(), keyAttr, valueAttr, key.Segment()
}
