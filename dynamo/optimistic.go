package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/grid"
)

// lockConditions requires the item to exist and every column of
// oldLockState to still hold its old value.
func (d *Dialect) lockConditions(e *expr, key grid.EntityKey, oldLockState *grid.Tuple) error {
	e.exists(key.ColumnNames()[0])
	if d.config.SoftDelete {
		e.ttl(unixValue(d.now()))
		e.condition(aliveCondition)
	}
	if oldLockState == nil {
		return nil
	}
	for _, c := range oldLockState.ColumnNames() {
		v, _ := oldLockState.Get(c)
		av, err := marshalValue(v)
		if err != nil {
			return err
		}
		e.equals(c, av)
	}
	return nil
}

// UpdateTupleWithOptimisticLock applies tuple's change log only if the
// stored item still matches oldLockState.
func (d *Dialect) UpdateTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState, tuple *grid.Tuple) (bool, error) {
	e := newExpr()
	if err := d.lockConditions(e, key, oldLockState); err != nil {
		return false, err
	}
	upd, ok, err := d.tupleUpdate(key, tuple, e)
	if err != nil {
		return false, err
	}
	if !ok {
		// Nothing to write; verify the lock state alone.
		k, err := keyAttributes(key)
		if err != nil {
			return false, err
		}
		_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{{
				ConditionCheck: &types.ConditionCheck{
					TableName:                 aws.String(key.Table()),
					Key:                       k,
					ConditionExpression:       e.conditionExpression(),
					ExpressionAttributeNames:  e.attributeNames(),
					ExpressionAttributeValues: e.attributeValues(),
				},
			}},
		})
		return lockResult(err, "transact_write_items")
	}
	_, err = d.client.UpdateItem(ctx, updateInput(upd))
	return lockResult(err, "update_item")
}

// RemoveTupleWithOptimisticLock removes the item only if it still matches
// oldLockState.
func (d *Dialect) RemoveTupleWithOptimisticLock(ctx context.Context, key grid.EntityKey, oldLockState *grid.Tuple) (bool, error) {
	k, err := keyAttributes(key)
	if err != nil {
		return false, err
	}
	e := newExpr()
	if err := d.lockConditions(e, key, oldLockState); err != nil {
		return false, err
	}
	if d.config.SoftDelete {
		e.sets = append(e.sets, "#ttl = :now")
		_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(key.Table()),
			Key:                       k,
			UpdateExpression:          e.updateExpression(),
			ConditionExpression:       e.conditionExpression(),
			ExpressionAttributeNames:  e.attributeNames(),
			ExpressionAttributeValues: e.attributeValues(),
		})
		return lockResult(err, "update_item")
	}
	_, err = d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(key.Table()),
		Key:                       k,
		ConditionExpression:       e.conditionExpression(),
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	})
	return lockResult(err, "delete_item")
}

func lockResult(err error, op string) (bool, error) {
	if err == nil {
		return true, nil
	}
	if isConditionFailed(err) {
		return false, nil
	}
	return false, mapError(op, err)
}
