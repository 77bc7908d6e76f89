package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/jacentio/lattice/grid"
)

// isConditionFailed reports whether err is a failed ConditionExpression,
// either on a single-item call or inside a transaction.
func isConditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// mapError classifies a DynamoDB failure. Errors the service answered with
// are rejections; everything else (transport, credentials, cancellation)
// means the backend was not reached.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return grid.Unavailable(op, err)
	}
	var internalErr *types.InternalServerError
	if errors.As(err, &internalErr) {
		return grid.Unavailable(op, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return grid.Rejected(op, err)
	}
	return grid.Unavailable(op, err)
}
