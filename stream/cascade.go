// Package stream turns DynamoDB Streams events from tables written by the
// dynamo dialect into grid tuples, and cascades entity removal to the
// associations stored outside the entity.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jacentio/lattice/dynamo"
	"github.com/jacentio/lattice/grid"
)

// Handler processes DynamoDB stream events.
type Handler struct {
	dialect  grid.Dialect
	registry *grid.Registry
	consumer grid.TupleConsumer
	logger   *zap.Logger
}

// NewHandler creates a new stream handler. Inserted and modified tuples
// are fed to consumer, which may be nil.
func NewHandler(d grid.Dialect, registry *grid.Registry, consumer grid.TupleConsumer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = grid.NewRegistry()
	}
	return &Handler{
		dialect:  d,
		registry: registry,
		consumer: consumer,
		logger:   logger,
	}
}

// HandleEvent processes a batch of stream records in order. It is meant to
// be used as an AWS Lambda handler: a returned error makes Lambda retry the
// batch, and every step is idempotent.
func (h *Handler) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				zap.String("eventID", record.EventID),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	table := TableFromARN(record.EventSourceArn)
	meta, ok := h.registry.Entity(table)
	if !ok {
		h.logger.Debug("skipping record of unregistered table",
			zap.String("eventID", record.EventID),
			zap.String("table", table),
		)
		return nil
	}

	switch record.EventName {
	case "INSERT":
		return h.emit(meta, record.Change.NewImage)
	case "MODIFY":
		// A soft-deleted item gains a ttl: treat it as a removal
		if !hasTTL(record.Change.OldImage) && hasTTL(record.Change.NewImage) {
			return h.cascade(ctx, meta, record.Change.Keys)
		}
		return h.emit(meta, record.Change.NewImage)
	case "REMOVE":
		return h.cascade(ctx, meta, record.Change.Keys)
	}
	return nil
}

// emit feeds a new image to the consumer as a loaded tuple.
func (h *Handler) emit(meta *grid.EntityKeyMetadata, image map[string]events.DynamoDBAttributeValue) error {
	if h.consumer == nil || len(image) == 0 {
		return nil
	}
	tuple, err := TupleFromImage(image)
	if err != nil {
		return err
	}
	return h.consumer(meta, tuple)
}

// cascade removes every association of the removed entity whose rows are
// not stored in the entity item itself.
func (h *Handler) cascade(ctx context.Context, meta *grid.EntityKeyMetadata, keys map[string]events.DynamoDBAttributeValue) error {
	key, err := EntityKeyFromImage(meta, keys)
	if err != nil {
		return err
	}
	assocKeys, err := h.registry.AssociationKeysOf(key)
	if err != nil {
		return fmt.Errorf("association keys of %s: %w", key, err)
	}

	h.logger.Info("processing cascade delete",
		zap.String("entity", key.String()),
		zap.Int("associations", len(assocKeys)),
	)

	var errs []error
	removed := 0
	for _, ak := range assocKeys {
		if h.dialect.IsStoredInEntityStructure(ak.Metadata()) {
			continue
		}
		if err := h.dialect.RemoveAssociation(ctx, ak); err != nil {
			h.logger.Warn("failed to remove association",
				zap.String("association", ak.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		removed++
	}

	h.logger.Info("cascade delete completed",
		zap.String("entity", key.String()),
		zap.Int("associationsRemoved", removed),
	)
	return errors.Join(errs...)
}

func hasTTL(image map[string]events.DynamoDBAttributeValue) bool {
	v, ok := image[dynamo.TTLAttribute]
	return ok && v.DataType() == events.DataTypeNumber && v.Number() != "0"
}

// TableFromARN extracts the table name from a stream ARN of the form
// arn:aws:dynamodb:region:account:table/name/stream/label.
func TableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	table, _, _ := strings.Cut(rest, "/")
	return table
}
