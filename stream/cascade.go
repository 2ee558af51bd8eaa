// Package stream provides DynamoDB Streams handlers for cascade operations.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tether/store"
)

// Store is the part of *store.Store the cascade handler needs.
type Store interface {
	Registry() *store.Registry
	QueryRelated(ctx context.Context, rel store.Relationship, aggregateRef string) ([]store.RelatedRef, error)
	SetTTLByKey(ctx context.Context, table string, key store.PK, ttl int64) error
}

var _ Store = (*store.Store)(nil)

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleCascadeDelete processes DynamoDB stream events from aggregate tables
// and soft deletes every relation row that references a deleted aggregate.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	// Only process MODIFY events where TTL was added
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
	newTTL := getNumberAttr(record.Change.NewImage, "ttl")
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	entityRef := getStringAttr(record.Change.NewImage, "entity_ref")
	if entityRef == "" {
		return nil
	}
	aggregateType := aggregateTypeOf(record.Change.NewImage, entityRef)

	registry := h.store.Registry()
	if registry == nil || !registry.HasRelations(aggregateType) {
		return nil
	}

	h.logger.Info("processing cascade delete",
		"entityRef", entityRef,
		"entityType", aggregateType,
		"ttl", newTTL,
	)

	var (
		processed int
		failed    []error
	)
	for _, rel := range registry.RelationsOf(aggregateType) {
		// Already-deleted rows are included; SetTTLByKey keeps the first TTL.
		rows, err := h.store.QueryRelated(ctx, rel, entityRef)
		if err != nil {
			return fmt.Errorf("query %s rows of %s: %w", rel.RelationTable, entityRef, err)
		}

		for _, row := range rows {
			if err := h.store.SetTTLByKey(ctx, row.TableName, row.Key, newTTL); err != nil {
				h.logger.Warn("failed to set TTL on relation row",
					"table", row.TableName,
					"row", row.Ref,
					"error", err,
				)
				failed = append(failed, err)
				continue
			}
			processed++
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("cascade %s: %d relation rows failed: %w", entityRef, len(failed), errors.Join(failed...))
	}

	h.logger.Info("cascade delete completed",
		"entityRef", entityRef,
		"rowsProcessed", processed,
	)
	return nil
}

// aggregateTypeOf reads entity_type from the image, falling back to the
// prefix of the entity reference.
func aggregateTypeOf(image map[string]events.DynamoDBAttributeValue, entityRef string) string {
	if t := getStringAttr(image, "entity_type"); t != "" {
		return t
	}
	prefix, _, _ := strings.Cut(entityRef, "#")
	return prefix
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// ConvertStreamKey converts a DynamoDB stream key to a store.PK.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) store.PK {
	result := make(store.PK)
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}
