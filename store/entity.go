package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// DynamoDBAPI is the subset of *dynamodb.Client used by Store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Entity is the base interface for all storable types.
type Entity interface {
	// TableName returns the DynamoDB table name for this entity type.
	TableName() string

	// GetKey returns the primary key for this entity.
	GetKey() PK

	// EntityRef returns the type-qualified reference (e.g., "user_role#u1#admin").
	EntityRef() string

	// EntityType returns the entity type name (e.g., "user_role").
	EntityType() string
}

// Referencer is implemented by entities that may only be saved while the
// entities they reference exist, such as both sides of a relation row.
type Referencer interface {
	// References returns the existence checks evaluated in the same
	// transaction as the save.
	References() []ConditionCheck
}

// ConditionCheck defines an existence check for transactions.
type ConditionCheck struct {
	TableName string
	Key       PK

	// ConditionExpr is an optional custom condition expression.
	// If empty, ReferenceExistsCondition() is used (checks existence and not deleted).
	ConditionExpr string
}

// Item represents a retrieved DynamoDB item with common fields.
type Item struct {
	// Raw is the raw DynamoDB item.
	Raw map[string]types.AttributeValue

	// Version is incremented on every save and soft delete.
	Version int64

	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string

	// UpdatedAt is the ISO 8601 last update timestamp.
	UpdatedAt string

	// EntityRef is the type-qualified entity reference.
	EntityRef string

	// EntityType is the entity type name.
	EntityType string
}

// RelatedRef locates a relation row that touches an aggregate.
type RelatedRef struct {
	// Ref is the relation row's entity reference, if stored.
	Ref string

	// TableName is the relation table containing the row.
	TableName string

	// Key is the primary key of the row.
	Key PK
}

// TableSpec describes the key schema of a table served by a Warehouse.
type TableSpec struct {
	Name         string
	PartitionKey string
	SortKey      string
	Indexes      []IndexSpec
}

// IndexSpec describes a global or local secondary index.
type IndexSpec struct {
	Name         string
	PartitionKey string
	SortKey      string
}

// keyOf extracts the primary key attributes of item.
func (t TableSpec) keyOf(item map[string]types.AttributeValue) PK {
	key := PK{t.PartitionKey: item[t.PartitionKey]}
	if v, ok := item[t.SortKey]; ok && t.SortKey != "" {
		key[t.SortKey] = v
	}
	return key
}
