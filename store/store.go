package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tether/query"
)

// Store provides DynamoDB operations for relation warehouses and the
// commit engine that applies their activation records.
type Store struct {
	client   DynamoDBAPI
	config   Config
	registry *Registry

	mu     sync.RWMutex
	tables map[string]TableSpec
}

// New creates a new Store instance.
func New(client DynamoDBAPI, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		tables: make(map[string]TableSpec),
	}
}

// NewWithRegistry creates a new Store instance with a relationship registry.
func NewWithRegistry(client DynamoDBAPI, config Config, registry *Registry) *Store {
	s := New(client, config)
	s.registry = registry
	return s
}

// SetRegistry sets the relationship registry for cascade operations.
// It is safe to call while handlers are reading the registry.
func (s *Store) SetRegistry(registry *Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = registry
}

// Registry returns the relationship registry, or nil if not set.
func (s *Store) Registry() *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// RegisterTable records the key schema of a table. Registering the same
// name again replaces the previous schema.
func (s *Store) RegisterTable(spec TableSpec) error {
	if spec.Name == "" || spec.PartitionKey == "" {
		return fmt.Errorf("register table %q: name and partition key are required", spec.Name)
	}
	for _, idx := range spec.Indexes {
		if idx.Name == "" || idx.PartitionKey == "" {
			return fmt.Errorf("register table %q: index name and partition key are required", spec.Name)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[spec.Name] = spec
	return nil
}

func (s *Store) table(name string) (TableSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.tables[name]
	if !ok {
		return TableSpec{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return spec, nil
}

// Get retrieves an entity by key, returning ErrNotFound if deleted or missing.
func (s *Store) Get(ctx context.Context, table string, key PK) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	// Check if entity is deleted (has expired TTL)
	if IsDeleted(result.Item) {
		return nil, ErrNotFound
	}

	return s.unmarshalItem(result.Item), nil
}

// find returns the live items of a table matching q, ordered by its sort keys.
func (s *Store) find(ctx context.Context, spec TableSpec, q query.Query) ([]map[string]types.AttributeValue, error) {
	c, err := compileQuery(spec, q)
	if err != nil {
		return nil, err
	}

	filterExpr := TTLFilterExpr()
	if c.filter != "" {
		filterExpr = fmt.Sprintf("(%s) AND (%s)", c.filter, filterExpr)
	}
	names := mergeExprNames(c.names, TTLFilterNames())
	values := mergeExprValues(c.values, TTLFilterValues())
	consistent := aws.Bool(s.config.ConsistentRead && c.indexName == "")

	var items []map[string]types.AttributeValue
	if c.keyCondition != "" {
		in := &dynamodb.QueryInput{
			TableName:                 aws.String(spec.Name),
			KeyConditionExpression:    aws.String(c.keyCondition),
			FilterExpression:          aws.String(filterExpr),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ConsistentRead:            consistent,
		}
		if c.indexName != "" {
			in.IndexName = aws.String(c.indexName)
		}
		items, err = s.queryPages(ctx, in)
	} else {
		items, err = s.scanPages(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(spec.Name),
			FilterExpression:          aws.String(filterExpr),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ConsistentRead:            consistent,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("find %s where %s: %w", spec.Name, q, err)
	}

	sortItems(items, q.Sorts())
	return items, nil
}

// queryPages paginates through all results of a Query.
func (s *Store) queryPages(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// scanPages paginates through all results of a Scan.
func (s *Store) scanPages(ctx context.Context, in *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// QueryRelated returns every relation row of rel that references aggregateRef,
// including rows that are already deleted.
// This is used by cascade delete to propagate TTL to relation rows.
func (s *Store) QueryRelated(ctx context.Context, rel Relationship, aggregateRef string) ([]RelatedRef, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(rel.RelationTable),
		KeyConditionExpression: aws.String("#key = :ref"),
		ExpressionAttributeNames: map[string]string{
			"#key": rel.KeyAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ref": &types.AttributeValueMemberS{Value: aggregateRef},
		},
	}
	if rel.IndexName != "" {
		in.IndexName = aws.String(rel.IndexName)
	}

	raw, err := s.queryPages(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", rel.RelationTable, rel.KeyAttr, err)
	}

	spec := TableSpec{Name: rel.RelationTable, PartitionKey: rel.PartitionKey, SortKey: rel.SortKey}
	refs := make([]RelatedRef, 0, len(raw))
	for _, item := range raw {
		refs = append(refs, s.unmarshalRelatedRef(spec, item))
	}
	return refs, nil
}

// SetTTLByKey sets TTL on an entity by table and key.
// Used by cascade delete to propagate TTL to relation rows.
func (s *Store) SetTTLByKey(ctx context.Context, table string, key PK, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(table),
		Key:                 key,
		UpdateExpression:    aws.String("SET #ttl = :ttl, #version = if_not_exists(#version, :zero) + :one"),
		ConditionExpression: aws.String("attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl":     "ttl",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl":  unixValue(ttl),
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
	})

	// Ignore condition failure - already has TTL
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// unmarshalItem converts a DynamoDB item to an Item struct.
func (s *Store) unmarshalItem(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}

	if v, ok := raw["version"].(*types.AttributeValueMemberN); ok {
		item.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw["created_at"].(*types.AttributeValueMemberS); ok {
		item.CreatedAt = v.Value
	}
	if v, ok := raw["updated_at"].(*types.AttributeValueMemberS); ok {
		item.UpdatedAt = v.Value
	}
	if v, ok := raw["entity_ref"].(*types.AttributeValueMemberS); ok {
		item.EntityRef = v.Value
	}
	if v, ok := raw["entity_type"].(*types.AttributeValueMemberS); ok {
		item.EntityType = v.Value
	}

	return item
}

// unmarshalRelatedRef converts a relation row to a RelatedRef.
func (s *Store) unmarshalRelatedRef(spec TableSpec, item map[string]types.AttributeValue) RelatedRef {
	ref := RelatedRef{TableName: spec.Name, Key: spec.keyOf(item)}

	if v, ok := item["entity_ref"].(*types.AttributeValueMemberS); ok {
		ref.Ref = v.Value
	}

	return ref
}
