// Package store provides the DynamoDB warehouse behind relation repositories.
//
// A [Warehouse] serves one table. Its mutations return activation records
// instead of writing, and [Store.Execute] applies the records of a unit of
// work as condition-checked TransactWriteItems calls. Deletes are soft: a row
// is deleted once its ttl attribute is in the past, and DynamoDB TTL removes
// it later.
//
// # Entity Interfaces
//
// All entities must implement the [Entity] interface:
//
//	type Entity interface {
//	    TableName() string
//	    GetKey() PK
//	    EntityRef() string
//	    EntityType() string
//	}
//
// Relation rows should also implement [Referencer] so that a save fails when
// either side no longer exists:
//
//	func (r UserRole) References() []store.ConditionCheck {
//	    return []store.ConditionCheck{
//	        {TableName: "users", Key: store.PK{"id": &types.AttributeValueMemberS{Value: r.UserID}}},
//	        {TableName: "roles", Key: store.PK{"id": &types.AttributeValueMemberS{Value: r.RoleID}}},
//	    }
//	}
//
// # Queries
//
// A query.Query is compiled per table. A plain AND list with an Equal
// condition on the partition key of the table or of a registered index runs
// as a DynamoDB Query; anything else runs as a Scan. Like maps to contains,
// BeginLike to begins_with, and In to IN. EndLike has no DynamoDB equivalent
// and fails with [ErrUnsupportedOperator]. Sorting, limits and paging are
// applied after the read.
//
// # Managed Fields
//
// Every save maintains entity_ref, entity_type, created_at, updated_at and
// version, and clears ttl.
//
// # Cascading Deletes
//
// A [Registry] lists the relation tables that reference each aggregate type.
// The stream package uses [Store.QueryRelated] and [Store.SetTTLByKey] to
// delete relation rows when an aggregate is deleted. Registries can be loaded
// from YAML with [LoadRegistry].
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - entity doesn't exist or is deleted
//   - [ErrReferenceNotFound] - a referenced entity is missing at commit
//   - [ErrConcurrentModification] - a concurrent transaction touched the same items
//   - [ErrUnknownTable] - no warehouse registered the table
//   - [ErrInvalidQuery] - the query cannot be expressed for the table
//   - [ErrUnsupportedOperator] - the operator has no DynamoDB equivalent
package store
