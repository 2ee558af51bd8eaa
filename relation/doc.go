// Package relation implements repositories for paired aggregate relationships.
//
// A relation between two aggregate types First and Second is persisted as a
// single storage entity, typically a join row. A [Repository] turns
// relation-level operations into entity-level warehouse calls and, for every
// mutation, publishes one event and hands the resulting activation records to
// a unit-of-work ledger.
//
// # Mapping
//
// Each relation type supplies a [Mapper] that converts between pairs and
// entities and builds the side-constrained queries:
//
//	type userRoleMapper struct {
//	    relation.SideUnsupported[User, Role, UserRole]
//	}
//
//	func (userRoleMapper) CreateEntityByRelation(p relation.Pair[User, Role]) UserRole { ... }
//	func (userRoleMapper) CreateRelationByEntity(e UserRole) relation.Pair[User, Role] { ... }
//	...
//
// Embedding [SideUnsupported] makes CreateEntityByFirst and
// CreateEntityBySecond return [ErrNotImplemented].
//
// # Mutation protocol
//
// Save and Remove calls follow the same order:
//
//  1. every entity mutation completes, sequentially and in input order
//  2. one event is published with the original input as payload
//  3. all activation records are registered with the ledger as one batch
//
// The first failing mutation aborts the call: no event is published and no
// record is registered. Empty input is a no-op. A ledger implementing
// [ReadyLedger] is asked whether it accepts records before step 2, so a
// missing or completed unit of work fails the call without an event.
//
// # Reads
//
// Get, GetList, GetPaging and the side projections have no side effects.
// List and paging results are never nil.
//
// # Asynchronous forms
//
// Every operation has an Async twin that runs it on a goroutine and returns a
// [Future].
package relation
