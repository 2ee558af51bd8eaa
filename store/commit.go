package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tether/activation"
)

// managedAttrs are maintained by the commit engine and never copied from a
// saved item.
var managedAttrs = map[string]bool{
	"entity_ref":  true,
	"entity_type": true,
	"version":     true,
	"created_at":  true,
	"updated_at":  true,
	"ttl":         true,
}

type itemKind int

const (
	kindCheck itemKind = iota
	kindSave
	kindRemove
)

// txItem is one TransactWriteItem with the record it was derived from.
type txItem struct {
	kind   itemKind
	id     string
	item   types.TransactWriteItem
	record *activation.Record
}

// txBatch accumulates the items of one TransactWriteItems call.
type txBatch struct {
	items  []txItem
	writes map[string]itemKind
	checks map[string]bool
}

func newTxBatch() *txBatch {
	return &txBatch{
		writes: make(map[string]itemKind),
		checks: make(map[string]bool),
	}
}

// conflicts reports whether ops touch an item this batch already writes or
// checks. DynamoDB rejects transactions with two operations on one item.
func (b *txBatch) conflicts(ops []txItem) bool {
	for _, op := range ops {
		if op.kind == kindCheck {
			if kind, ok := b.writes[op.id]; ok && kind == kindRemove {
				return true
			}
			continue
		}
		if _, ok := b.writes[op.id]; ok || b.checks[op.id] {
			return true
		}
	}
	return false
}

func (b *txBatch) add(op txItem) {
	if op.kind == kindCheck {
		// Already checked, or saved by this same transaction.
		if kind, ok := b.writes[op.id]; b.checks[op.id] || (ok && kind == kindSave) {
			return
		}
		b.checks[op.id] = true
	} else {
		b.writes[op.id] = op.kind
	}
	b.items = append(b.items, op)
}

// Execute applies activation records in order.
//
// Records are packed into TransactWriteItems calls of at most
// Config.MaxTransactionItems items. The items of one record share a
// transaction unless the record alone exceeds the limit, so a failing
// transaction leaves earlier transactions of the same call applied.
// remove_by_query records are resolved to keys when Execute reaches them.
func (s *Store) Execute(ctx context.Context, records []*activation.Record) error {
	now := time.Now()
	batch := newTxBatch()

	for _, r := range records {
		if r == nil {
			continue
		}
		ops, err := s.writeItems(ctx, r, now)
		if err != nil {
			return fmt.Errorf("%s: %w", r, err)
		}
		if batch.conflicts(ops) || len(batch.items)+len(ops) > s.config.MaxTransactionItems {
			if err := s.transact(ctx, batch.items); err != nil {
				return err
			}
			batch = newTxBatch()
		}
		for _, op := range ops {
			if len(batch.items) == s.config.MaxTransactionItems {
				if err := s.transact(ctx, batch.items); err != nil {
					return err
				}
				batch = newTxBatch()
			}
			batch.add(op)
		}
	}

	return s.transact(ctx, batch.items)
}

func (s *Store) writeItems(ctx context.Context, r *activation.Record, now time.Time) ([]txItem, error) {
	switch r.Operation() {
	case activation.OperationSave:
		return s.saveItems(r, now), nil

	case activation.OperationRemove:
		return []txItem{s.removeItem(r.Table(), r.Target().Key, r, now)}, nil

	case activation.OperationRemoveByQuery:
		spec, err := s.table(r.Table())
		if err != nil {
			return nil, err
		}
		matches, err := s.find(ctx, spec, r.Query())
		if err != nil {
			return nil, err
		}
		ops := make([]txItem, 0, len(matches))
		for _, item := range matches {
			ops = append(ops, s.removeItem(spec.Name, spec.keyOf(item), r, now))
		}
		return ops, nil

	default:
		return nil, fmt.Errorf("unknown operation %q", r.Operation())
	}
}

// saveItems builds the reference checks and the upsert of a save record.
// The upsert copies every non-key attribute, maintains the managed fields and
// clears any TTL so a deleted row is restored.
func (s *Store) saveItems(r *activation.Record, now time.Time) []txItem {
	target := r.Target()
	ops := make([]txItem, 0, len(r.Checks())+1)

	for _, check := range r.Checks() {
		ops = append(ops, txItem{
			kind:   kindCheck,
			id:     itemID(check.Table, check.Key),
			item:   conditionCheck(check, now),
			record: r,
		})
	}

	item := r.Item()
	exprNames := map[string]string{
		"#ttl":         "ttl",
		"#entity_ref":  "entity_ref",
		"#entity_type": "entity_type",
		"#created_at":  "created_at",
		"#updated_at":  "updated_at",
		"#version":     "version",
	}
	exprValues := map[string]types.AttributeValue{
		":ref":  &types.AttributeValueMemberS{Value: target.EntityRef},
		":type": &types.AttributeValueMemberS{Value: target.EntityType},
		":now":  &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		":zero": &types.AttributeValueMemberN{Value: "0"},
		":one":  &types.AttributeValueMemberN{Value: "1"},
	}

	var setClauses []string
	attrs := make([]string, 0, len(item))
	for k := range item {
		if _, isKey := target.Key[k]; isKey || managedAttrs[k] {
			continue
		}
		attrs = append(attrs, k)
	}
	slices.Sort(attrs)
	for i, k := range attrs {
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = item[k]
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	setClauses = append(setClauses,
		"#entity_ref = :ref",
		"#entity_type = :type",
		"#created_at = if_not_exists(#created_at, :now)",
		"#updated_at = :now",
		"#version = if_not_exists(#version, :zero) + :one",
	)

	ops = append(ops, txItem{
		kind: kindSave,
		id:   itemID(target.Table, target.Key),
		item: types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(target.Table),
				Key:                       target.Key,
				UpdateExpression:          aws.String("SET " + strings.Join(setClauses, ", ") + " REMOVE #ttl"),
				ExpressionAttributeNames:  exprNames,
				ExpressionAttributeValues: exprValues,
			},
		},
		record: r,
	})
	return ops
}

// removeItem soft deletes one row by setting its TTL to now. An existing TTL
// is kept. Removing a missing row writes a tombstone that is already expired.
func (s *Store) removeItem(table string, key PK, r *activation.Record, now time.Time) txItem {
	return txItem{
		kind: kindRemove,
		id:   itemID(table, key),
		item: types.TransactWriteItem{
			Update: &types.Update{
				TableName:        aws.String(table),
				Key:              key,
				UpdateExpression: aws.String("SET #ttl = if_not_exists(#ttl, :now), #version = if_not_exists(#version, :zero) + :one"),
				ExpressionAttributeNames: map[string]string{
					"#ttl":     "ttl",
					"#version": "version",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":now":  unixValue(now.Unix()),
					":zero": &types.AttributeValueMemberN{Value: "0"},
					":one":  &types.AttributeValueMemberN{Value: "1"},
				},
			},
		},
		record: r,
	}
}

func conditionCheck(check activation.Check, now time.Time) types.TransactWriteItem {
	// Use custom condition expression if provided, otherwise use default
	condExpr := check.ConditionExpr
	if condExpr == "" {
		condExpr = ReferenceExistsCondition()
	}
	cc := &types.ConditionCheck{
		TableName:           aws.String(check.Table),
		Key:                 check.Key,
		ConditionExpression: aws.String(condExpr),
	}
	if strings.Contains(condExpr, "#ttl") {
		cc.ExpressionAttributeNames = TTLFilterNames()
	}
	if strings.Contains(condExpr, ":now") {
		cc.ExpressionAttributeValues = map[string]types.AttributeValue{":now": unixValue(now.Unix())}
	}
	return types.TransactWriteItem{ConditionCheck: cc}
}

func (s *Store) transact(ctx context.Context, items []txItem) error {
	if len(items) == 0 {
		return nil
	}
	tx := make([]types.TransactWriteItem, len(items))
	for i, it := range items {
		tx[i] = it.item
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: tx,
	})
	return mapTransactionError(err, items)
}

// mapTransactionError maps DynamoDB transaction errors using the items of the
// cancelled transaction.
func mapTransactionError(err error, items []txItem) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || i >= len(items) {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				if items[i].kind == kindCheck {
					return fmt.Errorf("%w: %s", ErrReferenceNotFound, items[i].record)
				}
			case "TransactionConflict":
				return fmt.Errorf("%w: %s", ErrConcurrentModification, items[i].record)
			}
		}
	}

	var conflictErr *types.TransactionConflictException
	if errors.As(err, &conflictErr) {
		return ErrConcurrentModification
	}

	return err
}

// itemID identifies one item of one table independent of map order.
func itemID(table string, key map[string]types.AttributeValue) string {
	names := make([]string, 0, len(key))
	for k := range key {
		names = append(names, k)
	}
	slices.Sort(names)

	var b strings.Builder
	b.WriteString(table)
	for _, k := range names {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		switch v := key[k].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString("S:" + v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString("N:" + v.Value)
		case *types.AttributeValueMemberB:
			fmt.Fprintf(&b, "B:%x", v.Value)
		default:
			fmt.Fprintf(&b, "%T", v)
		}
	}
	return b.String()
}
