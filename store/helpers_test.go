package store_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tether/store"
)

// --- Test Entity Types ---

// UserRole is a relation row between a user and a role.
type UserRole struct {
	UserRef string `dynamodbav:"user_ref"`
	RoleRef string `dynamodbav:"role_ref"`
	Note    string `dynamodbav:"note,omitempty"`
}

func (r UserRole) TableName() string  { return "user_roles" }
func (r UserRole) EntityRef() string  { return "user_role#" + r.UserRef + "#" + r.RoleRef }
func (r UserRole) EntityType() string { return "user_role" }
func (r UserRole) GetKey() store.PK {
	return store.PK{
		"user_ref": &types.AttributeValueMemberS{Value: r.UserRef},
		"role_ref": &types.AttributeValueMemberS{Value: r.RoleRef},
	}
}

func (r UserRole) References() []store.ConditionCheck {
	return []store.ConditionCheck{
		{TableName: "users", Key: store.PK{"id": &types.AttributeValueMemberS{Value: r.UserRef}}},
		{TableName: "roles", Key: store.PK{"id": &types.AttributeValueMemberS{Value: r.RoleRef}}},
	}
}

// Tag is a root entity without references.
type Tag struct {
	ID   string `dynamodbav:"id"`
	Name string `dynamodbav:"name"`
}

func (t Tag) TableName() string  { return "tags" }
func (t Tag) EntityRef() string  { return "tag#" + t.ID }
func (t Tag) EntityType() string { return "tag" }
func (t Tag) GetKey() store.PK {
	return store.PK{"id": &types.AttributeValueMemberS{Value: t.ID}}
}

var userRoleTable = store.TableSpec{
	Name:         "user_roles",
	PartitionKey: "user_ref",
	SortKey:      "role_ref",
	Indexes: []store.IndexSpec{
		{Name: "by_role", PartitionKey: "role_ref", SortKey: "user_ref"},
	},
}

func userRoleItem(user, role string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_ref":   &types.AttributeValueMemberS{Value: user},
		"role_ref":   &types.AttributeValueMemberS{Value: role},
		"entity_ref": &types.AttributeValueMemberS{Value: "user_role#" + user + "#" + role},
		"version":    &types.AttributeValueMemberN{Value: "1"},
	}
}

// --- Fake DynamoDB ---

// fakeDynamo records requests and serves canned pages. Expressions are not
// evaluated: tests assert on the requests instead.
type fakeDynamo struct {
	mu sync.Mutex

	item      map[string]types.AttributeValue
	pages     [][]map[string]types.AttributeValue
	readErr   error
	updateErr error
	txErrs    []error

	gets    []*dynamodb.GetItemInput
	queries []*dynamodb.QueryInput
	scans   []*dynamodb.ScanInput
	updates []*dynamodb.UpdateItemInput
	txs     []*dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, in)
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &dynamodb.GetItemOutput{Item: f.item}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)
	if f.readErr != nil {
		return nil, f.readErr
	}
	items, next := f.page(in.ExclusiveStartKey)
	return &dynamodb.QueryOutput{Items: items, LastEvaluatedKey: next}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, in)
	if f.readErr != nil {
		return nil, f.readErr
	}
	items, next := f.page(in.ExclusiveStartKey)
	return &dynamodb.ScanOutput{Items: items, LastEvaluatedKey: next}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, in)
	if len(f.txErrs) > 0 {
		err := f.txErrs[0]
		f.txErrs = f.txErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// page returns the page addressed by a start key produced by an earlier call.
func (f *fakeDynamo) page(start map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	i := 0
	if n, ok := start["page"].(*types.AttributeValueMemberN); ok {
		i, _ = strconv.Atoi(n.Value)
	}
	if i >= len(f.pages) {
		return nil, nil
	}
	var next map[string]types.AttributeValue
	if i+1 < len(f.pages) {
		next = map[string]types.AttributeValue{
			"page": &types.AttributeValueMemberN{Value: strconv.Itoa(i + 1)},
		}
	}
	return f.pages[i], next
}

func newTestStore(t testing.TB, client *fakeDynamo, cfg store.Config) (*store.Store, *store.Warehouse[UserRole]) {
	t.Helper()
	s := store.New(client, cfg)
	w, err := store.NewWarehouse[UserRole](s, userRoleTable)
	if err != nil {
		t.Fatalf("NewWarehouse: %v", err)
	}
	return s, w
}

func stringAttr(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
