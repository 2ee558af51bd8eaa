package store_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tether/activation"
	"github.com/jacentio/tether/query"
	"github.com/jacentio/tether/store"
)

func TestWarehouseSave_ProducesRecordWithoutIO(t *testing.T) {
	client := &fakeDynamo{}
	_, w := newTestStore(t, client, store.DefaultConfig())

	rec, err := w.Save(context.Background(), UserRole{UserRef: "user#1", RoleRef: "role#a", Note: "granted"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if rec.Operation() != activation.OperationSave {
		t.Errorf("expected save record, got %s", rec.Operation())
	}
	if rec.Table() != "user_roles" || rec.EntityType() != "user_role" || rec.EntityRef() != "user_role#user#1#role#a" {
		t.Errorf("unexpected target %+v", rec.Target())
	}
	if stringAttr(rec.Target().Key["role_ref"]) != "role#a" {
		t.Errorf("unexpected key %v", rec.Target().Key)
	}
	if stringAttr(rec.Item()["note"]) != "granted" {
		t.Errorf("expected marshalled item, got %v", rec.Item())
	}

	checks := rec.Checks()
	if len(checks) != 2 || checks[0].Table != "users" || checks[1].Table != "roles" {
		t.Errorf("expected user and role reference checks, got %+v", checks)
	}

	if len(client.txs)+len(client.updates)+len(client.queries)+len(client.scans) != 0 {
		t.Error("expected no DynamoDB calls")
	}
}

func TestWarehouseSave_WrongTable(t *testing.T) {
	s := store.New(&fakeDynamo{}, store.DefaultConfig())
	w, err := store.NewWarehouse[Tag](s, store.TableSpec{Name: "labels", PartitionKey: "id"})
	if err != nil {
		t.Fatalf("NewWarehouse: %v", err)
	}

	if _, err := w.Save(context.Background(), Tag{ID: "t1"}); !errors.Is(err, store.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
	if _, err := w.Remove(context.Background(), Tag{ID: "t1"}); !errors.Is(err, store.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
}

func TestWarehouseRemove(t *testing.T) {
	_, w := newTestStore(t, &fakeDynamo{}, store.DefaultConfig())

	rec, err := w.Remove(context.Background(), UserRole{UserRef: "user#1", RoleRef: "role#a"})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if rec.Operation() != activation.OperationRemove {
		t.Errorf("expected remove record, got %s", rec.Operation())
	}
	if len(rec.Checks()) != 0 || rec.Item() != nil {
		t.Error("expected remove record without checks or item")
	}
}

func TestWarehouseRemoveByQuery(t *testing.T) {
	_, w := newTestStore(t, &fakeDynamo{}, store.DefaultConfig())
	ctx := context.Background()

	q := query.Where("role_ref", query.Equal, "role#a")
	rec, err := w.RemoveByQuery(ctx, q)
	if err != nil {
		t.Fatalf("RemoveByQuery: %v", err)
	}
	if rec.Operation() != activation.OperationRemoveByQuery || rec.Table() != "user_roles" {
		t.Errorf("unexpected record %s", rec)
	}
	if rec.Query().String() != q.String() {
		t.Errorf("expected query %q, got %q", q, rec.Query())
	}

	if _, err := w.RemoveByQuery(ctx, query.Where("role_ref", query.EndLike, "#a")); !errors.Is(err, store.ErrUnsupportedOperator) {
		t.Errorf("expected ErrUnsupportedOperator, got %v", err)
	}
	if _, err := w.RemoveByQuery(ctx, query.Where("role_ref", query.In, []string{})); !errors.Is(err, store.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestWarehouseGetList_QueriesIndex(t *testing.T) {
	client := &fakeDynamo{pages: [][]map[string]types.AttributeValue{
		{userRoleItem("user#2", "role#a"), userRoleItem("user#3", "role#a")},
		{userRoleItem("user#1", "role#a")},
	}}
	_, w := newTestStore(t, client, store.DefaultConfig())

	q := query.Where("role_ref", query.Equal, "role#a").
		And("note", query.NotEqual, "temporary").
		OrderBy("user_ref", false)
	list, err := w.GetList(context.Background(), q)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}

	want := []string{"user#1", "user#2", "user#3"}
	if len(list) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(list))
	}
	for i, u := range want {
		if list[i].UserRef != u {
			t.Errorf("row %d: expected %s, got %s", i, u, list[i].UserRef)
		}
	}

	if len(client.scans) != 0 {
		t.Error("expected a Query, not a Scan")
	}
	in := client.queries[0]
	if aws.ToString(in.IndexName) != "by_role" {
		t.Errorf("expected by_role index, got %q", aws.ToString(in.IndexName))
	}
	if aws.ToString(in.KeyConditionExpression) != "#f0 = :v0" || in.ExpressionAttributeNames["#f0"] != "role_ref" {
		t.Errorf("unexpected key condition %q %v", aws.ToString(in.KeyConditionExpression), in.ExpressionAttributeNames)
	}
	if !strings.HasPrefix(aws.ToString(in.FilterExpression), "(#f1 <> :v1) AND (") {
		t.Errorf("unexpected filter %q", aws.ToString(in.FilterExpression))
	}
	if aws.ToBool(in.ConsistentRead) {
		t.Error("index queries must not request consistent reads")
	}
}

func TestWarehouseGetList_ScansWithoutKeyCondition(t *testing.T) {
	client := &fakeDynamo{pages: [][]map[string]types.AttributeValue{
		{userRoleItem("user#1", "role#a"), userRoleItem("user#1", "role#b"), userRoleItem("user#2", "role#c")},
	}}
	_, w := newTestStore(t, client, store.DefaultConfig())

	q := query.Where("user_ref", query.BeginLike, "user#").
		Or("role_ref", query.Equal, "role#c").
		OrderBy("role_ref", true).
		Limit(2)
	list, err := w.GetList(context.Background(), q)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}

	if len(client.queries) != 0 || len(client.scans) != 1 {
		t.Fatalf("expected one scan, got %d queries %d scans", len(client.queries), len(client.scans))
	}
	if len(list) != 2 || list[0].RoleRef != "role#c" || list[1].RoleRef != "role#b" {
		t.Errorf("expected 2 rows sorted descending, got %+v", list)
	}
	filter := aws.ToString(client.scans[0].FilterExpression)
	if !strings.Contains(filter, "begins_with(#f0, :v0) OR #f1 = :v1") {
		t.Errorf("unexpected filter %q", filter)
	}
}

func TestWarehouseGetList_EmptyIsNotNil(t *testing.T) {
	_, w := newTestStore(t, &fakeDynamo{}, store.DefaultConfig())

	list, err := w.GetList(context.Background(), query.New())
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %v", list)
	}
}

func TestWarehouseGetList_ReadError(t *testing.T) {
	boom := errors.New("throttled")
	_, w := newTestStore(t, &fakeDynamo{readErr: boom}, store.DefaultConfig())

	if _, err := w.GetList(context.Background(), query.New()); !errors.Is(err, boom) {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestWarehouseGet(t *testing.T) {
	ctx := context.Background()
	q := query.Where("user_ref", query.Equal, "user#1").And("role_ref", query.Equal, "role#a")

	_, empty := newTestStore(t, &fakeDynamo{}, store.DefaultConfig())
	if _, ok, err := empty.Get(ctx, q); ok || err != nil {
		t.Errorf("expected not found, got ok=%v err=%v", ok, err)
	}

	client := &fakeDynamo{pages: [][]map[string]types.AttributeValue{{userRoleItem("user#1", "role#a")}}}
	_, w := newTestStore(t, client, store.Config{ConsistentRead: true})
	got, ok, err := w.Get(ctx, q)
	if err != nil || !ok {
		t.Fatalf("expected found, got ok=%v err=%v", ok, err)
	}
	if got.UserRef != "user#1" || got.RoleRef != "role#a" {
		t.Errorf("unexpected entity %+v", got)
	}

	in := client.queries[0]
	if in.IndexName != nil {
		t.Errorf("expected table query, got index %q", aws.ToString(in.IndexName))
	}
	if aws.ToString(in.KeyConditionExpression) != "#f0 = :v0 AND #f1 = :v1" {
		t.Errorf("expected partition and sort key condition, got %q", aws.ToString(in.KeyConditionExpression))
	}
	if aws.ToString(in.FilterExpression) != store.TTLFilterExpr() {
		t.Errorf("expected only the TTL filter, got %q", aws.ToString(in.FilterExpression))
	}
	if !aws.ToBool(in.ConsistentRead) {
		t.Error("expected consistent table read")
	}
}

func TestWarehouseGetPaging(t *testing.T) {
	var rows []map[string]types.AttributeValue
	for _, u := range []string{"user#5", "user#3", "user#1", "user#4", "user#2"} {
		rows = append(rows, userRoleItem(u, "role#a"))
	}
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      store.Config
		q        query.Query
		page     int
		size     int
		wantRefs []string
	}{
		{
			name:     "second page",
			q:        query.New().OrderBy("user_ref", false).Paginate(2, 2),
			page:     2,
			size:     2,
			wantRefs: []string{"user#3", "user#4"},
		},
		{
			name:     "last partial page",
			q:        query.New().OrderBy("user_ref", false).Paginate(3, 2),
			page:     3,
			size:     2,
			wantRefs: []string{"user#5"},
		},
		{
			name:     "beyond last page",
			q:        query.New().Paginate(9, 2),
			page:     9,
			size:     2,
			wantRefs: []string{},
		},
		{
			name:     "huge page number",
			q:        query.New().Paginate(math.MaxInt, 1000),
			page:     math.MaxInt,
			size:     1000,
			wantRefs: []string{},
		},
		{
			name:     "default page size",
			cfg:      store.Config{DefaultPageSize: 3},
			q:        query.New().OrderBy("user_ref", true),
			page:     1,
			size:     3,
			wantRefs: []string{"user#5", "user#4", "user#3"},
		},
		{
			name:     "page size capped",
			cfg:      store.Config{DefaultPageSize: 1, MaxPageSize: 4},
			q:        query.New().OrderBy("user_ref", false).Paginate(1, 50),
			page:     1,
			size:     4,
			wantRefs: []string{"user#1", "user#2", "user#3", "user#4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeDynamo{pages: [][]map[string]types.AttributeValue{rows}}
			_, w := newTestStore(t, client, tt.cfg)

			p, err := w.GetPaging(ctx, tt.q)
			if err != nil {
				t.Fatalf("GetPaging: %v", err)
			}
			if p.Page() != tt.page || p.PageSize() != tt.size || p.TotalCount() != 5 {
				t.Errorf("unexpected metadata page=%d size=%d total=%d", p.Page(), p.PageSize(), p.TotalCount())
			}
			items := p.Items()
			if len(items) != len(tt.wantRefs) {
				t.Fatalf("expected %d items, got %d", len(tt.wantRefs), len(items))
			}
			for i, ref := range tt.wantRefs {
				if items[i].UserRef != ref {
					t.Errorf("item %d: expected %s, got %s", i, ref, items[i].UserRef)
				}
			}
		})
	}
}
