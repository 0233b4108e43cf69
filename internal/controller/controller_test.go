package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"ResourceAPI/internal/cache"
	"ResourceAPI/internal/i18n"
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/model/modeltest"
	"ResourceAPI/internal/policy"
	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"
	"ResourceAPI/internal/serializer"
	"ResourceAPI/internal/store"

	"github.com/Masterminds/squirrel"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// fakeStore serves rows from memory and records every statement it is given.
type fakeStore struct {
	rows  map[string][]map[string]any
	count int64
	sqls  []string

	created   map[string]any
	updated   map[string]any
	destroyed any
	uploaded  []map[string]any
	updateAll []any
	deleteAll []any
	added     []any
	writeErr  error
}

func (f *fakeStore) record(stmt squirrel.Sqlizer) (string, []any) {
	sql, args, err := stmt.ToSql()
	if err != nil {
		panic(err)
	}
	f.sqls = append(f.sqls, sql)
	return sql, args
}

func (f *fakeStore) FetchRecords(_ context.Context, m *model.Model, stmt squirrel.Sqlizer) ([]*model.Record, error) {
	sql, args := f.record(stmt)
	byID := strings.Contains(sql, `"id" = $`) || strings.Contains(sql, `"id" IN (`)
	var out []*model.Record
	for _, row := range f.rows[m.Table] {
		if byID && !containsKey(args, row["id"]) {
			continue
		}
		fields := make(map[string]any, len(row))
		for k, v := range row {
			fields[k] = v
		}
		out = append(out, model.NewRecord(m, fields))
	}
	return out, nil
}

func containsKey(args []any, id any) bool {
	for _, a := range args {
		if fmt.Sprint(a) == fmt.Sprint(id) {
			return true
		}
	}
	return false
}

func (f *fakeStore) Count(_ context.Context, stmt squirrel.Sqlizer) (int64, error) {
	f.record(stmt)
	return f.count, nil
}

func (f *fakeStore) Create(_ context.Context, m *model.Model, attrs map[string]any) (*model.Record, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.created = attrs
	fields := map[string]any{"id": int64(99)}
	for k, v := range attrs {
		fields[k] = v
	}
	return model.NewRecord(m, fields), nil
}

func (f *fakeStore) Update(_ context.Context, m *model.Model, id any, attrs map[string]any) (*model.Record, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.updated = attrs
	fields := map[string]any{"id": id}
	for k, v := range attrs {
		fields[k] = v
	}
	return model.NewRecord(m, fields), nil
}

func (f *fakeStore) Destroy(_ context.Context, _ *model.Model, id any) error {
	f.destroyed = id
	return f.writeErr
}

func (f *fakeStore) CreateMany(_ context.Context, m *model.Model, items []map[string]any) ([]*model.Record, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.uploaded = items
	out := make([]*model.Record, len(items))
	for i, item := range items {
		fields := map[string]any{"id": int64(i + 1)}
		for k, v := range item {
			fields[k] = v
		}
		out[i] = model.NewRecord(m, fields)
	}
	return out, nil
}

func (f *fakeStore) UpdateAll(_ context.Context, _ *model.Model, ids []any, column string, value any) (int64, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.updateAll = []any{ids, column, value}
	return int64(len(ids)), nil
}

func (f *fakeStore) DeleteAll(_ context.Context, _ *model.Model, ids []any) (int64, error) {
	f.deleteAll = ids
	return int64(len(ids)), nil
}

func (f *fakeStore) AddRelationship(_ context.Context, _ *model.Model, association, column string, ownerIDs, values []any) (int64, error) {
	f.added = []any{association, column, ownerIDs, values}
	return int64(len(ownerIDs) * len(values)), nil
}

func (f *fakeStore) RemoveRelationship(context.Context, *model.Model, string, string, []any, []any) (int64, error) {
	return 0, nil
}

func (f *fakeStore) issued(fragment string) bool {
	for _, s := range f.sqls {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

type noDestroy struct {
	policy.Base
}

func (noDestroy) Authorize(rc *resource.Context, _ *model.Record) error {
	if rc.Action == resource.Destroy {
		return policy.Deny("books", rc.Action)
	}
	return nil
}

type fixture struct {
	ctrl    *Controller
	store   *fakeStore
	def     *resource.Definition
	hookLog []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	models := modeltest.Library()
	book := models.Get("Book")
	fx := &fixture{}

	resources := resource.NewRegistry()
	require.NoError(t, resources.Register(
		resource.NewBuilder(book, "books", "book").
			Search("title").
			Preload(resource.RelationshipSpec{Name: "reviews"}).
			PageSize(2).
			Permit(
				resource.Param{Name: "title"},
				resource.Param{Name: "isbn"},
				resource.Param{Name: "archived"},
				resource.Param{Name: "book_tags", Nested: []resource.Param{{Name: "tag_id"}}},
			).
			Hooks(resource.Hooks{
				PrepareItem: func(_ *resource.Context, rec *model.Record) error {
					fx.hookLog = append(fx.hookLog, "prepare")
					return nil
				},
				AfterDestroy: func(_ *resource.Context, rec *model.Record) error {
					fx.hookLog = append(fx.hookLog, fmt.Sprint("destroyed ", rec.ID()))
					return nil
				},
			}).
			EnableBatch().
			EnableUpload(),
	))
	require.NoError(t, resources.Freeze())

	serializers := serializer.NewRegistry()
	require.NoError(t, serializers.Register(
		serializer.NewBuilder("Book", book).
			Index(serializer.Field("id"), serializer.Field("title"), serializer.Embedded("author", serializer.Field("name"))).
			Show(serializer.Field("id"), serializer.Field("title"), serializer.Field("isbn")),
	))
	require.NoError(t, serializers.Freeze())

	policies := policy.NewRegistry()
	policies.Register("books", noDestroy{})

	messages, err := i18n.Parse("en", []byte(`
unauthorized:
  default: Not allowed.
  books:
    destroy: Books cannot be deleted.
errors:
  not_found: Record not found.
  upload_required: Uploadable contents required
`))
	require.NoError(t, err)

	fx.store = &fakeStore{
		count: 3,
		rows: map[string][]map[string]any{
			"books": {
				{"id": int64(1), "title": "Dune", "isbn": "1", "author_id": int64(7)},
				{"id": int64(2), "title": "Dune Messiah", "isbn": "2", "author_id": nil},
			},
			"authors": {
				{"id": int64(7), "name": "Frank Herbert"},
			},
		},
	}
	fx.ctrl = New(resources, serializers, fx.store, WithPolicies(policies), WithMessages(messages))
	fx.def = resources.Get("Book")
	return fx
}

func TestIndexComposesPagesAndRenders(t *testing.T) {
	fx := newFixture(t)
	rc := &resource.Context{Action: resource.Index, Params: resource.Params{Search: "dune", Page: 1}}

	res := fx.ctrl.Index(context.Background(), fx.def, rc)
	require.Equal(t, http.StatusOK, res.Status)

	want := []map[string]any{
		{"id": int64(1), "title": "Dune", "author": map[string]any{"name": "Frank Herbert"}},
		{"id": int64(2), "title": "Dune Messiah", "author": map[string]any{}},
	}
	if diff := cmp.Diff(want, res.Body["books"]); diff != "" {
		t.Fatalf("books (-want +got):\n%s", diff)
	}
	require.Equal(t, query.Page{Count: 3, Page: 1, Pages: 2, PerPage: 2}, res.Body["list"])

	require.True(t, fx.store.issued(`SELECT COUNT(*) FROM "books" WHERE`), fx.store.sqls)
	require.True(t, fx.store.issued(`"books"."title" ILIKE $1`), fx.store.sqls)
	require.True(t, fx.store.issued(`ORDER BY "books"."id" ASC LIMIT 2`), fx.store.sqls)
	require.True(t, fx.store.issued(`"authors"."id" IN ($1)`), fx.store.sqls)
	require.False(t, fx.store.issued(`"reviews"`), "to-many preload must not run on index")
}

func TestIndexPerPageZeroListsEverything(t *testing.T) {
	fx := newFixture(t)
	rc := &resource.Context{Action: resource.Index, Params: resource.Params{PerPage: 0, PerPageSet: true}}

	res := fx.ctrl.Index(context.Background(), fx.def, rc)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, query.Page{Count: 3, Page: 1, Pages: 1, PerPage: 3}, res.Body["list"])
	require.True(t, fx.store.issued(`LIMIT 3`))

	fx.store.count = 0
	res = fx.ctrl.Index(context.Background(), fx.def, rc)
	require.Equal(t, query.Page{Count: 0, Page: 1, Pages: 1, PerPage: 2}, res.Body["list"])
}

func TestShow(t *testing.T) {
	fx := newFixture(t)

	res := fx.ctrl.Show(context.Background(), fx.def, &resource.Context{Action: resource.Show, Params: resource.Params{ID: "1"}})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, map[string]any{"id": int64(1), "title": "Dune", "isbn": "1"}, res.Body["book"])
	require.Equal(t, []string{"prepare"}, fx.hookLog)
	require.True(t, fx.store.issued(`FROM "reviews"`), "show preloads the to-many relationship")

	res = fx.ctrl.Show(context.Background(), fx.def, &resource.Context{Action: resource.Show, Params: resource.Params{ID: "404"}})
	require.Equal(t, http.StatusNotFound, res.Status)
	require.Equal(t, []string{"Record not found."}, res.Body["errors"])
}

func TestCreatePermitsRenamesAndBlanks(t *testing.T) {
	fx := newFixture(t)
	rc := &resource.Context{Action: resource.Create}

	res := fx.ctrl.Create(context.Background(), fx.def, rc, map[string]any{
		"book": map[string]any{
			"title":     "Children of Dune",
			"isbn":      " ",
			"owner_id":  "not permitted",
			"book_tags": []any{map[string]any{"tag_id": float64(3), "note": "dropped"}},
		},
	})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, map[string]any{
		"title":                "Children of Dune",
		"isbn":                 nil,
		"book_tags_attributes": []any{map[string]any{"tag_id": float64(3)}},
	}, fx.store.created)

	item := res.Body["book"].(map[string]any)
	require.Equal(t, int64(99), item["id"])
	require.Equal(t, "Children of Dune", item["title"])

	res = fx.ctrl.Create(context.Background(), fx.def, rc, map[string]any{})
	require.Equal(t, http.StatusBadRequest, res.Status)
}

func TestCreateValidationErrors(t *testing.T) {
	fx := newFixture(t)
	v := &store.ValidationErrors{}
	v.Add("title", "can't be blank")
	fx.store.writeErr = v

	res := fx.ctrl.Create(context.Background(), fx.def, &resource.Context{Action: resource.Create}, map[string]any{"book": map[string]any{"title": ""}})
	require.Equal(t, http.StatusBadRequest, res.Status)
	require.Equal(t, map[string][]string{"title": {"can't be blank"}}, res.Body["errors"])
}

func TestUpdate(t *testing.T) {
	fx := newFixture(t)
	rc := &resource.Context{Action: resource.Update, Params: resource.Params{ID: "2"}}

	res := fx.ctrl.Update(context.Background(), fx.def, rc, map[string]any{"book": map[string]any{"title": "Messiah"}})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, map[string]any{"title": "Messiah"}, fx.store.updated)
	require.Equal(t, "Messiah", res.Body["book"].(map[string]any)["title"])
}

func TestDestroyDeniedIsLocalized401(t *testing.T) {
	fx := newFixture(t)
	res := fx.ctrl.Destroy(context.Background(), fx.def, &resource.Context{Action: resource.Destroy, Params: resource.Params{ID: "1"}})
	require.Equal(t, http.StatusUnauthorized, res.Status)
	require.Equal(t, []string{"Books cannot be deleted."}, res.Body["errors"])
	require.Nil(t, fx.store.destroyed)
}

func TestDestroyWithoutPolicy(t *testing.T) {
	fx := newFixture(t)
	fx.ctrl.policies = nil

	res := fx.ctrl.Destroy(context.Background(), fx.def, &resource.Context{Action: resource.Destroy, Params: resource.Params{ID: "1"}})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, map[string]any{"status": "ok"}, res.Body)
	require.Equal(t, int64(1), fx.store.destroyed)
	require.Equal(t, []string{"destroyed 1"}, fx.hookLog)
}

func TestBatchUpdate(t *testing.T) {
	fx := newFixture(t)
	rc := &resource.Context{Action: resource.BatchUpdate}
	ctx := context.Background()

	res := fx.ctrl.BatchUpdate(ctx, fx.def, rc, map[string]any{
		"ids": []any{float64(1), float64(2), float64(3)}, "attribute_name": "archived", "value": true,
	})
	require.Equal(t, map[string]any{"status": "ok"}, res.Body)
	require.Equal(t, []any{[]any{int64(1), int64(2)}, "archived", true}, fx.store.updateAll, "id 3 does not exist")

	res = fx.ctrl.BatchUpdate(ctx, fx.def, rc, map[string]any{"ids": []any{1}, "attribute_name": "owner_id", "value": 5})
	require.Equal(t, http.StatusBadRequest, res.Status)

	res = fx.ctrl.BatchUpdate(ctx, fx.def, rc, map[string]any{
		"type": "relationship", "multiple": "yes", "operator": "add",
		"association_name": "book_tags", "association_column": "tag_id",
		"ids": []any{1, 2}, "value": []any{10},
	})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, []any{"book_tags", "tag_id", []any{int64(1), int64(2)}, []any{10}}, fx.store.added)

	fx.store.writeErr = &store.BatchError{Op: "update_all", Err: errors.New(`column "archived" does not exist`)}
	res = fx.ctrl.BatchUpdate(ctx, fx.def, rc, map[string]any{"ids": []any{1}, "attribute_name": "archived", "value": true})
	require.Equal(t, http.StatusBadRequest, res.Status)
	require.Equal(t, []string{`column "archived" does not exist`}, res.Body["errors"])
}

func TestBatchDelete(t *testing.T) {
	fx := newFixture(t)
	res := fx.ctrl.BatchDelete(context.Background(), fx.def, &resource.Context{Action: resource.BatchDelete}, map[string]any{"ids": []any{1, 5}})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, []any{int64(1)}, fx.store.deleteAll)

	fx.store.deleteAll = nil
	res = fx.ctrl.BatchDelete(context.Background(), fx.def, &resource.Context{Action: resource.BatchDelete}, map[string]any{"ids": []any{4, 5}})
	require.Equal(t, http.StatusOK, res.Status)
	require.Nil(t, fx.store.deleteAll, "nothing in scope, nothing deleted")
}

type activeBooks struct {
	policy.Base
}

func (activeBooks) Scope(_ *resource.Context, q *query.Query) (*query.Query, error) {
	return q.Where(squirrel.Eq{q.Column("archived"): false}), nil
}

func TestBatchActionsGoThroughPolicyScope(t *testing.T) {
	fx := newFixture(t)
	policies := policy.NewRegistry()
	policies.Register("books", activeBooks{})
	fx.ctrl.policies = policies
	ctx := context.Background()

	res := fx.ctrl.BatchUpdate(ctx, fx.def, &resource.Context{Action: resource.BatchUpdate}, map[string]any{
		"ids": []any{int64(2)}, "attribute_name": "archived", "value": true,
	})
	require.Equal(t, http.StatusOK, res.Status)
	require.True(t, fx.store.issued(`"books"."archived" = $1 AND "books"."id" IN ($2)`), fx.store.sqls)
	require.Equal(t, []any{[]any{int64(2)}, "archived", true}, fx.store.updateAll)

	res = fx.ctrl.BatchDelete(ctx, fx.def, &resource.Context{Action: resource.BatchDelete}, map[string]any{"ids": []any{int64(1), int64(2)}})
	require.Equal(t, http.StatusOK, res.Status)
	require.True(t, fx.store.issued(`"books"."archived" = $1`), fx.store.sqls)
	require.Equal(t, []any{int64(1), int64(2)}, fx.store.deleteAll)
}

func TestCountCacheIsFlushedByWritesToRelatedTables(t *testing.T) {
	fx := newFixture(t)
	fx.ctrl.counts = cache.New(nil, time.Hour)
	fx.store.rows["reviews"] = []map[string]any{{"id": int64(5), "book_id": int64(1)}}
	ctx := context.Background()

	reviews := resource.NewRegistry()
	require.NoError(t, reviews.Register(resource.NewBuilder(modeltest.Library().Get("Review"), "reviews", "review").EnableBatch()))
	require.NoError(t, reviews.Freeze())

	rc := &resource.Context{Action: resource.Index, Params: resource.Params{
		Page:    1,
		Filters: []query.FilterClause{{AssociationName: "reviews", Operator: "not_empty"}},
	}}
	index := func() any {
		res := fx.ctrl.Index(ctx, fx.def, rc)
		require.Equal(t, http.StatusOK, res.Status)
		return res.Body["list"].(query.Page).Count
	}

	fx.store.count = 1
	require.Equal(t, int64(1), index())
	fx.store.count = 0
	require.Equal(t, int64(1), index(), "served from the cache")

	res := fx.ctrl.BatchDelete(ctx, reviews.Get("Review"), &resource.Context{Action: resource.BatchDelete}, map[string]any{"ids": []any{int64(5)}})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, int64(0), index())
}

func TestUpload(t *testing.T) {
	fx := newFixture(t)
	rc := &resource.Context{Action: resource.Upload}
	ctx := context.Background()

	res := fx.ctrl.Upload(ctx, fx.def, rc, map[string]any{})
	require.Equal(t, http.StatusBadRequest, res.Status)
	require.Equal(t, []string{"Uploadable contents required"}, res.Body["errors"])

	res = fx.ctrl.Upload(ctx, fx.def, rc, map[string]any{"books": []any{
		map[string]any{"title": "A", "secret": 1},
		map[string]any{"title": "B"},
	}})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, []map[string]any{{"title": "A"}, {"title": "B"}}, fx.store.uploaded)
	require.Len(t, res.Body["books"], 2)

	fx.store.writeErr = errors.New("item 2: duplicate key")
	res = fx.ctrl.Upload(ctx, fx.def, rc, map[string]any{"books": []any{map[string]any{"title": "A"}}})
	require.Equal(t, http.StatusUnprocessableEntity, res.Status)
}

func TestPermitIndexedNestedParams(t *testing.T) {
	params := []resource.Param{{Name: "book_tags", Nested: []resource.Param{{Name: "tag_id"}}}}
	got := permit(map[string]any{
		"book_tags_attributes": map[string]any{
			"1": map[string]any{"tag_id": 2, "id": 8, "_destroy": true},
			"0": map[string]any{"tag_id": 1},
		},
	}, params)
	want := map[string]any{"book_tags_attributes": []any{
		map[string]any{"tag_id": 1},
		map[string]any{"tag_id": 2, "id": 8, "_destroy": true},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("permit (-want +got):\n%s", diff)
	}
}
