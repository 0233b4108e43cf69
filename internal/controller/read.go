package controller

import (
	"context"
	"fmt"

	"ResourceAPI/internal/cache"
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"
	"ResourceAPI/internal/store"

	"github.com/Masterminds/squirrel"
)

// scopedQuery is the resource's base query narrowed by its policy.
func (c *Controller) scopedQuery(def *resource.Definition, rc *resource.Context) (*query.Query, error) {
	q := query.From(def.Model)
	if def.Hooks.BaseQuery != nil {
		q = def.Hooks.BaseQuery(rc, q)
	}
	return c.policyFor(def).Scope(rc, q)
}

// baseQuery is scopedQuery with the preloads and joins of the action attached.
func (c *Controller) baseQuery(def *resource.Definition, rc *resource.Context) (*query.Query, error) {
	q, err := c.scopedQuery(def, rc)
	if err != nil {
		return nil, err
	}
	return resource.BuildQuery(def, rc, q)
}

// Index lists one page of the resource.
func (c *Controller) Index(ctx context.Context, def *resource.Definition, rc *resource.Context) Response {
	body, err := c.index(ctx, def, rc)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	return success(body)
}

func (c *Controller) index(ctx context.Context, def *resource.Definition, rc *resource.Context) (map[string]any, error) {
	if err := c.policyFor(def).Authorize(rc, nil); err != nil {
		return nil, err
	}
	q, err := c.baseQuery(def, rc)
	if err != nil {
		return nil, err
	}
	if q, err = resource.ComposeIndex(def, rc, q); err != nil {
		return nil, err
	}

	count, err := c.count(ctx, q)
	if err != nil {
		return nil, err
	}
	perPage := def.PageSize
	if rc.Params.PerPageSet {
		perPage = rc.Params.PerPage
	}
	// zero or less lists everything
	if perPage <= 0 {
		perPage = int(count)
		if perPage == 0 {
			perPage = def.PageSize
		}
	}
	page := query.NewPage(count, rc.Params.Page, perPage)

	records, err := c.store.FetchRecords(ctx, def.Model, query.Paginate(q, page))
	if err != nil {
		return nil, err
	}
	ser, err := c.serializerFor(def, rc)
	if err != nil {
		return nil, err
	}
	if err := c.preloader.Load(ctx, records, append(q.Includes(), ser.Includes()...)); err != nil {
		return nil, err
	}
	items, err := ser.RenderIndex(records)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		def.Plural: items,
		"list":     page,
	}, nil
}

func (c *Controller) count(ctx context.Context, q *query.Query) (int64, error) {
	sqlStr, args, err := q.CountSql()
	if err != nil {
		return 0, fmt.Errorf("count sql: %w", err)
	}
	key, err := cache.Key(sqlStr, args)
	if err != nil {
		return 0, err
	}
	return c.counts.GetOrCount(ctx, key, func() (int64, error) {
		return c.store.Count(ctx, squirrel.Expr(sqlStr, args...))
	})
}

// Show renders one record with the show attributes.
func (c *Controller) Show(ctx context.Context, def *resource.Definition, rc *resource.Context) Response {
	q, rec, err := c.find(ctx, def, rc)
	if err == nil {
		err = c.policyFor(def).Authorize(rc, rec)
	}
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	item, err := c.renderItem(ctx, def, rc, q, rec, true)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	return success(map[string]any{def.Singular: item})
}

// find loads the record named by rc.Params.ID through the scoped base query.
func (c *Controller) find(ctx context.Context, def *resource.Definition, rc *resource.Context) (*query.Query, *model.Record, error) {
	q, err := c.baseQuery(def, rc)
	if err != nil {
		return nil, nil, err
	}
	if rc.Params.ID == "" {
		return nil, nil, store.ErrNotFound
	}
	records, err := c.store.FetchRecords(ctx, def.Model, q.Where(squirrel.Eq{q.PrimaryKey(): rc.Params.ID}).Limit(1))
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, store.ErrNotFound
	}
	return q, records[0], nil
}

// renderItem preloads what the action and the serializer need, runs the
// PrepareItem hook and renders rec with the show (or index) attributes.
func (c *Controller) renderItem(ctx context.Context, def *resource.Definition, rc *resource.Context, q *query.Query, rec *model.Record, show bool) (map[string]any, error) {
	ser, err := c.serializerFor(def, rc)
	if err != nil {
		return nil, err
	}
	includes := ser.Includes()
	if show {
		includes = ser.ShowIncludes()
	}
	records := []*model.Record{rec}
	if err := c.preloader.Load(ctx, records, append(q.Includes(), includes...)); err != nil {
		return nil, err
	}
	if def.Hooks.PrepareItem != nil {
		if err := def.Hooks.PrepareItem(rc, rec); err != nil {
			return nil, fmt.Errorf("prepare item: %w", err)
		}
	}
	if show {
		return ser.RenderShow(rec)
	}
	return ser.RenderOne(rec)
}
