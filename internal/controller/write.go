package controller

import (
	"context"
	"fmt"
	"net/http"

	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"
)

// attributes returns the permitted write attributes submitted under the
// singular key of the resource.
func (c *Controller) attributes(def *resource.Definition, rc *resource.Context, body map[string]any) (map[string]any, bool) {
	raw, ok := body[def.Singular].(map[string]any)
	if !ok {
		return nil, false
	}
	return permit(raw, c.policyFor(def).PermittedAttributes(rc, def)), true
}

func missingParam(name string) Response {
	return clientError(http.StatusBadRequest, []string{fmt.Sprintf("param is missing or the value is empty: %s", name)})
}

// Create inserts a record from the body and renders it with the index attributes.
func (c *Controller) Create(ctx context.Context, def *resource.Definition, rc *resource.Context, body map[string]any) Response {
	if err := c.policyFor(def).Authorize(rc, nil); err != nil {
		return c.fail(ctx, def, rc, err)
	}
	attrs, ok := c.attributes(def, rc, body)
	if !ok {
		return missingParam(def.Singular)
	}
	rec, err := c.store.Create(ctx, def.Model, attrs)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	c.flushCounts(ctx, def)
	return c.written(ctx, def, rc, rec, def.Hooks.AfterCreate)
}

// Update writes the body onto the record named by rc.Params.ID.
func (c *Controller) Update(ctx context.Context, def *resource.Definition, rc *resource.Context, body map[string]any) Response {
	_, rec, err := c.find(ctx, def, rc)
	if err == nil {
		err = c.policyFor(def).Authorize(rc, rec)
	}
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	attrs, ok := c.attributes(def, rc, body)
	if !ok {
		return missingParam(def.Singular)
	}
	updated, err := c.store.Update(ctx, def.Model, rec.ID(), attrs)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	c.flushCounts(ctx, def)
	return c.written(ctx, def, rc, updated, def.Hooks.AfterUpdate)
}

// written runs the after hook and renders the written record.
func (c *Controller) written(ctx context.Context, def *resource.Definition, rc *resource.Context, rec *model.Record, after resource.ItemHook) Response {
	if after != nil {
		if err := after(rc, rec); err != nil {
			return c.fail(ctx, def, rc, fmt.Errorf("after %s: %w", rc.Action, err))
		}
	}
	q, err := resource.BuildQuery(def, rc, query.From(def.Model))
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	item, err := c.renderItem(ctx, def, rc, q, rec, false)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	return success(map[string]any{def.Singular: item})
}

// Destroy deletes the record named by rc.Params.ID.
func (c *Controller) Destroy(ctx context.Context, def *resource.Definition, rc *resource.Context) Response {
	_, rec, err := c.find(ctx, def, rc)
	if err == nil {
		err = c.policyFor(def).Authorize(rc, rec)
	}
	if err == nil {
		err = c.store.Destroy(ctx, def.Model, rec.ID())
	}
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	c.flushCounts(ctx, def)
	if def.Hooks.AfterDestroy != nil {
		if err := def.Hooks.AfterDestroy(rc, rec); err != nil {
			return c.fail(ctx, def, rc, fmt.Errorf("after destroy: %w", err))
		}
	}
	return statusOK()
}
