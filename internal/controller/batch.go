package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ResourceAPI/internal/resource"
	"ResourceAPI/internal/store"

	"github.com/Masterminds/squirrel"
)

const (
	typeRelationship = "relationship"
	operatorAdd      = "add"
	operatorRemove   = "remove"
)

// BatchRequest is the body of batch_update and batch_delete.
type BatchRequest struct {
	IDs               []any
	AttributeName     string
	Value             any
	Type              string
	Operator          string
	AssociationName   string
	AssociationColumn string
	Multiple          any
}

func decodeBatch(body map[string]any) BatchRequest {
	str := func(key string) string {
		s, _ := body[key].(string)
		return s
	}
	return BatchRequest{
		IDs:               asList(body["ids"]),
		AttributeName:     str("attribute_name"),
		Value:             body["value"],
		Type:              str("type"),
		Operator:          str("operator"),
		AssociationName:   str("association_name"),
		AssociationColumn: str("association_column"),
		Multiple:          body["multiple"],
	}
}

// BatchUpdate sets one attribute on many records, or adds/removes has_many
// links for many records, with a single statement.
func (c *Controller) BatchUpdate(ctx context.Context, def *resource.Definition, rc *resource.Context, body map[string]any) Response {
	if err := c.policyFor(def).Authorize(rc, nil); err != nil {
		return c.fail(ctx, def, rc, err)
	}
	req := decodeBatch(body)
	relationship := req.Type == typeRelationship && resource.ToBool(req.Multiple)
	if !relationship && !scalarPermitted(c.policyFor(def).PermittedAttributes(rc, def), req.AttributeName) {
		return clientError(http.StatusBadRequest, []string{fmt.Sprintf("attribute %q is not permitted", req.AttributeName)})
	}
	ids, err := c.scopedIDs(ctx, def, rc, req.IDs)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	if len(ids) == 0 {
		return statusOK()
	}
	if relationship {
		values := asList(req.Value)
		switch req.Operator {
		case operatorAdd:
			_, err = c.store.AddRelationship(ctx, def.Model, req.AssociationName, req.AssociationColumn, ids, values)
		case operatorRemove:
			_, err = c.store.RemoveRelationship(ctx, def.Model, req.AssociationName, req.AssociationColumn, ids, values)
		}
	} else {
		_, err = c.store.UpdateAll(ctx, def.Model, ids, req.AttributeName, blankToNil(req.Value))
	}
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	c.flushCounts(ctx, def)
	return statusOK()
}

// BatchDelete deletes every record in ids with a single statement. Ids
// outside the policy scope are skipped.
func (c *Controller) BatchDelete(ctx context.Context, def *resource.Definition, rc *resource.Context, body map[string]any) Response {
	if err := c.policyFor(def).Authorize(rc, nil); err != nil {
		return c.fail(ctx, def, rc, err)
	}
	ids, err := c.scopedIDs(ctx, def, rc, decodeBatch(body).IDs)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	if len(ids) == 0 {
		return statusOK()
	}
	if _, err := c.store.DeleteAll(ctx, def.Model, ids); err != nil {
		return c.fail(ctx, def, rc, err)
	}
	c.flushCounts(ctx, def)
	return statusOK()
}

// scopedIDs keeps the ids whose records the policy scope lets the caller see.
func (c *Controller) scopedIDs(ctx context.Context, def *resource.Definition, rc *resource.Context, ids []any) ([]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, err := c.scopedQuery(def, rc)
	if err != nil {
		return nil, err
	}
	records, err := c.store.FetchRecords(ctx, def.Model, q.Where(squirrel.Eq{q.PrimaryKey(): ids}))
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID())
	}
	return out, nil
}

// Upload creates every payload under the plural key in one transaction.
func (c *Controller) Upload(ctx context.Context, def *resource.Definition, rc *resource.Context, body map[string]any) Response {
	if err := c.policyFor(def).Authorize(rc, nil); err != nil {
		return c.fail(ctx, def, rc, err)
	}
	raw, present := body[def.Plural]
	if !present || raw == nil {
		return clientError(http.StatusBadRequest, []string{c.messages.T("errors.upload_required")})
	}
	list, isList := raw.([]any)
	if !isList {
		m, isMap := raw.(map[string]any)
		if !isMap {
			return clientError(http.StatusBadRequest, []string{c.messages.T("errors.upload_required")})
		}
		if list, isList = indexed(m); !isList {
			list = []any{m}
		}
	}

	permitted := c.policyFor(def).PermittedAttributes(rc, def)
	items := make([]map[string]any, 0, len(list))
	for _, e := range list {
		m, isMap := e.(map[string]any)
		if !isMap {
			return clientError(http.StatusUnprocessableEntity, []string{"every uploaded item must be an object"})
		}
		items = append(items, permit(m, permitted))
	}

	records, err := c.store.CreateMany(ctx, def.Model, items)
	if err != nil {
		var validation *store.ValidationErrors
		if errors.As(err, &validation) {
			return clientError(http.StatusUnprocessableEntity, []any{validation.Fields})
		}
		return clientError(http.StatusUnprocessableEntity, []string{err.Error()})
	}
	c.flushCounts(ctx, def)

	ser, err := c.serializerFor(def, rc)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	if err := c.preloader.Load(ctx, records, ser.Includes()); err != nil {
		return c.fail(ctx, def, rc, err)
	}
	rendered, err := ser.RenderIndex(records)
	if err != nil {
		return c.fail(ctx, def, rc, err)
	}
	return success(map[string]any{def.Plural: rendered})
}
