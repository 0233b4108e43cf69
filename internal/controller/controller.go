// Package controller runs the resource actions: it composes the query,
// talks to the store, eager-loads, serializes and shapes the JSON envelope.
package controller

import (
	"context"
	"errors"
	"net/http"

	"ResourceAPI/internal/cache"
	"ResourceAPI/internal/i18n"
	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/policy"
	"ResourceAPI/internal/preload"
	"ResourceAPI/internal/resource"
	"ResourceAPI/internal/serializer"
	"ResourceAPI/internal/store"

	"github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"
)

// Store is the persistence the controller drives. *store.Store implements it.
type Store interface {
	preload.Fetcher
	Count(ctx context.Context, stmt squirrel.Sqlizer) (int64, error)
	Create(ctx context.Context, m *model.Model, attrs map[string]any) (*model.Record, error)
	Update(ctx context.Context, m *model.Model, id any, attrs map[string]any) (*model.Record, error)
	Destroy(ctx context.Context, m *model.Model, id any) error
	CreateMany(ctx context.Context, m *model.Model, items []map[string]any) ([]*model.Record, error)
	UpdateAll(ctx context.Context, m *model.Model, ids []any, column string, value any) (int64, error)
	DeleteAll(ctx context.Context, m *model.Model, ids []any) (int64, error)
	AddRelationship(ctx context.Context, m *model.Model, association, column string, ownerIDs, values []any) (int64, error)
	RemoveRelationship(ctx context.Context, m *model.Model, association, column string, ownerIDs, values []any) (int64, error)
}

// Response is a status plus the JSON envelope to render.
type Response struct {
	Status int
	Body   map[string]any
}

func success(body map[string]any) Response {
	return Response{Status: http.StatusOK, Body: body}
}

func statusOK() Response {
	return success(map[string]any{"status": "ok"})
}

func clientError(status int, errs any) Response {
	return Response{Status: status, Body: map[string]any{"errors": errs}}
}

type Controller struct {
	resources   *resource.Registry
	serializers *serializer.Registry
	policies    *policy.Registry
	store       Store
	preloader   *preload.Preloader
	counts      *cache.Counts
	messages    *i18n.Dictionary
}

type Option func(*Controller)

func WithPolicies(p *policy.Registry) Option {
	return func(c *Controller) { c.policies = p }
}

// WithCountCache memoizes index counts. A nil cache counts every time.
func WithCountCache(counts *cache.Counts) Option {
	return func(c *Controller) { c.counts = counts }
}

// WithMessages sets the dictionary authorization messages come from.
func WithMessages(d *i18n.Dictionary) Option {
	return func(c *Controller) { c.messages = d }
}

func New(resources *resource.Registry, serializers *serializer.Registry, st Store, opts ...Option) *Controller {
	c := &Controller{
		resources:   resources,
		serializers: serializers,
		store:       st,
		preloader:   preload.New(st),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resources exposes the registry the controller serves.
func (c *Controller) Resources() *resource.Registry {
	return c.resources
}

func (c *Controller) policyFor(def *resource.Definition) policy.Policy {
	name := def.Policy
	if name == "" {
		name = def.Plural
	}
	return c.policies.For(name)
}

func (c *Controller) serializerFor(def *resource.Definition, rc *resource.Context) (*serializer.Serializer, error) {
	return c.serializers.For(def.Name, rc.Identity, serializer.Options{"action": string(rc.Action)})
}

// fail turns err into a client response when it belongs to the client, and
// into a logged 500 otherwise.
func (c *Controller) fail(ctx context.Context, def *resource.Definition, rc *resource.Context, err error) Response {
	var (
		denied     *policy.DeniedError
		validation *store.ValidationErrors
		batch      *store.BatchError
	)
	switch {
	case errors.As(err, &denied):
		return clientError(http.StatusUnauthorized, []string{c.deniedMessage(denied)})
	case errors.As(err, &validation):
		return clientError(http.StatusBadRequest, validation.Fields)
	case errors.As(err, &batch):
		return clientError(http.StatusBadRequest, []string{batch.Error()})
	case errors.Is(err, store.ErrNotFound):
		return clientError(http.StatusNotFound, []string{c.messages.T("errors.not_found")})
	}
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"resource": def.Plural,
		"action":   string(rc.Action),
		"error":    err.Error(),
	}).Error("controller_error")
	return clientError(http.StatusInternalServerError, []string{c.messages.T("errors.internal")})
}

func (c *Controller) deniedMessage(e *policy.DeniedError) string {
	return c.messages.T("unauthorized."+e.Policy+"."+string(e.Action), "unauthorized.default")
}

func (c *Controller) flushCounts(ctx context.Context, def *resource.Definition) {
	if err := c.counts.Flush(ctx); err != nil {
		logger.Warn("count_cache_flush_failed", map[string]any{
			"table": def.Model.Table,
			"error": err.Error(),
		})
	}
}
