// Package preload eager-loads association trees onto already fetched records.
//
// Every branch issues at most one query for all of its owners. A branch's
// scope and limit are used for that branch only, its children are loaded
// with their own settings.
package preload

import (
	"context"
	"fmt"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"

	"github.com/Masterminds/squirrel"
)

// Fetcher runs a SELECT and returns its rows as records of m.
type Fetcher interface {
	FetchRecords(ctx context.Context, m *model.Model, stmt squirrel.Sqlizer) ([]*model.Record, error)
}

type Preloader struct {
	Fetcher Fetcher
}

func New(f Fetcher) *Preloader {
	return &Preloader{Fetcher: f}
}

// Load attaches every branch of includes to records. Records must share a model.
// Associations that are already loaded are not queried again, their
// children are still visited.
func (p *Preloader) Load(ctx context.Context, records []*model.Record, includes []query.Include) error {
	if len(records) == 0 {
		return nil
	}
	for _, inc := range includes {
		if err := p.loadBranch(ctx, records, inc); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preloader) loadBranch(ctx context.Context, owners []*model.Record, inc query.Include) error {
	ownerModel := owners[0].Model
	rel := ownerModel.GetRelation(inc.Name)
	if rel == nil || rel.GetModelRef() == nil {
		return fmt.Errorf("unknown association %q for %s", inc.Name, ownerModel.Name)
	}

	pending := make([]*model.Record, 0, len(owners))
	for _, o := range owners {
		if !o.IsLoaded(inc.Name) {
			pending = append(pending, o)
		}
	}
	if len(pending) > 0 {
		var err error
		if rel.Type == model.BelongsTo {
			err = p.loadBelongsTo(ctx, pending, rel, inc)
		} else {
			err = p.loadHas(ctx, pending, rel, inc)
		}
		if err != nil {
			logger.Error("preload_error", map[string]any{
				"model":       ownerModel.Name,
				"association": inc.Name,
				"error":       err.Error(),
			})
			return fmt.Errorf("preload %s.%s: %w", ownerModel.Name, inc.Name, err)
		}
	}

	if len(inc.Children) == 0 {
		return nil
	}
	var related []*model.Record
	for _, o := range owners {
		recs, _ := o.Association(inc.Name)
		related = append(related, recs...)
	}
	return p.Load(ctx, related, inc.Children)
}

// branchQuery is the "all related rows" query, narrowed by the branch scope.
func branchQuery(rel *model.ModelRelation, inc query.Include) *query.Query {
	q := query.From(rel.GetModelRef()).WhereRaw(rel.Where)
	if inc.Scope != nil {
		q = inc.Scope(q)
	}
	if !q.Ordered() && rel.Order != "" {
		q = q.OrderBy(rel.Order)
	}
	return q
}

func (p *Preloader) loadBelongsTo(ctx context.Context, owners []*model.Record, rel *model.ModelRelation, inc query.Include) error {
	keys := distinct(owners, rel.FK)
	if len(keys) == 0 {
		for _, o := range owners {
			o.SetAssociation(inc.Name, nil)
		}
		return nil
	}

	related := rel.GetModelRef()
	q := branchQuery(rel, inc)
	q = q.Where(squirrel.Eq{q.Column(rel.PK): keys})

	rows, err := p.Fetcher.FetchRecords(ctx, related, q)
	if err != nil {
		return err
	}
	byKey := make(map[string]*model.Record, len(rows))
	for _, r := range rows {
		k := key(r.Fields[rel.PK])
		if _, seen := byKey[k]; !seen {
			byKey[k] = r
		}
	}
	for _, o := range owners {
		if r, ok := byKey[key(o.Fields[rel.FK])]; ok && o.Fields[rel.FK] != nil {
			o.SetAssociation(inc.Name, []*model.Record{r})
		} else {
			o.SetAssociation(inc.Name, nil)
		}
	}
	return nil
}

func (p *Preloader) loadHas(ctx context.Context, owners []*model.Record, rel *model.ModelRelation, inc query.Include) error {
	keys := distinct(owners, rel.PK)
	if len(keys) == 0 {
		for _, o := range owners {
			o.SetAssociation(inc.Name, nil)
		}
		return nil
	}

	related := rel.GetModelRef()
	q := branchQuery(rel, inc)
	q = q.Where(squirrel.Eq{q.Column(rel.FK): keys})

	limit := inc.Limit
	if rel.Type == model.HasOne {
		limit = 1
	}
	var stmt squirrel.Sqlizer = q
	if limit > 0 {
		stmt = query.LimitPerGroup(q, rel.FK, limit)
	}

	rows, err := p.Fetcher.FetchRecords(ctx, related, stmt)
	if err != nil {
		return err
	}
	grouped := make(map[string][]*model.Record)
	for _, r := range rows {
		delete(r.Fields, query.RankColumn)
		k := key(r.Fields[rel.FK])
		grouped[k] = append(grouped[k], r)
	}
	for _, o := range owners {
		o.SetAssociation(inc.Name, grouped[key(o.Fields[rel.PK])])
	}
	return nil
}

// distinct collects the non-nil values of column across records, first seen first.
func distinct(records []*model.Record, column string) []any {
	seen := make(map[string]struct{}, len(records))
	out := make([]any, 0, len(records))
	for _, r := range records {
		v := r.Fields[column]
		if v == nil {
			continue
		}
		k := key(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// key normalises driver values (int32 vs int64, uuid bytes vs string) for grouping.
func key(v any) string {
	switch x := v.(type) {
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
