package nubodb

import (
	"context"

	"github.com/kartikbazzad/nubodb/internal/queryengine"
	"github.com/kartikbazzad/nubodb/internal/storage"
)

// QueryBuilder accumulates a filter tree and options, delegating every
// terminal method to its collection (§4.9).
type QueryBuilder struct {
	collection *Collection
	filter     map[string]interface{}
	and        []map[string]interface{}
	or         []map[string]interface{}
	opts       queryengine.Options
}

func newQueryBuilder(c *Collection) *QueryBuilder {
	return &QueryBuilder{collection: c, filter: make(map[string]interface{})}
}

// Where sets a top-level constraint: either an equality value or an
// operator map (e.g. {"$gt": 10}).
func (q *QueryBuilder) Where(field string, value interface{}) *QueryBuilder {
	q.filter[field] = value
	return q
}

// And appends an additional constraint to the builder's $and group.
func (q *QueryBuilder) And(field string, value interface{}) *QueryBuilder {
	q.and = append(q.and, map[string]interface{}{field: value})
	return q
}

// Or appends an alternative constraint to the builder's $or group.
func (q *QueryBuilder) Or(field string, value interface{}) *QueryBuilder {
	q.or = append(q.or, map[string]interface{}{field: value})
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.opts.Limit = n
	q.opts.LimitSet = true
	return q
}

func (q *QueryBuilder) Skip(n int) *QueryBuilder {
	q.opts.Skip = n
	return q
}

func (q *QueryBuilder) SortBy(field string, desc bool) *QueryBuilder {
	q.opts.Sort = append(q.opts.Sort, queryengine.SortField{Field: field, Desc: desc})
	return q
}

func (q *QueryBuilder) Project(spec map[string]int) *QueryBuilder {
	q.opts.Projection = spec
	return q
}

func (q *QueryBuilder) build() map[string]interface{} {
	raw := make(map[string]interface{}, len(q.filter)+2)
	for k, v := range q.filter {
		raw[k] = v
	}
	if len(q.and) > 0 {
		list := make([]interface{}, len(q.and))
		for i, m := range q.and {
			list[i] = m
		}
		raw["$and"] = list
	}
	if len(q.or) > 0 {
		list := make([]interface{}, len(q.or))
		for i, m := range q.or {
			list[i] = m
		}
		raw["$or"] = list
	}
	return raw
}

// Execute runs the builder's query as a find (§4.9 terminal).
func (q *QueryBuilder) Execute(ctx context.Context) (*queryengine.Result, error) {
	return q.collection.Find(ctx, q.build(), q.opts)
}

// FindOne returns the first match, or nil.
func (q *QueryBuilder) FindOne(ctx context.Context) (storage.Document, error) {
	return q.collection.FindOne(ctx, q.build())
}

// Count returns the pipeline's total for the builder's filter.
func (q *QueryBuilder) Count(ctx context.Context) (int, error) {
	return q.collection.Count(ctx, q.build())
}

// Exists is FindOne != nil.
func (q *QueryBuilder) Exists(ctx context.Context) (bool, error) {
	doc, err := q.FindOne(ctx)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// FindOneAndUpdate atomically finds the first match and merges fields
// into it, holding the collection write lock for the whole
// read-modify-write (SUPPLEMENTED FEATURES).
func (q *QueryBuilder) FindOneAndUpdate(ctx context.Context, fields map[string]interface{}) (storage.Document, error) {
	q.collection.mu.Lock()
	defer q.collection.mu.Unlock()

	matches, err := q.collection.matchingIDs(ctx, q.build())
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	oldDoc := matches[0]
	newDoc := oldDoc.Clone()
	for k, v := range fields {
		newDoc[k] = v
	}
	if err := q.collection.validate.Apply(newDoc); err != nil {
		return nil, err
	}
	refreshUpdateMetadata(newDoc)

	persisted, err := q.collection.encodeForPersist(newDoc)
	if err != nil {
		return nil, err
	}
	if err := q.collection.storage.Write(q.collection.name, persisted); err != nil {
		return nil, wrapf(ErrStorage, "collection %q: write %q: %v", q.collection.name, newDoc.ID(), err)
	}
	q.collection.docCache.Put(newDoc.ID(), newDoc)
	q.collection.updateIndexesOnChange(oldDoc, newDoc)
	q.collection.bumpGeneration()
	return newDoc, nil
}

// FindOneAndDelete atomically finds and removes the first match
// (SUPPLEMENTED FEATURES).
func (q *QueryBuilder) FindOneAndDelete(ctx context.Context) (storage.Document, error) {
	q.collection.mu.Lock()
	defer q.collection.mu.Unlock()

	matches, err := q.collection.matchingIDs(ctx, q.build())
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	doc := matches[0]
	if _, err := q.collection.storage.Delete(q.collection.name, doc.ID()); err != nil {
		return nil, wrapf(ErrStorage, "collection %q: delete %q: %v", q.collection.name, doc.ID(), err)
	}
	q.collection.docCache.Delete(doc.ID())
	q.collection.updateIndexesOnDelete(doc)
	q.collection.bumpGeneration()
	return doc, nil
}
