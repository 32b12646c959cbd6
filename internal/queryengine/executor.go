package queryengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kartikbazzad/nubodb/internal/cache"
	"github.com/kartikbazzad/nubodb/internal/index"
	"github.com/kartikbazzad/nubodb/internal/storage"
)

// ErrTimeout is surfaced when a query's context expires mid-pipeline
// (§5 "Cancellation & timeouts"); it leaves caches untouched.
var ErrTimeout = errors.New("queryengine: query timed out")

// Result is the outcome of a Find call (§4.7).
type Result struct {
	Documents []storage.Document
	Total     int
	HasMore   bool
}

// Executor runs the query pipeline of §4.7 for a single collection,
// consulting the collection's index catalog, storage engine, and both
// cache tiers.
type Executor struct {
	Collection string
	Catalog    *index.Catalog
	Storage    *storage.Engine
	DocCache   *cache.DocumentCache
	QueryCache *cache.QueryCache
	Generation func() uint64

	// Decode, when set, turns a raw storage record into its logical
	// document (e.g. decrypting an encrypted collection's sealed "data"
	// field). It runs on every load from Storage, before the residual
	// filter sees the document and before it reaches DocCache, so the
	// document cache only ever holds decoded documents (§4.5). A nil
	// Decode is the identity function.
	Decode func(storage.Document) (storage.Document, error)
}

func (e *Executor) decode(doc storage.Document) (storage.Document, error) {
	if e.Decode == nil {
		return doc, nil
	}
	return e.Decode(doc)
}

// Find runs the full planner/executor pipeline (§4.7 steps 1-10).
func (e *Executor) Find(ctx context.Context, raw map[string]interface{}, opts Options) (*Result, error) {
	if err := ValidateProjection(opts.Projection); err != nil {
		return nil, err
	}
	filter, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	fp := Fingerprint(raw, opts, e.Generation())
	if cached, ok := e.QueryCache.Get(fp); ok {
		return cached.(*Result), nil
	}

	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	var loaded []storage.Document
	var total int

	if filter.Empty() && opts.LimitSet {
		// Fast path (§4.7 step 2): slice first, then sort the slice,
		// with total reported over the full collection.
		ids, err := e.Storage.IDs(e.Collection)
		if err != nil {
			return nil, fmt.Errorf("queryengine: scan %q: %w", e.Collection, err)
		}
		total = len(ids)

		lo, hi := windowBounds(opts.Skip, opts.Limit, len(ids))
		window, err := e.loadMany(ids[lo:hi])
		if err != nil {
			return nil, err
		}
		docs := toGeneric(window)
		SortDocuments(docs, opts.Sort)

		result := &Result{
			Documents: fromGeneric(docs),
			Total:     total,
			HasMore:   total > opts.Skip+len(window),
		}
		result.Documents = projectAll(result.Documents, opts.Projection)
		e.QueryCache.Set(fp, result)
		return result, nil
	}

	candidateIDs, used, empty := resolveCandidates(filter, e.Catalog)
	if used && empty {
		result := &Result{Documents: nil, Total: 0, HasMore: false}
		e.QueryCache.Set(fp, result)
		return result, nil
	}

	if used {
		loaded, err = e.loadMany(candidateIDs)
	} else {
		loaded, err = e.loadAll()
	}
	if err != nil {
		return nil, err
	}

	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	survivors := make([]storage.Document, 0, len(loaded))
	for _, doc := range loaded {
		if filter.Matches(doc) {
			survivors = append(survivors, doc)
		}
	}
	total = len(survivors)

	docs := toGeneric(survivors)
	SortDocuments(docs, opts.Sort)
	survivors = fromGeneric(docs)

	lo, hi := windowBounds(opts.Skip, opts.Limit, len(survivors))
	if !opts.LimitSet {
		hi = len(survivors)
	}
	var page []storage.Document
	if lo < hi {
		page = survivors[lo:hi]
	}

	result := &Result{
		Documents: projectAll(page, opts.Projection),
		Total:     total,
		HasMore:   total > opts.Skip+len(page),
	}
	e.QueryCache.Set(fp, result)
	return result, nil
}

// FindByID bypasses the pipeline entirely (§4.7): cache, else direct
// storage read (decoded before caching), else nil.
func (e *Executor) FindByID(id string) (storage.Document, error) {
	if doc, ok := e.DocCache.Get(id); ok {
		return doc, nil
	}
	doc, err := e.Storage.Read(e.Collection, id)
	if err != nil || doc == nil {
		return nil, err
	}
	decoded, err := e.decode(doc)
	if err != nil {
		return nil, err
	}
	e.DocCache.Put(id, decoded)
	return decoded, nil
}

func (e *Executor) loadMany(ids []string) ([]storage.Document, error) {
	out := make([]storage.Document, 0, len(ids))
	var misses []string
	for _, id := range ids {
		if doc, ok := e.DocCache.Get(id); ok {
			out = append(out, doc)
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) > 0 {
		docs, err := e.Storage.ReadMany(e.Collection, misses)
		if err != nil {
			return nil, fmt.Errorf("queryengine: load candidates: %w", err)
		}
		for _, doc := range docs {
			decoded, err := e.decode(doc)
			if err != nil {
				return nil, err
			}
			e.DocCache.Put(decoded.ID(), decoded)
			out = append(out, decoded)
		}
	}
	return out, nil
}

func (e *Executor) loadAll() ([]storage.Document, error) {
	docs, err := e.Storage.ReadAll(e.Collection)
	if err != nil {
		return nil, fmt.Errorf("queryengine: full scan %q: %w", e.Collection, err)
	}
	out := make([]storage.Document, 0, len(docs))
	for _, doc := range docs {
		decoded, err := e.decode(doc)
		if err != nil {
			return nil, err
		}
		e.DocCache.Put(decoded.ID(), decoded)
		out = append(out, decoded)
	}
	return out, nil
}

func windowBounds(skip, limit, total int) (int, int) {
	lo := skip
	if lo > total {
		lo = total
	}
	if lo < 0 {
		lo = 0
	}
	hi := lo + limit
	if hi > total || limit < 0 {
		hi = total
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func projectAll(docs []storage.Document, spec map[string]int) []storage.Document {
	if len(spec) == 0 {
		return docs
	}
	out := make([]storage.Document, len(docs))
	for i, d := range docs {
		out[i] = storage.Document(Project(d, spec))
	}
	return out
}

func toGeneric(docs []storage.Document) []map[string]interface{} {
	out := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func fromGeneric(docs []map[string]interface{}) []storage.Document {
	out := make([]storage.Document, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func checkCtx(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ErrTimeout
	default:
		return nil
	}
}
