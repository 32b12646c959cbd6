package nubodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kartikbazzad/nubodb/internal/audit"
	"github.com/kartikbazzad/nubodb/internal/cache"
	"github.com/kartikbazzad/nubodb/internal/crypto"
	"github.com/kartikbazzad/nubodb/internal/durability"
	"github.com/kartikbazzad/nubodb/internal/index"
	"github.com/kartikbazzad/nubodb/internal/queryengine"
	"github.com/kartikbazzad/nubodb/internal/schema"
	"github.com/kartikbazzad/nubodb/internal/storage"
)

// DefaultInsertBatchSize is the batch size for InsertMany persistence
// (§4.8: "Process in batches (default 100)").
const DefaultInsertBatchSize = 100

// CollectionConfig is the set of per-collection knobs §3 names: an
// optional schema, an encryption toggle, a cache size ceiling, and an
// auto-index flag.
type CollectionConfig struct {
	Schema       schema.Schema
	Mode         schema.Mode
	Encrypt      bool
	MaxCacheSize int

	// AutoIndex, when set, indexes every declared schema field instead
	// of only those marked Index or Unique.
	AutoIndex bool
}

// Collection is one named document collection: storage, indexes, both
// cache tiers, schema validation and the query engine, wired together
// the way bundoc's Collection struct glues its own subsystems.
type Collection struct {
	name string

	storage  *storage.Engine
	catalog  *index.Catalog
	docCache *cache.DocumentCache
	qCache   *cache.QueryCache
	crypt    *crypto.Adapter
	validate *schema.Validator
	schema   schema.Schema
	audit    *audit.Logger
	flusher  *durability.Flusher
	log      zerolog.Logger

	mu         sync.Mutex // serializes writes to this collection (§5)
	generation atomic.Uint64
}

func newCollection(name string, storageEngine *storage.Engine, crypt *crypto.Adapter, flusher *durability.Flusher, cfg CollectionConfig, log zerolog.Logger) (*Collection, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = schema.ModeStrict
	}
	validator, err := schema.New(cfg.Schema, mode, log)
	if err != nil {
		return nil, wrapf(ErrDatabaseInit, "collection %q: build validator: %v", name, err)
	}

	c := &Collection{
		name:     name,
		storage:  storageEngine,
		catalog:  index.New(),
		docCache: cache.NewDocumentCache(cfg.MaxCacheSize),
		qCache:   cache.NewQueryCache(0, 0),
		crypt:    crypt,
		validate: validator,
		schema:   cfg.Schema,
		audit:    audit.New(log),
		flusher:  flusher,
		log:      log,
	}

	for fieldName, field := range cfg.Schema {
		if field.Index || field.Unique || cfg.AutoIndex {
			if err := c.catalog.CreateIndex(index.Definition{Name: fieldName, Fields: []string{fieldName}}); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}

func (c *Collection) executor() *queryengine.Executor {
	return &queryengine.Executor{
		Collection: c.name,
		Catalog:    c.catalog,
		Storage:    c.storage,
		DocCache:   c.docCache,
		QueryCache: c.qCache,
		Generation: c.generation.Load,
		Decode:     c.decodeFromPersist,
	}
}

// CreateIndex registers a new index over fields (§4.4). Existing
// documents are backfilled so the invariant in §3 holds immediately.
func (c *Collection) CreateIndex(name string, fields []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.catalog.CreateIndex(index.Definition{Name: name, Fields: fields}); err != nil {
		return err
	}
	ids, err := c.storage.IDs(c.name)
	if err != nil {
		return wrapf(ErrStorage, "collection %q: list ids for index backfill: %v", c.name, err)
	}
	docs, err := c.storage.ReadMany(c.name, ids)
	if err != nil {
		return wrapf(ErrStorage, "collection %q: load docs for index backfill: %v", c.name, err)
	}
	for _, raw := range docs {
		doc, err := c.decodeFromPersist(raw)
		if err != nil {
			return err
		}
		values := indexValues(doc, fields)
		if values != nil {
			_ = c.catalog.Insert(name, values, doc.ID())
		}
	}
	c.audit.Log(audit.EventIndexCreate, c.name, map[string]interface{}{"index": name, "fields": fields})
	return nil
}

func indexValues(doc storage.Document, fields []string) []interface{} {
	values := make([]interface{}, len(fields))
	for i, f := range fields {
		v, ok := doc[f]
		if !ok {
			return nil
		}
		values[i] = v
	}
	return values
}

func (c *Collection) indexedFieldsFor(doc storage.Document) map[string][]string {
	// maps index name -> covered fields, for every registered index;
	// callers skip indexes for which doc lacks a covered field.
	out := make(map[string][]string)
	for _, name := range c.catalog.Names() {
		def, ok := c.catalog.Definition(name)
		if !ok {
			continue
		}
		out[name] = def.Fields
	}
	return out
}

func (c *Collection) updateIndexesOnInsert(doc storage.Document) {
	for name, fields := range c.indexedFieldsFor(doc) {
		if values := indexValues(doc, fields); values != nil {
			_ = c.catalog.Insert(name, values, doc.ID())
		}
	}
}

func (c *Collection) updateIndexesOnDelete(doc storage.Document) {
	for name, fields := range c.indexedFieldsFor(doc) {
		if values := indexValues(doc, fields); values != nil {
			_ = c.catalog.Remove(name, values, doc.ID())
		}
	}
}

func (c *Collection) updateIndexesOnChange(oldDoc, newDoc storage.Document) {
	c.updateIndexesOnDelete(oldDoc)
	c.updateIndexesOnInsert(newDoc)
}

// checkUnique enforces schema.Field.Unique via the field's index before
// insert (§4.3: "Uniqueness is enforced by the write path using the
// corresponding index before insert").
func (c *Collection) checkUnique(doc storage.Document) error {
	for name, field := range c.schema {
		if !field.Unique {
			continue
		}
		val, ok := doc[name]
		if !ok {
			continue
		}
		if ids, found := c.catalog.Lookup(name, []interface{}{val}); found && len(ids) > 0 {
			return wrapf(ErrDocumentOperation, "collection %q: field %q: value already exists", c.name, name)
		}
	}
	return nil
}

func (c *Collection) encodeForPersist(doc storage.Document) (storage.Document, error) {
	if !c.shouldEncrypt() {
		return doc, nil
	}
	user := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch k {
		case storage.FieldID, storage.FieldCreatedAt, storage.FieldUpdatedAt, storage.FieldVersion:
		default:
			user[k] = v
		}
	}
	plaintext, err := json.Marshal(user)
	if err != nil {
		return nil, wrapf(ErrEncryption, "collection %q: marshal payload: %v", c.name, err)
	}
	cipherStr, err := c.crypt.Encrypt(plaintext)
	if err != nil {
		return nil, wrapf(ErrEncryption, "collection %q: encrypt: %v", c.name, err)
	}
	out := storage.Document{
		storage.FieldID:        doc.ID(),
		storage.FieldCreatedAt: doc[storage.FieldCreatedAt],
		storage.FieldUpdatedAt: doc[storage.FieldUpdatedAt],
		storage.FieldVersion:   doc[storage.FieldVersion],
		"data":                 cipherStr,
	}
	return out, nil
}

func (c *Collection) decodeFromPersist(doc storage.Document) (storage.Document, error) {
	if !c.shouldEncrypt() || doc == nil {
		return doc, nil
	}
	raw, ok := doc["data"].(string)
	if !ok {
		return doc, nil
	}
	plaintext, err := c.crypt.Decrypt(raw)
	if err != nil {
		return nil, wrapf(ErrEncryption, "collection %q: decrypt document %q: %v", c.name, doc.ID(), err)
	}
	var user map[string]interface{}
	if err := json.Unmarshal(plaintext, &user); err != nil {
		return nil, wrapf(ErrEncryption, "collection %q: decode decrypted payload: %v", c.name, err)
	}
	out := storage.Document{
		storage.FieldID:        doc[storage.FieldID],
		storage.FieldCreatedAt: doc[storage.FieldCreatedAt],
		storage.FieldUpdatedAt: doc[storage.FieldUpdatedAt],
		storage.FieldVersion:   doc[storage.FieldVersion],
	}
	for k, v := range user {
		out[k] = v
	}
	return out, nil
}

func (c *Collection) shouldEncrypt() bool { return c.crypt != nil }

// requestFlush asks the advisory durability flusher to sync this
// collection's directory, per the auto_flush/flush_interval options
// (§6). A nil flusher (InMemory or AutoFlush disabled) is a no-op.
func (c *Collection) requestFlush() {
	if c.flusher == nil {
		return
	}
	if dir := c.storage.Dir(c.name); dir != "" {
		c.flusher.Request(dir)
	}
}

// InsertResult is returned by Insert.
type InsertResult struct {
	ID            string
	InsertedCount int
	Document      storage.Document
}

// Insert validates, assigns metadata, persists and indexes a new
// document (§4.8).
func (c *Collection) Insert(doc storage.Document) (*InsertResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(doc)
}

func (c *Collection) insertLocked(doc storage.Document) (*InsertResult, error) {
	working := doc.Clone()
	if err := c.validate.Apply(working); err != nil {
		c.audit.Error(audit.EventValidationNo, c.name, err, nil)
		return nil, err
	}
	assignInsertMetadata(working)
	if err := c.checkUnique(working); err != nil {
		return nil, err
	}

	persisted, err := c.encodeForPersist(working)
	if err != nil {
		return nil, err
	}
	if err := c.storage.Write(c.name, persisted); err != nil {
		return nil, wrapf(ErrStorage, "collection %q: write %q: %v", c.name, working.ID(), err)
	}

	c.docCache.Put(working.ID(), working)
	c.updateIndexesOnInsert(working)
	c.bumpGeneration()
	c.audit.Log(audit.EventInsert, c.name, map[string]interface{}{"id": working.ID()})

	return &InsertResult{ID: working.ID(), InsertedCount: 1, Document: working}, nil
}

// InsertManyResult reports aggregate outcome and any per-document
// failures of InsertMany, which is not atomic across documents (§4.8).
type InsertManyResult struct {
	InsertedIDs []string
	Failed      map[string]error // input index (as string) -> error, for failed items
}

// InsertMany persists docs in batches, parallelizing within a batch and
// serializing index updates, per §4.8.
func (c *Collection) InsertMany(ctx context.Context, docs []storage.Document) (*InsertManyResult, error) {
	result := &InsertManyResult{Failed: make(map[string]error)}

	for start := 0; start < len(docs); start += DefaultInsertBatchSize {
		end := start + DefaultInsertBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		prepared := make([]storage.Document, len(batch))
		persistErrs := make([]error, len(batch))

		g, _ := errgroup.WithContext(ctx)
		for i, doc := range batch {
			i, doc := i, doc
			g.Go(func() error {
				working := doc.Clone()
				if err := c.validate.Apply(working); err != nil {
					persistErrs[i] = err
					return nil
				}
				c.mu.Lock()
				assignInsertMetadata(working)
				uniqueErr := c.checkUnique(working)
				c.mu.Unlock()
				if uniqueErr != nil {
					persistErrs[i] = uniqueErr
					return nil
				}
				persisted, err := c.encodeForPersist(working)
				if err != nil {
					persistErrs[i] = err
					return nil
				}
				if err := c.storage.Write(c.name, persisted); err != nil {
					persistErrs[i] = wrapf(ErrStorage, "collection %q: write %q: %v", c.name, working.ID(), err)
					return nil
				}
				prepared[i] = working
				return nil
			})
		}
		_ = g.Wait()

		c.mu.Lock()
		for i, working := range prepared {
			if persistErrs[i] != nil || working == nil {
				result.Failed[fmt.Sprintf("%d", start+i)] = persistErrs[i]
				continue
			}
			c.docCache.Put(working.ID(), working)
			c.updateIndexesOnInsert(working)
			result.InsertedIDs = append(result.InsertedIDs, working.ID())
		}
		if len(prepared) > 0 {
			c.bumpGeneration()
		}
		c.mu.Unlock()
	}

	c.audit.Log(audit.EventInsert, c.name, map[string]interface{}{
		"inserted": len(result.InsertedIDs), "failed": len(result.Failed),
	})
	return result, nil
}

func (c *Collection) bumpGeneration() {
	c.generation.Add(1)
	c.qCache.Clear()
	c.requestFlush()
}

// loadDecoded loads a document and decrypts it if needed, preferring
// the document cache.
func (c *Collection) loadDecoded(id string) (storage.Document, error) {
	if cached, ok := c.docCache.Get(id); ok {
		return cached, nil
	}
	raw, err := c.storage.Read(c.name, id)
	if err != nil {
		return nil, wrapf(ErrStorage, "collection %q: read %q: %v", c.name, id, err)
	}
	doc, err := c.decodeFromPersist(raw)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		c.docCache.Put(id, doc)
	}
	return doc, nil
}

// matchingIDs runs the query engine's planner/executor to find ids
// matching filter, ignoring sort/limit (§4.8: "reusing the query
// pipeline with sort/limit ignored"). The executor decrypts documents
// itself (via its Decode hook) before filtering, so results here are
// already plaintext.
func (c *Collection) matchingIDs(ctx context.Context, filter map[string]interface{}) ([]storage.Document, error) {
	res, err := c.executor().Find(ctx, filter, queryengine.Options{})
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// UpdateResult reports how many documents an Update/Upsert touched.
type UpdateResult struct {
	MatchedCount int
	ModifiedIDs  []string
	UpsertedID   string
	UpsertedCount int
}

// Update matches filter, merges fields into every match, refreshes
// metadata, re-encrypts, persists and re-indexes (§4.8).
func (c *Collection) Update(ctx context.Context, filter map[string]interface{}, fields map[string]interface{}) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(ctx, filter, fields)
}

func (c *Collection) updateLocked(ctx context.Context, filter map[string]interface{}, fields map[string]interface{}) (*UpdateResult, error) {
	matches, err := c.matchingIDs(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{MatchedCount: len(matches)}
	for _, oldDoc := range matches {
		newDoc := oldDoc.Clone()
		for k, v := range fields {
			newDoc[k] = v
		}
		if err := c.validate.Apply(newDoc); err != nil {
			c.audit.Error(audit.EventValidationNo, c.name, err, map[string]interface{}{"id": oldDoc.ID()})
			return nil, err
		}
		refreshUpdateMetadata(newDoc)

		persisted, err := c.encodeForPersist(newDoc)
		if err != nil {
			return nil, err
		}
		if err := c.storage.Write(c.name, persisted); err != nil {
			return nil, wrapf(ErrStorage, "collection %q: write %q: %v", c.name, newDoc.ID(), err)
		}

		c.docCache.Put(newDoc.ID(), newDoc)
		c.updateIndexesOnChange(oldDoc, newDoc)
		result.ModifiedIDs = append(result.ModifiedIDs, newDoc.ID())
	}
	if len(matches) > 0 {
		c.bumpGeneration()
		c.audit.Log(audit.EventUpdate, c.name, map[string]interface{}{"matched": len(matches)})
	}
	return result, nil
}

// Upsert updates matching documents, or inserts payload as a new
// document when no match exists (§4.8).
func (c *Collection) Upsert(ctx context.Context, filter map[string]interface{}, payload storage.Document) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err := c.matchingIDs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return c.updateLocked(ctx, filter, payload)
	}

	insertDoc := payload.Clone()
	for k, v := range filter {
		if _, exists := insertDoc[k]; !exists {
			insertDoc[k] = v
		}
	}
	ins, err := c.insertLocked(insertDoc)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{UpsertedID: ins.ID, UpsertedCount: 1}, nil
}

// DeleteResult reports how many documents a Delete touched.
type DeleteResult struct {
	DeletedIDs []string
}

// Delete matches filter and removes every match from storage, the
// document cache, and every index (§4.8).
func (c *Collection) Delete(ctx context.Context, filter map[string]interface{}) (*DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err := c.matchingIDs(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{}
	for _, doc := range matches {
		if _, err := c.storage.Delete(c.name, doc.ID()); err != nil {
			return nil, wrapf(ErrStorage, "collection %q: delete %q: %v", c.name, doc.ID(), err)
		}
		c.docCache.Delete(doc.ID())
		c.updateIndexesOnDelete(doc)
		result.DeletedIDs = append(result.DeletedIDs, doc.ID())
	}
	if len(matches) > 0 {
		c.bumpGeneration()
		c.audit.Log(audit.EventDelete, c.name, map[string]interface{}{"deleted": len(result.DeletedIDs)})
	}
	return result, nil
}

// DeleteOne deletes at most the first match of filter.
func (c *Collection) DeleteOne(ctx context.Context, filter map[string]interface{}) (*DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err := c.matchingIDs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &DeleteResult{}, nil
	}
	doc := matches[0]
	if _, err := c.storage.Delete(c.name, doc.ID()); err != nil {
		return nil, wrapf(ErrStorage, "collection %q: delete %q: %v", c.name, doc.ID(), err)
	}
	c.docCache.Delete(doc.ID())
	c.updateIndexesOnDelete(doc)
	c.bumpGeneration()
	c.audit.Log(audit.EventDelete, c.name, map[string]interface{}{"deleted": 1})
	return &DeleteResult{DeletedIDs: []string{doc.ID()}}, nil
}

// Find runs the full query pipeline (§4.7). Decryption happens inside
// the executor's load phase, before the residual filter runs and before
// results reach either cache tier, so encrypted collections are
// queryable on both cache hit and cache miss.
func (c *Collection) Find(ctx context.Context, filter map[string]interface{}, opts queryengine.Options) (*queryengine.Result, error) {
	return c.executor().Find(ctx, filter, opts)
}

// FindOne is find(filter, limit=1).documents[0], or nil if no match
// (§4.7).
func (c *Collection) FindOne(ctx context.Context, filter map[string]interface{}) (storage.Document, error) {
	res, err := c.Find(ctx, filter, queryengine.Options{Limit: 1, LimitSet: true})
	if err != nil {
		return nil, err
	}
	if len(res.Documents) == 0 {
		return nil, nil
	}
	return res.Documents[0], nil
}

// FindByID bypasses the pipeline: cache, else direct storage read, else
// nil (§4.7).
func (c *Collection) FindByID(id string) (storage.Document, error) {
	return c.loadDecoded(id)
}

// Count returns the pipeline's total for filter, without materializing
// documents beyond what the planner needs.
func (c *Collection) Count(ctx context.Context, filter map[string]interface{}) (int, error) {
	res, err := c.Find(ctx, filter, queryengine.Options{})
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// IsEmpty reports whether the collection has zero documents.
func (c *Collection) IsEmpty() (bool, error) {
	ids, err := c.storage.IDs(c.name)
	if err != nil {
		return false, wrapf(ErrStorage, "collection %q: list ids: %v", c.name, err)
	}
	return len(ids) == 0, nil
}

// ClearCache empties both cache tiers unconditionally (§4.5/§4.6).
func (c *Collection) ClearCache() {
	c.docCache.Clear()
	c.qCache.Clear()
}

// Query starts a fluent QueryBuilder against this collection (§4.9).
func (c *Collection) Query() *QueryBuilder {
	return newQueryBuilder(c)
}

// Stats reports document count, index count, and on-disk size, modeled
// on bundoc's Database bookkeeping plus go-humanize for the formatted
// size (§6, SUPPLEMENTED FEATURES).
type Stats struct {
	DocumentCount int
	IndexCount    int
	CachedDocs    int
	OnDiskBytes   int64
	OnDiskHuman   string
	RefFields     []string
}

// Stats computes collection statistics. On-disk size is skipped for
// in-memory collections (reported as zero).
func (c *Collection) Stats() (*Stats, error) {
	ids, err := c.storage.IDs(c.name)
	if err != nil {
		return nil, wrapf(ErrStorage, "collection %q: list ids: %v", c.name, err)
	}
	var total int64
	for _, id := range ids {
		meta, err := c.storage.Metadata(c.name, id)
		if err != nil {
			return nil, wrapf(ErrStorage, "collection %q: metadata %q: %v", c.name, id, err)
		}
		if meta != nil {
			total += meta.Size
		}
	}
	return &Stats{
		DocumentCount: len(ids),
		IndexCount:    len(c.catalog.Names()),
		CachedDocs:    c.docCache.Len(),
		OnDiskBytes:   total,
		OnDiskHuman:   humanize.Bytes(uint64(total)),
		RefFields:     refFields(c.schema),
	}, nil
}
