// Package nubodb is an embedded, file-backed document database:
// MongoDB-style CRUD, a fluent query builder, schema validation,
// optional at-rest encryption, field indexing, and query-result
// caching, over the packages in internal/.
package nubodb

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kartikbazzad/nubodb/internal/crypto"
	"github.com/kartikbazzad/nubodb/internal/durability"
	"github.com/kartikbazzad/nubodb/internal/storage"
)

// Database is the top-level facade: collection registry, alias table,
// and the shared storage engine/encryption adapter every collection is
// built from.
type Database struct {
	opts Options
	log  zerolog.Logger

	storage  *storage.Engine
	crypt    *crypto.Adapter
	flusher  *durability.Flusher

	mu          sync.Mutex
	open        bool
	collections map[string]*Collection
	aliases     map[string]string // alias -> canonical name, facade-only (§9(c))
}

// Open initializes storage and returns a ready Database. The caller
// must call Close when done.
func Open(opts Options) (*Database, error) {
	if opts.Path == "" && !opts.InMemory {
		return nil, wrapf(ErrDatabaseInit, "path is required unless in_memory is set")
	}

	log := opts.logger()

	engine, err := storage.New(storage.Options{
		Base:            opts.Path,
		InMemory:        opts.InMemory,
		CreateIfMissing: opts.CreateIfMissing,
		ReadConcurrency: opts.ReadConcurrency,
	})
	if err != nil {
		return nil, wrapf(ErrDatabaseInit, "open storage: %v", err)
	}

	var crypt *crypto.Adapter
	if opts.Encrypt {
		crypt, err = crypto.New([]byte(opts.EncryptionKey))
		if err != nil {
			return nil, wrapf(ErrDatabaseInit, "build encryption adapter: %v", err)
		}
	}

	var flusher *durability.Flusher
	if opts.AutoFlush && !opts.InMemory {
		flusher = durability.New(opts.FlushInterval)
	}

	db := &Database{
		opts:        opts,
		log:         log,
		storage:     engine,
		crypt:       crypt,
		flusher:     flusher,
		open:        true,
		collections: make(map[string]*Collection),
		aliases:     make(map[string]string),
	}
	return db, nil
}

// Close drops in-memory state; storage persists unless InMemory was set
// (§3: "on close, in-memory state is dropped but storage persists").
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return ErrDatabaseNotOpen
	}
	if db.flusher != nil {
		db.flusher.Stop()
	}
	db.storage.Close()
	db.collections = make(map[string]*Collection)
	db.open = false
	return nil
}

func (db *Database) resolve(name string) string {
	if canonical, ok := db.aliases[name]; ok {
		return canonical
	}
	return name
}

// Collection returns the named collection (resolving aliases),
// creating it on first access with default configuration — matching
// §3's "a collection exists from its first access".
func (db *Database) Collection(name string) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return nil, ErrDatabaseNotOpen
	}

	canonical := db.resolve(name)
	if c, ok := db.collections[canonical]; ok {
		return c, nil
	}
	return db.createCollectionLocked(canonical, CollectionConfig{Mode: db.opts.SchemaValidation})
}

// CreateCollection explicitly creates a collection with cfg, failing if
// one already exists under that name.
func (db *Database) CreateCollection(name string, cfg CollectionConfig) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return nil, ErrDatabaseNotOpen
	}
	canonical := db.resolve(name)
	if _, ok := db.collections[canonical]; ok {
		return nil, wrapf(ErrCollectionExists, "%q", canonical)
	}
	if cfg.Mode == "" {
		cfg.Mode = db.opts.SchemaValidation
	}
	if cfg.MaxCacheSize == 0 {
		cfg.MaxCacheSize = db.opts.MaxCacheSize
	}
	return db.createCollectionLocked(canonical, cfg)
}

func (db *Database) createCollectionLocked(name string, cfg CollectionConfig) (*Collection, error) {
	var crypt *crypto.Adapter
	if cfg.Encrypt || db.opts.Encrypt {
		crypt = db.crypt
		if crypt == nil {
			return nil, wrapf(ErrDatabaseInit, "collection %q: encryption requested but database has no key configured", name)
		}
	}
	c, err := newCollection(name, db.storage, crypt, db.flusher, cfg, db.log.With().Str("collection", name).Logger())
	if err != nil {
		return nil, err
	}
	db.collections[name] = c
	return c, nil
}

// DropCollection removes a collection from the registry and deletes
// every document it holds.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return ErrDatabaseNotOpen
	}
	canonical := db.resolve(name)
	c, ok := db.collections[canonical]
	if !ok {
		return wrapf(ErrCollectionNotFound, "%q", canonical)
	}
	ids, err := db.storage.IDs(canonical)
	if err != nil {
		return wrapf(ErrStorage, "drop collection %q: list ids: %v", canonical, err)
	}
	for _, id := range ids {
		if _, err := db.storage.Delete(canonical, id); err != nil {
			return wrapf(ErrStorage, "drop collection %q: delete %q: %v", canonical, id, err)
		}
	}
	c.ClearCache()
	delete(db.collections, canonical)
	return nil
}

// ListCollections returns every known collection's canonical name.
func (db *Database) ListCollections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.collections))
	for name := range db.collections {
		out = append(out, name)
	}
	return out
}

// Alias registers name as an alternate for canonical, consulted only by
// Collection/CreateCollection/DropCollection lookups (§3, §9(c)).
func (db *Database) Alias(name, canonical string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.aliases[name]; ok {
		return wrapf(ErrAliasExists, "%q", name)
	}
	db.aliases[name] = canonical
	return nil
}

// Validate is a lightweight health check: the database must be open and
// its storage root reachable.
func (db *Database) Validate() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return ErrDatabaseNotOpen
	}
	if !db.opts.InMemory {
		if _, err := os.Stat(db.opts.Path); err != nil {
			return wrapf(ErrStorage, "storage root %q: %v", db.opts.Path, err)
		}
	}
	return nil
}

// DatabaseStats aggregates Stats() across every registered collection.
type DatabaseStats struct {
	Collections map[string]*Stats
}

// Stats reports per-collection statistics for every registered
// collection.
func (db *Database) Stats() (*DatabaseStats, error) {
	db.mu.Lock()
	collections := make(map[string]*Collection, len(db.collections))
	for name, c := range db.collections {
		collections[name] = c
	}
	db.mu.Unlock()

	out := &DatabaseStats{Collections: make(map[string]*Stats, len(collections))}
	for name, c := range collections {
		s, err := c.Stats()
		if err != nil {
			return nil, fmt.Errorf("nubodb: stats for %q: %w", name, err)
		}
		out.Collections[name] = s
	}
	return out, nil
}
