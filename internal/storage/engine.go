package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// DefaultExtension is the file extension used for one-document-per-file
// storage, per the on-disk layout in §6 of the spec.
const DefaultExtension = "ndoc"

// DefaultReadConcurrency bounds how many files a ReadAll/batch load may
// have open at once, per §4.1's "batches of at most N concurrent reads".
const DefaultReadConcurrency = 100

// ErrNotFound names the missing-document condition. Engine methods do not
// return it: Read, Exists and Delete report a missing document as a nil
// or false result instead of an error (spec §4.1).
var ErrNotFound = errors.New("storage: document not found")

// Metadata is the lightweight file-level information returned by Metadata.
type Metadata struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Size      int64
}

// Engine is a file-backed storage engine: one directory per collection,
// one file per document, atomic single-file writes. InMemory mode skips
// all disk I/O and keeps documents in a map instead, for identical
// semantics without durability (§6).
type Engine struct {
	base      string
	inMemory  bool
	extension string

	dirsMu sync.Mutex
	dirs   map[string]struct{} // memoized "directory ensured" set, additive only

	memMu sync.RWMutex
	mem   map[string]map[string][]byte // collection -> id -> encoded document

	pool *ants.Pool
}

// Options configures an Engine.
type Options struct {
	Base            string
	InMemory        bool
	CreateIfMissing bool
	ReadConcurrency int
	FileExtension   string
}

// New constructs a storage engine rooted at opts.Base. When InMemory is
// set, Base is not touched on disk at all.
func New(opts Options) (*Engine, error) {
	ext := opts.FileExtension
	if ext == "" {
		ext = DefaultExtension
	}
	conc := opts.ReadConcurrency
	if conc <= 0 {
		conc = DefaultReadConcurrency
	}

	e := &Engine{
		base:      opts.Base,
		inMemory:  opts.InMemory,
		extension: ext,
		dirs:      make(map[string]struct{}),
		mem:       make(map[string]map[string][]byte),
	}

	if !opts.InMemory {
		if opts.CreateIfMissing {
			if err := os.MkdirAll(opts.Base, 0o755); err != nil {
				return nil, fmt.Errorf("storage: create base dir: %w", err)
			}
		} else if _, err := os.Stat(opts.Base); err != nil {
			return nil, fmt.Errorf("storage: base dir: %w", err)
		}
	}

	pool, err := ants.NewPool(conc, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("storage: create read pool: %w", err)
	}
	e.pool = pool

	return e, nil
}

// Close releases the engine's worker pool. It does not discard in-memory
// data; the caller owns the Engine's lifetime.
func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.Release()
	}
}

func (e *Engine) collectionDir(collection string) string {
	return filepath.Join(e.base, collection)
}

// Dir exposes the on-disk directory for collection, for callers (e.g.
// the durability flusher) that need to fsync it directly. Empty for an
// in-memory engine.
func (e *Engine) Dir(collection string) string {
	if e.inMemory {
		return ""
	}
	return e.collectionDir(collection)
}

func (e *Engine) docPath(collection, id string) string {
	return filepath.Join(e.collectionDir(collection), id+"."+e.extension)
}

// ensureDir memoizes directory creation so repeated writes to the same
// collection don't stat/mkdir every time (spec §4.1: "idempotent and
// memoized").
func (e *Engine) ensureDir(collection string) error {
	if e.inMemory {
		return nil
	}
	e.dirsMu.Lock()
	defer e.dirsMu.Unlock()
	if _, ok := e.dirs[collection]; ok {
		return nil
	}
	if err := os.MkdirAll(e.collectionDir(collection), 0o755); err != nil {
		return fmt.Errorf("storage: ensure dir %q: %w", collection, err)
	}
	e.dirs[collection] = struct{}{}
	return nil
}

// Write atomically replaces the file for doc's id, creating the
// collection directory on first use.
func (e *Engine) Write(collection string, doc Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("storage: write: document has no id")
	}
	encoded, err := Encode(doc)
	if err != nil {
		return err
	}

	if e.inMemory {
		e.memMu.Lock()
		defer e.memMu.Unlock()
		coll, ok := e.mem[collection]
		if !ok {
			coll = make(map[string][]byte)
			e.mem[collection] = coll
		}
		coll[id] = encoded
		return nil
	}

	if err := e.ensureDir(collection); err != nil {
		return err
	}

	final := e.docPath(collection, id)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("storage: write %q: %w", final, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: rename %q: %w", final, err)
	}
	return nil
}

// Read returns the document for id, or (nil, nil) if it doesn't exist.
func (e *Engine) Read(collection, id string) (Document, error) {
	if e.inMemory {
		e.memMu.RLock()
		defer e.memMu.RUnlock()
		coll, ok := e.mem[collection]
		if !ok {
			return nil, nil
		}
		data, ok := coll[id]
		if !ok {
			return nil, nil
		}
		return Decode(data)
	}

	data, err := os.ReadFile(e.docPath(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %q/%q: %w", collection, id, err)
	}
	return Decode(data)
}

// Exists reports whether a document with id is stored, without decoding it.
func (e *Engine) Exists(collection, id string) (bool, error) {
	if e.inMemory {
		e.memMu.RLock()
		defer e.memMu.RUnlock()
		coll, ok := e.mem[collection]
		if !ok {
			return false, nil
		}
		_, ok = coll[id]
		return ok, nil
	}
	_, err := os.Stat(e.docPath(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %q/%q: %w", collection, id, err)
	}
	return true, nil
}

// Delete removes a document, returning false (not an error) if it was
// already absent.
func (e *Engine) Delete(collection, id string) (bool, error) {
	if e.inMemory {
		e.memMu.Lock()
		defer e.memMu.Unlock()
		coll, ok := e.mem[collection]
		if !ok {
			return false, nil
		}
		if _, ok := coll[id]; !ok {
			return false, nil
		}
		delete(coll, id)
		return true, nil
	}

	err := os.Remove(e.docPath(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: delete %q/%q: %w", collection, id, err)
	}
	return true, nil
}

// Metadata returns file-level metadata, or nil if the document doesn't
// exist. It reads and decodes the whole document to get the timestamps.
func (e *Engine) Metadata(collection, id string) (*Metadata, error) {
	doc, err := e.Read(collection, id)
	if err != nil || doc == nil {
		return nil, err
	}
	meta := &Metadata{ID: id}
	if v, ok := doc[FieldCreatedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			meta.CreatedAt = t
		}
	}
	if v, ok := doc[FieldUpdatedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			meta.UpdatedAt = t
		}
	}
	if !e.inMemory {
		if fi, err := os.Stat(e.docPath(collection, id)); err == nil {
			meta.Size = fi.Size()
		}
	}
	return meta, nil
}

// IDs enumerates every document id stored for a collection by stripping
// the file extension from a directory scan (§4.1).
func (e *Engine) IDs(collection string) ([]string, error) {
	if e.inMemory {
		e.memMu.RLock()
		defer e.memMu.RUnlock()
		coll := e.mem[collection]
		ids := make([]string, 0, len(coll))
		for id := range coll {
			ids = append(ids, id)
		}
		return ids, nil
	}

	entries, err := os.ReadDir(e.collectionDir(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: scan %q: %w", collection, err)
	}
	suffix := "." + e.extension
	ids := make([]string, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if strings.HasSuffix(name, suffix) {
			ids = append(ids, strings.TrimSuffix(name, suffix))
		}
	}
	return ids, nil
}

// ReadAll loads every document in a collection, bounding concurrent
// file descriptor usage to the engine's read pool size.
func (e *Engine) ReadAll(collection string) ([]Document, error) {
	ids, err := e.IDs(collection)
	if err != nil {
		return nil, err
	}
	return e.ReadMany(collection, ids)
}

// ReadMany loads a specific set of ids, reusing the bounded worker pool
// so a large candidate set doesn't open thousands of files at once.
func (e *Engine) ReadMany(collection string, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	docs := make([]Document, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	wg.Add(len(ids))

	for i, id := range ids {
		i, id := i, id
		task := func() {
			defer wg.Done()
			doc, err := e.Read(collection, id)
			docs[i] = doc
			errs[i] = err
		}
		if err := e.pool.Submit(task); err != nil {
			// Pool saturated/closed: run inline rather than fail the load.
			task()
		}
	}
	wg.Wait()

	out := make([]Document, 0, len(ids))
	for i, doc := range docs {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out, nil
}
