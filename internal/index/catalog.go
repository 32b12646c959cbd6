// Package index implements the per-collection index catalog (§4.4): a
// mapping from index name to (index key -> set of document ids), a
// derived field-to-index-names lookup, and a lazily built sorted vector
// per range-capable index.
package index

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Definition describes an index's shape: the ordered list of fields it
// covers. A single-field index has len(Fields) == 1.
type Definition struct {
	Name   string
	Fields []string
}

// Composite reports whether the index covers more than one field.
func (d Definition) Composite() bool { return len(d.Fields) > 1 }

type sortedEntry struct {
	key   float64
	value interface{}
	ids   []string
}

// index is one named index's live state.
type index struct {
	def Definition

	mu      sync.RWMutex
	entries map[string]map[string]struct{} // canonical key -> id set

	sortedBuilt bool
	sorted      []sortedEntry
}

// Catalog holds every index for a single collection plus the derived
// field -> index-names lookup the planner uses to find candidate
// indexes for a filtered field.
type Catalog struct {
	mu      sync.RWMutex
	indexes map[string]*index
	byField map[string][]string // field -> index names covering it, insertion order
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		indexes: make(map[string]*index),
		byField: make(map[string][]string),
	}
}

// CreateIndex registers a new index definition. Re-registering a name
// replaces the existing entry and drops its data.
func (c *Catalog) CreateIndex(def Definition) error {
	if def.Name == "" || len(def.Fields) == 0 {
		return fmt.Errorf("index: definition requires a name and at least one field")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.indexes[def.Name] = &index{
		def:     def,
		entries: make(map[string]map[string]struct{}),
	}
	for _, f := range def.Fields {
		names := c.byField[f]
		for _, n := range names {
			if n == def.Name {
				return nil
			}
		}
		c.byField[f] = append(names, def.Name)
	}
	return nil
}

// DropIndex removes an index and its field references.
func (c *Catalog) DropIndex(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexes[name]
	if !ok {
		return
	}
	delete(c.indexes, name)
	for _, f := range idx.def.Fields {
		names := c.byField[f]
		for i, n := range names {
			if n == name {
				c.byField[f] = append(names[:i], names[i+1:]...)
				break
			}
		}
	}
}

// Names returns every registered index name.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.indexes))
	for n := range c.indexes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Definition returns the named index's definition and whether it exists.
func (c *Catalog) Definition(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[name]
	if !ok {
		return Definition{}, false
	}
	return idx.def, true
}

// IndexesForField returns the names of every index that covers field,
// in the order they were created — the derived lookup from §4.4.
func (c *Catalog) IndexesForField(field string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := c.byField[field]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// canonicalKey produces a stable serialization for a tuple of field
// values so heterogeneous/composite keys can be used as map keys
// (design note: "store them in a map keyed by their canonical
// serialization, not by reference identity").
func canonicalKey(values []interface{}) string {
	b, err := json.Marshal(values)
	if err != nil {
		return fmt.Sprintf("%v", values)
	}
	return string(b)
}

// Insert adds id to the entry for values in the named index.
func (c *Catalog) Insert(name string, values []interface{}, id string) error {
	idx, ok := c.get(name)
	if !ok {
		return fmt.Errorf("index: %q not found", name)
	}
	key := canonicalKey(values)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	set, ok := idx.entries[key]
	if !ok {
		set = make(map[string]struct{})
		idx.entries[key] = set
	}
	set[id] = struct{}{}
	idx.sortedBuilt = false
	return nil
}

// Remove drops id from the entry for values, dropping the entry itself
// when it becomes empty.
func (c *Catalog) Remove(name string, values []interface{}, id string) error {
	idx, ok := c.get(name)
	if !ok {
		return fmt.Errorf("index: %q not found", name)
	}
	key := canonicalKey(values)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	set, ok := idx.entries[key]
	if !ok {
		return nil
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx.entries, key)
	}
	idx.sortedBuilt = false
	return nil
}

func (c *Catalog) get(name string) (*index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[name]
	return idx, ok
}

// Lookup returns the id set for an exact key (scalar or composite
// tuple), and whether the index has that key at all.
func (c *Catalog) Lookup(name string, values []interface{}) ([]string, bool) {
	idx, ok := c.get(name)
	if !ok {
		return nil, false
	}
	key := canonicalKey(values)

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set, ok := idx.entries[key]
	if !ok {
		return nil, false
	}
	return idsOf(set), true
}

// LookupMany unions the id sets for every value in values (used for $in).
func (c *Catalog) LookupMany(name string, valueSets [][]interface{}) []string {
	idx, ok := c.get(name)
	if !ok {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	union := make(map[string]struct{})
	for _, values := range valueSets {
		key := canonicalKey(values)
		for id := range idx.entries[key] {
			union[id] = struct{}{}
		}
	}
	return idsOf(union)
}

// PartialMatch iterates a composite index's entries and returns the ids
// of entries whose value at position matches target — used for $eq on a
// partial (prefix) key of a composite index.
func (c *Catalog) PartialMatch(name string, position int, target interface{}) ([]string, bool) {
	idx, ok := c.get(name)
	if !ok {
		return nil, false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	targetJSON, _ := json.Marshal(target)
	out := make(map[string]struct{})
	for key, set := range idx.entries {
		var tuple []json.RawMessage
		if err := json.Unmarshal([]byte(key), &tuple); err != nil {
			continue
		}
		if position >= len(tuple) {
			continue
		}
		if string(tuple[position]) == string(targetJSON) {
			for id := range set {
				out[id] = struct{}{}
			}
		}
	}
	return idsOf(out), true
}

// IsRangeCapable reports whether a single-field index's stored keys are
// all numeric, which is the precondition for range-scan index use
// (§4.7: "if the indexed field is numeric"). A composite index is never
// range-capable by this definition.
func (c *Catalog) IsRangeCapable(name string) bool {
	idx, ok := c.get(name)
	if !ok || idx.def.Composite() {
		return false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(idx.entries) == 0 {
		return false
	}
	for key := range idx.entries {
		var values []interface{}
		if err := json.Unmarshal([]byte(key), &values); err != nil || len(values) != 1 {
			return false
		}
		if _, ok := values[0].(float64); !ok {
			return false
		}
	}
	return true
}

// RangeIDs scans the lazily built sorted vector for a single-field
// numeric index, returning ids whose key satisfies [min, max] (either
// bound may be nil to mean unbounded), honoring the inclusivity flags.
func (c *Catalog) RangeIDs(name string, min, max *float64, minInclusive, maxInclusive bool) ([]string, bool) {
	idx, ok := c.get(name)
	if !ok {
		return nil, false
	}

	idx.mu.Lock()
	if !idx.sortedBuilt {
		idx.buildSortedLocked()
	}
	sorted := idx.sorted
	idx.mu.Unlock()

	out := make([]string, 0)
	for _, e := range sorted {
		if min != nil {
			if minInclusive && e.key < *min {
				continue
			}
			if !minInclusive && e.key <= *min {
				continue
			}
		}
		if max != nil {
			if maxInclusive && e.key > *max {
				break
			}
			if !maxInclusive && e.key >= *max {
				break
			}
		}
		out = append(out, e.ids...)
	}
	return out, true
}

// buildSortedLocked materializes the sorted (key, ids) vector for a
// numeric single-field index. Callers must hold idx.mu. Dropped (not
// incrementally reordered) on any mutation, per the design notes.
func (idx *index) buildSortedLocked() {
	idx.sorted = idx.sorted[:0]
	for key, set := range idx.entries {
		var values []interface{}
		if err := json.Unmarshal([]byte(key), &values); err != nil || len(values) != 1 {
			continue
		}
		f, ok := values[0].(float64)
		if !ok {
			continue
		}
		idx.sorted = append(idx.sorted, sortedEntry{key: f, value: values[0], ids: idsOf(set)})
	}
	sort.Slice(idx.sorted, func(i, j int) bool { return idx.sorted[i].key < idx.sorted[j].key })
	idx.sortedBuilt = true
}

func idsOf(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
