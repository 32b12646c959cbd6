// Package storage implements the per-collection, file-backed storage
// engine: one serialized document per file, atomic replace on write,
// directory enumeration for full scans.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
)

// encodeScratch recycles the byte buffers Encode marshals into; one
// document write or another's read never overlap on the same buffer
// since each Get/Put pair is scoped to a single Encode call.
var encodeScratch = sync.Pool{New: func() interface{} { return new(bytes.Buffer) }}

// Document is a decoded record: reserved metadata plus arbitrary user
// fields, all addressable by key the way bundoc's storage.Document was.
type Document map[string]interface{}

const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldVersion   = "version"
)

// ID returns the document's id, or "" if unset.
func (d Document) ID() string {
	if v, ok := d[FieldID]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetID sets the document's id.
func (d Document) SetID(id string) { d[FieldID] = id }

// Clone returns a deep copy so callers can mutate without racing the
// document cache, mirroring bundoc's Document.Clone.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]interface{}:
		return Document(val).Clone()
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, item := range val {
			cp[i] = deepCopy(item)
		}
		return cp
	default:
		return val
	}
}

// Encode produces the length-delimited binary container the on-disk
// layout requires (§6): a 4-byte big-endian length prefix followed by
// the JSON-encoded document body. The prefix lets readers validate a
// file's size before parsing, and keeps truncated writes detectable.
func Encode(d Document) ([]byte, error) {
	buf := encodeScratch.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		encodeScratch.Put(buf)
	}()

	if err := json.NewEncoder(buf).Encode(d); err != nil {
		return nil, fmt.Errorf("storage: encode document: %w", err)
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// Decode reverses Encode, validating the length prefix against the
// actual payload size.
func Decode(data []byte) (Document, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("storage: truncated document: %d bytes", len(data))
	}
	n := binary.BigEndian.Uint32(data[:4])
	body := data[4:]
	if uint32(len(body)) != n {
		return nil, fmt.Errorf("storage: length prefix mismatch: want %d, got %d", n, len(body))
	}
	var d Document
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("storage: decode document: %w", err)
	}
	return d, nil
}
