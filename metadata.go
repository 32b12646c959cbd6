package nubodb

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kartikbazzad/nubodb/internal/storage"
)

// newID returns a 32 hex-character id (§3), replacing the teacher's ad
// hoc generateID() with google/uuid's random generator, stripped of
// its canonical dashes.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// assignInsertMetadata stamps a freshly inserted document with id,
// created_at, updated_at and version=1 (§4.8).
func assignInsertMetadata(doc storage.Document) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if doc.ID() == "" {
		doc.SetID(newID())
	}
	doc[storage.FieldCreatedAt] = now
	doc[storage.FieldUpdatedAt] = now
	doc[storage.FieldVersion] = float64(1)
}

// refreshUpdateMetadata bumps updated_at and increments version on an
// existing document (§4.8). created_at is left untouched.
func refreshUpdateMetadata(doc storage.Document) {
	doc[storage.FieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339Nano)
	v, _ := doc[storage.FieldVersion].(float64)
	doc[storage.FieldVersion] = v + 1
}

func documentVersion(doc storage.Document) int64 {
	v, _ := doc[storage.FieldVersion].(float64)
	return int64(v)
}
