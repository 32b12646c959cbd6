package nubodb

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/kartikbazzad/nubodb/internal/schema"
)

// Options configures a Database, per §6's configuration table.
type Options struct {
	// Path is the root directory for collections. Required unless
	// InMemory is set.
	Path string

	// InMemory skips disk persistence; semantics are identical, with no
	// durability across process restarts.
	InMemory bool

	// CreateIfMissing creates Path on Open if it doesn't exist.
	CreateIfMissing bool

	// Encrypt, EncryptionKey and EncryptionMethod enable per-collection
	// encryption (§4.2). EncryptionMethod is informational; the adapter
	// is AES-CFB regardless, matching §6's on-disk "iv:ciphertext" form.
	Encrypt          bool
	EncryptionKey    string
	EncryptionMethod string

	// MaxCacheSize bounds the document cache (§4.5) of collections made
	// by CreateCollection; 0 uses cache.DefaultDocumentCacheSize.
	// CacheDocuments is not consulted: the document cache is always on.
	CacheDocuments bool
	MaxCacheSize   int

	// AutoFlush and FlushInterval are advisory durability batching
	// (§6, internal/durability). Ignored when InMemory is set.
	AutoFlush     bool
	FlushInterval time.Duration

	// SchemaValidation selects the default validator mode for
	// collections that don't override it explicitly.
	SchemaValidation schema.Mode

	// Debug and LogLevel configure the zerolog surface.
	Debug    bool
	LogLevel zerolog.Level

	// ReadConcurrency bounds concurrent file reads (§4.1). 0 uses
	// storage.DefaultReadConcurrency.
	ReadConcurrency int
}

// DefaultOptions returns an Options with path set and every other field
// at its documented default.
func DefaultOptions(path string) Options {
	return Options{
		Path:             path,
		CreateIfMissing:  true,
		CacheDocuments:   true,
		SchemaValidation: schema.ModeStrict,
		LogLevel:         zerolog.InfoLevel,
		AutoFlush:        true,
		FlushInterval:    time.Second,
	}
}

func (o Options) logger() zerolog.Logger {
	level := o.LogLevel
	if !o.Debug && level < zerolog.InfoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()
}
