package nubodb

import (
	"errors"
	"fmt"
)

// Error kinds, per §7. Each is a sentinel suitable for errors.Is; the
// unexported wrapf helper below wraps them with operation-specific detail.
var (
	ErrDatabaseNotOpen      = errors.New("nubodb: database not open")
	ErrDatabaseAlreadyOpen  = errors.New("nubodb: database already open")
	ErrDatabaseInit         = errors.New("nubodb: database init failed")
	ErrCollectionNotFound   = errors.New("nubodb: collection not found")
	ErrCollectionExists     = errors.New("nubodb: collection already exists")
	ErrAliasExists          = errors.New("nubodb: alias already exists")
	ErrDocumentOperation    = errors.New("nubodb: document operation failed")
	ErrStorage              = errors.New("nubodb: storage error")
	ErrEncryption           = errors.New("nubodb: encryption error")
	ErrQueryShape           = errors.New("nubodb: invalid query shape")
	ErrTimeout              = errors.New("nubodb: operation timed out")
)

func wrapf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
