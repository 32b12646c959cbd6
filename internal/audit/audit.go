// Package audit emits structured write-path events (insert, update,
// delete, index rebuild) through zerolog. It is a direct rewiring of
// bundoc's security/audit.go JSON-lines AuditLogger/AuditEvent shape,
// moved from authentication/authorization events onto collection
// write-path events and from a hand-rolled file writer onto zerolog.
package audit

import (
	"github.com/rs/zerolog"
)

// EventType names the class of write-path event being recorded.
type EventType string

const (
	EventInsert       EventType = "insert"
	EventUpdate       EventType = "update"
	EventDelete       EventType = "delete"
	EventIndexCreate  EventType = "index_create"
	EventIndexDrop    EventType = "index_drop"
	EventValidationNo EventType = "validation_violation"
)

// Logger records write-path events against a collection.
type Logger struct {
	log zerolog.Logger
}

// New wraps log for audit use. A zero zerolog.Logger discards events.
func New(log zerolog.Logger) *Logger {
	return &Logger{log: log}
}

// Log records one event. details carries event-specific fields (e.g.
// document id, affected count, index name) rendered as structured
// key/value pairs rather than a formatted message.
func (l *Logger) Log(evt EventType, collection string, details map[string]interface{}) {
	e := l.log.Info().Str("event", string(evt)).Str("collection", collection)
	for k, v := range details {
		e = e.Interface(k, v)
	}
	e.Msg("write event")
}

// Error records a failed write-path event, typically a validation or
// storage error surfaced back to the caller.
func (l *Logger) Error(evt EventType, collection string, err error, details map[string]interface{}) {
	e := l.log.Error().Str("event", string(evt)).Str("collection", collection).Err(err)
	for k, v := range details {
		e = e.Interface(k, v)
	}
	e.Msg("write event failed")
}
