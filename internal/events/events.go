// Package events announces completed generations to other services
package events

import (
	"context"

	"github.com/aisdlc/copilot/internal/history"
)

const (
	// StreamName is the JetStream stream holding generation events
	StreamName = "COPILOT_EVENTS"

	// SubjectPrefix prefixes every generation subject
	SubjectPrefix = "copilot.generation"

	// SubjectAll matches all generation subjects
	SubjectAll = SubjectPrefix + ".>"
)

// SubjectFor returns the subject a record of kind is published on
func SubjectFor(kind history.Kind) string {
	return SubjectPrefix + "." + string(kind)
}

// Publisher announces generation records
type Publisher interface {
	Publish(ctx context.Context, r *history.Record) error
	Close()
}

// NopPublisher discards every record
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, *history.Record) error { return nil }

// Close does nothing
func (NopPublisher) Close() {}
