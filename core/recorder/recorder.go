// Package recorder persists completed application records. Records are
// immutable once created; the conversational flow generates the id and
// treats persistence as best-effort.
package recorder

import (
	"context"
	"time"
)

// Kind classifies an application record.
type Kind string

const (
	KindStudyAbroad  Kind = "study_abroad"
	KindEnrollment   Kind = "enrollment"
	KindConsultation Kind = "consultation"
)

// Record is one completed form submission.
type Record struct {
	ID          string
	Kind        Kind
	Fields      map[string]string
	SubmittedAt time.Time
}

// Sink accepts records for persistence. The id is caller-generated so
// confirmation messages can echo it regardless of storage outcome.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// Recorder stores records and serves the administrative read interface.
type Recorder interface {
	Sink
	// List returns stored records sorted by submission time descending.
	// An empty kind returns all kinds.
	List(ctx context.Context, kind Kind) ([]Record, error)
}

// Count reports the total number of stored records, used by the health
// endpoint. Implementations without a cheap count may return List length.
type Counter interface {
	Count(ctx context.Context) (int, error)
}
