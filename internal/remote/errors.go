package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by backends and the client. They can be checked with
// errors.Is:
//
//	if errors.Is(err, remote.ErrConflict) {
//	    // someone else changed the record first
//	}
var (
	// ErrNamespaceMissing is returned when the zone does not exist yet.
	// Client writes create the zone and retry once.
	ErrNamespaceMissing = errors.New("namespace does not exist")

	// ErrRecordNotFound is returned when a looked-up record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrMemberNotFound is returned when no member matches (group, user)
	ErrMemberNotFound = errors.New("member not found")

	// ErrConflict is returned when a save-if-unchanged write finds a
	// different change tag on the server. It is never retried.
	ErrConflict = errors.New("record changed on server")

	// ErrEncoding is returned when a record field is missing or has the
	// wrong type, or a request cannot be encoded
	ErrEncoding = errors.New("record encoding error")

	// ErrPartialBatch matches *PartialBatchError
	ErrPartialBatch = errors.New("batch partially applied")

	// ErrNetworkUnavailable is returned when the record service cannot be
	// reached
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// RecordError ties a failure to the record it happened on
type RecordError struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// PartialBatchError reports a non-atomic batch where some records were
// written and others were not. The caller decides what to resubmit.
type PartialBatchError struct {
	Saved   []string
	Deleted []string
	Failed  []RecordError
}

func (e *PartialBatchError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("batch partially applied: %d saved, %d deleted, %d failed (%s)",
		len(e.Saved), len(e.Deleted), len(e.Failed), strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrPartialBatch) match
func (e *PartialBatchError) Is(target error) bool {
	return target == ErrPartialBatch
}

// Unwrap exposes every per-record cause
func (e *PartialBatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for i := range e.Failed {
		out = append(out, &e.Failed[i])
	}
	return out
}

// FailedIDs returns the ids of the records that were not written
func (e *PartialBatchError) FailedIDs() []string {
	out := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		out = append(out, f.ID)
	}
	return out
}
