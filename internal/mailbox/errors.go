package mailbox

import (
	"errors"
	"fmt"
)

// InvalidInputError reports caller-supplied input that fails validation
// (empty search criteria, empty token pattern, non-positive UIDs). It is
// always surfaced to the caller and never retried internally.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsInvalidInput reports whether err (or any error in its chain) is an
// InvalidInputError.
func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

// SessionError reports a missing or dead session, detected at
// construction or on teardown.
type SessionError struct {
	Reason string
	Err    error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s: %v", e.Reason, e.Err)
	}
	return "session " + e.Reason
}

func (e *SessionError) Unwrap() error { return e.Err }

// BatchError reports that the initiating search, overview, or count call
// of a whole retrieval strategy failed. No partial collection is returned
// alongside it.
type BatchError struct {
	Op  string
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsBatchError reports whether err (or any error in its chain) is a
// BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// MessageProcessingError reports that one message could not be assembled.
// Batch strategies catch it, log, and continue with the remaining
// identifiers.
type MessageProcessingError struct {
	ID      uint32
	UIDMode bool
	Err     error
}

func (e *MessageProcessingError) Error() string {
	kind := "seq"
	if e.UIDMode {
		kind = "uid"
	}
	return fmt.Sprintf("processing message %s %d: %v", kind, e.ID, e.Err)
}

func (e *MessageProcessingError) Unwrap() error { return e.Err }

// IsMessageProcessingError reports whether err (or any error in its
// chain) is a MessageProcessingError.
func IsMessageProcessingError(err error) bool {
	var me *MessageProcessingError
	return errors.As(err, &me)
}

// StructureError reports that the session could not return a body
// structure for a message. Without structure nothing else is derivable,
// so the walker propagates it; the assembler degrades to an empty body
// and attachment list.
type StructureError struct {
	ID  uint32
	Err error
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("fetching structure for %d: %v", e.ID, e.Err)
}

func (e *StructureError) Unwrap() error { return e.Err }
