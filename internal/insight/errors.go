package insight

import (
	"errors"
	"fmt"
)

// ErrEmptyGeneration is returned when the generation service answered with no
// candidates or an empty text payload.
var ErrEmptyGeneration = errors.New("generation service returned an empty response")

// DataReadError aborts a run: one of the aggregator's collection reads
// failed and partial figures must not be used. Retryable by the caller.
type DataReadError struct {
	Collection string
	Err        error
}

func (e *DataReadError) Error() string {
	return fmt.Sprintf("reading %s records: %v", e.Collection, e.Err)
}

func (e *DataReadError) Unwrap() error { return e.Err }

// TransportError is a network-level failure reaching the generation service.
// The client never retries; retry policy belongs to the caller.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("generation transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError is a non-2xx reply from the generation service.
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("generation service error %d: %s", e.Code, e.Message)
}

// ParseError means the model's reply could not be interpreted as structured
// insight data. Raw retains the offending text for diagnostics. Terminal for
// the run; no partial candidates are emitted.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
