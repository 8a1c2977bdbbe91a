package pipeline

import (
	"errors"
	"fmt"
)

// SkipError is the explicit non-failure short circuit: the run has nothing
// to do for this record and all downstream phases must be bypassed without
// marking the pipeline failed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skip: " + e.Reason
}

// Skip builds a SkipError.
func Skip(format string, args ...interface{}) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// IsSkip reports whether err is a skip outcome.
func IsSkip(err error) bool {
	var s *SkipError
	return errors.As(err, &s)
}

// AcquireConflictError means another run owns the pipeline lock. The losing
// run fails its phase without mutating the record.
type AcquireConflictError struct {
	PipelineID string
}

func (e *AcquireConflictError) Error() string {
	return fmt.Sprintf("pipeline %s is already in progress under another run", e.PipelineID)
}

// IntegrityError means the target holds more rows than the source for the
// window. The audit fails the pipeline and deletes the window's data.
type IntegrityError struct {
	SourceCount int64
	TargetCount int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: target count %d exceeds source count %d", e.TargetCount, e.SourceCount)
}

// MismatchError means the reconciliation budget ran out with the target
// still behind the source.
type MismatchError struct {
	SourceCount int64
	TargetCount int64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("count mismatch after reconciliation budget: source %d, target %d", e.SourceCount, e.TargetCount)
}
