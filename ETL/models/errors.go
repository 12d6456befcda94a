package models

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors, use with errors.Is.
var (
	// ErrEmptyExtract: a document yielded zero rows.
	ErrEmptyExtract = errors.New("document yielded no rows")

	// ErrExtraction: the extraction step failed for a document.
	ErrExtraction = errors.New("extraction failed")

	// ErrStorage: the raw store could not be written or read.
	ErrStorage = errors.New("raw store unavailable")

	// ErrDimensionStore: a dimension table could not be written or read.
	ErrDimensionStore = errors.New("dimension store unavailable")

	// ErrFactStore: the fact table could not be written.
	ErrFactStore = errors.New("fact store unavailable")

	// ErrConstraintViolation: a fact referenced a dimension id that does not
	// exist. Never expected in correct operation; fatal to the run.
	ErrConstraintViolation = errors.New("fact references missing dimension row")
)

// Phase names the pipeline step a file failed in.
type Phase string

const (
	PhaseIngestion Phase = "Ingestion"
	PhaseCleaning  Phase = "Cleaning"
	PhaseModelling Phase = "Modelling"
)

// FailureReason classifies a file-level failure.
type FailureReason string

const (
	FailureEmptyExtract        FailureReason = "EmptyExtract"
	FailureExtraction          FailureReason = "ExtractionFailed"
	FailureStorage             FailureReason = "StorageError"
	FailureDimensionStore      FailureReason = "DimensionStoreError"
	FailureConstraintViolation FailureReason = "ConstraintViolation"
	FailureCancelled           FailureReason = "Cancelled"
)

// StageError is a file-level failure: Failed(Phase, Reason).
type StageError struct {
	SourceFile string
	Phase      Phase
	Reason     FailureReason
	Err        error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s failed (%s)", e.Phase, e.Reason)
	if e.SourceFile != "" {
		msg = e.SourceFile + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// Fatal reports whether the failure must stop the whole run.
func (e *StageError) Fatal() bool {
	return e != nil && e.Reason == FailureConstraintViolation
}

// ReasonFor maps a wrapped sentinel error onto its failure reason.
func ReasonFor(err error) FailureReason {
	switch {
	case errors.Is(err, ErrEmptyExtract):
		return FailureEmptyExtract
	case errors.Is(err, ErrConstraintViolation):
		return FailureConstraintViolation
	case errors.Is(err, ErrDimensionStore):
		return FailureDimensionStore
	case errors.Is(err, ErrExtraction):
		return FailureExtraction
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	default:
		return FailureStorage
	}
}
