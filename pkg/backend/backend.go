// Package backend defines the contract every metadata source implements and
// the helpers shared by the concrete sources.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/vidmeta/pkg/video"
)

// Backend fetches metadata for video ids from one upstream source.
//
// Fetch returns outcomes for the ids it could attribute. Ids it leaves out are
// reported as unavailable by the caller. A returned error that is not Fatal is
// charged to every id without an outcome; a Fatal error aborts the whole job.
type Backend interface {
	// Name identifies the source ("scrape", "api").
	Name() string

	// MaxBatch is the largest number of ids accepted by one Fetch call.
	MaxBatch() int

	// Open prepares the source (browser start, credential check).
	// An error here fails the job before any item is dispatched.
	Open(ctx context.Context) error

	// Fetch retrieves metadata for ids. It must honour ctx cancellation.
	Fetch(ctx context.Context, ids []string) ([]video.Outcome, error)

	// Close releases resources acquired by Open.
	Close() error
}

// Factory creates a fresh backend for one job.
type Factory func() (Backend, error)

// FatalError marks an error that no retry or per-item attribution can fix,
// such as a rejected API key.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal backend error: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError. Fatal(nil) returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is or wraps a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
