package video

import "fmt"

// ErrorClass classifies a per-item failure.
type ErrorClass string

const (
	// ClassTimeout means the item did not finish within the per-item timeout.
	ClassTimeout ErrorClass = "timeout"

	// ClassTransient covers network hiccups and upstream 5xx that may succeed later.
	ClassTransient ErrorClass = "transient"

	// ClassUnavailable means the video is private, removed or never existed.
	ClassUnavailable ErrorClass = "unavailable"

	// ClassQuota means the daily API budget was exhausted before the item ran.
	ClassQuota ErrorClass = "quota"

	// ClassInternal is a failure inside the fetcher itself (recovered panic, bad payload).
	ClassInternal ErrorClass = "internal"
)

// FetchError describes why one item produced no record.
type FetchError struct {
	VideoID string     `json:"video_id"`
	Message string     `json:"error"`
	Detail  string     `json:"detail,omitempty"`
	Class   ErrorClass `json:"class"`
}

// Error implements the error interface.
func (e FetchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.VideoID, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.VideoID, e.Message)
}

// NewFetchError builds a FetchError, using err as the detail when non-nil.
func NewFetchError(videoID string, class ErrorClass, message string, err error) FetchError {
	fe := FetchError{VideoID: videoID, Message: message, Class: class}
	if err != nil {
		fe.Detail = err.Error()
	}
	return fe
}

// Outcome is the result for one input position: exactly one of Record or Err is set.
type Outcome struct {
	VideoID string
	Record  *Record
	Err     *FetchError
}

// Success wraps a record as an outcome.
func Success(rec Record) Outcome {
	return Outcome{VideoID: rec.VideoID, Record: &rec}
}

// Failure wraps a fetch error as an outcome.
func Failure(fe FetchError) Outcome {
	return Outcome{VideoID: fe.VideoID, Err: &fe}
}

// OK reports whether the outcome carries a record.
func (o Outcome) OK() bool {
	return o.Record != nil && o.Err == nil
}
