package jobs

import "github.com/Sternrassler/vidmeta/pkg/video"

// Report is the final outcome of a job, in completion order.
type Report struct {
	Results []video.Record     `json:"results"`
	Errors  []video.FetchError `json:"errors"`
}

// Aggregator collects outcomes into a Report. It is not safe for concurrent
// use; the pool calls it from its single collector goroutine.
type Aggregator struct {
	results []video.Record
	errors  []video.FetchError
}

// NewAggregator creates an aggregator sized for total outcomes.
func NewAggregator(total int) *Aggregator {
	return &Aggregator{
		results: make([]video.Record, 0, total),
		errors:  make([]video.FetchError, 0),
	}
}

// Add records one outcome.
func (a *Aggregator) Add(o video.Outcome) {
	switch {
	case o.OK():
		a.results = append(a.results, *o.Record)
	case o.Err != nil:
		a.errors = append(a.errors, *o.Err)
	default:
		a.errors = append(a.errors, video.FetchError{
			VideoID: o.VideoID,
			Message: "empty outcome",
			Class:   video.ClassInternal,
		})
	}
}

// Count returns the number of outcomes added.
func (a *Aggregator) Count() int {
	return len(a.results) + len(a.errors)
}

// Report returns the collected outcomes. Both slices are non-nil.
func (a *Aggregator) Report() Report {
	return Report{Results: a.results, Errors: a.errors}
}
