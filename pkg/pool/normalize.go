package pool

import (
	"errors"

	"github.com/Sternrassler/vidmeta/pkg/video"
)

// normalize returns exactly one outcome per position in unit.
//
// Backend outcomes are matched by video id. A duplicated id reuses the last
// outcome reported for it. Ids without an outcome are charged callErr when the
// call failed, and reported unavailable otherwise.
func normalize(unit []string, outcomes []video.Outcome, callErr error) []video.Outcome {
	byID := make(map[string][]video.Outcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.VideoID] = append(byID[o.VideoID], o)
	}

	out := make([]video.Outcome, 0, len(unit))
	for _, id := range unit {
		queue := byID[id]
		if len(queue) == 0 {
			out = append(out, missing(id, callErr))
			continue
		}
		o := queue[0]
		if len(queue) > 1 {
			byID[id] = queue[1:]
		}
		out = append(out, sanitize(id, o))
	}
	return out
}

func missing(id string, callErr error) video.Outcome {
	if callErr == nil {
		return video.Failure(video.NewFetchError(id, video.ClassUnavailable, "video unavailable", nil))
	}
	var pe *PanicError
	switch {
	case errors.Is(callErr, ErrTimeout):
		return video.Failure(video.NewFetchError(id, video.ClassTimeout, "fetch timed out", callErr))
	case errors.As(callErr, &pe):
		return video.Failure(video.NewFetchError(id, video.ClassInternal, "fetcher crashed", callErr))
	default:
		return video.Failure(video.NewFetchError(id, video.ClassTransient, "fetch failed", callErr))
	}
}

// sanitize enforces the outcome invariants and copies the record so that
// duplicate positions never share a field map.
func sanitize(id string, o video.Outcome) video.Outcome {
	switch {
	case o.Err != nil:
		fe := *o.Err
		fe.VideoID = id
		if fe.Class == "" {
			fe.Class = video.ClassTransient
		}
		return video.Failure(fe)
	case o.Record != nil:
		rec := o.Record.Clone()
		rec.VideoID = id
		return video.Success(rec)
	default:
		return video.Failure(video.NewFetchError(id, video.ClassInternal, "backend returned an empty outcome", nil))
	}
}
