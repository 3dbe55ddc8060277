package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Sternrassler/vidmeta/pkg/video"
)

// Comparison joins the records two backends produced for the same ids into
// one row per id: the primary backend's fields first, then the secondary
// backend's fields with prefix.
type Comparison struct {
	primary   string
	secondary string
	prefix    string
	fields    []video.Field

	mu      sync.Mutex
	records map[string]map[string]video.Record
	errRows [][]string
}

// NewComparison creates an empty comparison.
func NewComparison(primary, secondary, prefix string, fields []video.Field) *Comparison {
	return &Comparison{
		primary:   primary,
		secondary: secondary,
		prefix:    prefix,
		fields:    fields,
		records: map[string]map[string]video.Record{
			primary:   {},
			secondary: {},
		},
	}
}

// Sink returns the outcome callback for backend.
func (c *Comparison) Sink(backend string) func(video.Outcome) {
	return func(o video.Outcome) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !o.OK() {
			c.errRows = append(c.errRows, errorRow(*o.Err, backend))
			return
		}
		if recs, ok := c.records[backend]; ok {
			recs[o.VideoID] = *o.Record
		}
	}
}

// Header returns the joined column names.
func (c *Comparison) Header() []string {
	out := RecordHeader(c.fields)
	for _, f := range c.fields {
		out = append(out, c.prefix+string(f))
	}
	return out
}

// Row returns the joined row for id. Fields a backend did not deliver are Unknown.
func (c *Comparison) Row(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := []string{id}
	for _, backend := range []string{c.primary, c.secondary} {
		rec, ok := c.records[backend][id]
		if !ok {
			rec = video.NewRecord(id)
		}
		row = append(row, recordRow(rec, c.fields)[1:]...)
	}
	return row
}

// Counts returns the records per backend and the number of errors.
func (c *Comparison) Counts() (primary, secondary, failures int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records[c.primary]), len(c.records[c.secondary]), len(c.errRows)
}

// Write writes one row per distinct id, in input order, to output and the
// errors of both backends to ErrorPath(output).
func (c *Comparison) Write(output string, ids []string) error {
	err := writeFile(output, func(cw *csv.Writer) error {
		if err := cw.Write(c.Header()); err != nil {
			return err
		}
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := cw.Write(c.Row(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write comparison: %w", err)
	}

	c.mu.Lock()
	errRows := append([][]string(nil), c.errRows...)
	c.mu.Unlock()
	if len(errRows) == 0 {
		if err := os.Remove(ErrorPath(output)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale error file: %w", err)
		}
		return nil
	}
	err = writeFile(ErrorPath(output), func(cw *csv.Writer) error {
		if err := cw.Write(ErrorHeader); err != nil {
			return err
		}
		return cw.WriteAll(errRows)
	})
	if err != nil {
		return fmt.Errorf("write errors: %w", err)
	}
	return nil
}
