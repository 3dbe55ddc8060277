package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Sternrassler/vidmeta/pkg/video"
)

// Sink appends the outcomes of one job to the output CSV and its _error.csv
// sibling. Rows are queued and written every chunk rows, so a job that is
// interrupted still leaves everything reported up to the last chunk on disk,
// and Close writes the rest.
type Sink struct {
	output  string
	backend string
	fields  []video.Field
	chunk   int

	mu       sync.Mutex
	file     *os.File
	out      *csv.Writer
	errFile  *os.File
	errOut   *csv.Writer
	rows     [][]string
	errRows  [][]string
	records  int
	failures int
	err      error
}

// NewSink truncates output, writes its header and removes a stale error file.
// chunk <= 0 writes every row immediately.
func NewSink(output, backend string, fields []video.Field, chunk int) (*Sink, error) {
	if chunk <= 0 {
		chunk = 1
	}
	if err := os.Remove(ErrorPath(output)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale error file: %w", err)
	}

	f, err := os.Create(output)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	s := &Sink{
		output:  output,
		backend: backend,
		fields:  fields,
		chunk:   chunk,
		file:    f,
		out:     csv.NewWriter(f),
	}
	if err := s.out.Write(RecordHeader(fields)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	s.out.Flush()
	if err := s.out.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return s, nil
}

// Add queues one outcome. Write errors are kept and returned by Close.
func (s *Sink) Add(o video.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.OK() {
		s.rows = append(s.rows, recordRow(*o.Record, s.fields))
		s.records++
	} else {
		s.errRows = append(s.errRows, errorRow(*o.Err, s.backend))
		s.failures++
	}

	if len(s.rows) >= s.chunk {
		s.flushRows()
	}
	if len(s.errRows) >= s.chunk {
		s.flushErrors()
	}
}

// Counts returns the records and errors seen so far.
func (s *Sink) Counts() (records, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, s.failures
}

// Close writes the queued rows and closes both files.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushRows()
	s.flushErrors()
	s.keep(s.file.Close())
	if s.errFile != nil {
		s.keep(s.errFile.Close())
	}
	return s.err
}

func (s *Sink) flushRows() {
	if len(s.rows) == 0 || s.err != nil {
		return
	}
	s.keep(s.out.WriteAll(s.rows))
	s.rows = s.rows[:0]
}

func (s *Sink) flushErrors() {
	if len(s.errRows) == 0 || s.err != nil {
		return
	}
	if s.errOut == nil {
		f, err := os.Create(ErrorPath(s.output))
		if err != nil {
			s.keep(fmt.Errorf("create error file: %w", err))
			return
		}
		s.errFile = f
		s.errOut = csv.NewWriter(f)
		s.keep(s.errOut.Write(ErrorHeader))
	}
	s.keep(s.errOut.WriteAll(s.errRows))
	s.errRows = s.errRows[:0]
}

// keep records the first error.
func (s *Sink) keep(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}
