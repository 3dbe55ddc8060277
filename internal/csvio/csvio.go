// Package csvio reads video ids from a CSV column and writes job reports as CSV.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/vidmeta/pkg/video"
)

// DefaultIDColumn is the input column holding video ids.
const DefaultIDColumn = "yt_video_id"

// ErrColumnNotFound is returned when the id column is missing from the header.
var ErrColumnNotFound = errors.New("id column not found")

// ErrorHeader is the header of the error CSV.
var ErrorHeader = []string{"video_id", "error", "detail", "class", "backend"}

// ErrUnknownField is returned by ParseFields for a name outside the record schema.
var ErrUnknownField = errors.New("unknown field")

// ReadIDs returns the non-blank values of column, in file order.
func ReadIDs(r io.Reader, column string) ([]string, error) {
	if column == "" {
		column = DefaultIDColumn
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %q (empty input)", ErrColumnNotFound, column)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := -1
	for i, name := range header {
		// Spreadsheet exports often carry a BOM on the first cell.
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	var ids []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idx >= len(row) {
			continue
		}
		if id := strings.TrimSpace(row[idx]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ReadIDsFile opens path and calls ReadIDs.
func ReadIDsFile(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIDs(f, column)
}

// ParseFields parses a comma separated field list. An empty list selects
// every field of the record schema.
func ParseFields(list string) ([]video.Field, error) {
	if strings.TrimSpace(list) == "" {
		return append([]video.Field(nil), video.Fields...), nil
	}

	known := make(map[video.Field]bool, len(video.Fields))
	for _, f := range video.Fields {
		known[f] = true
	}

	var fields []video.Field
	seen := make(map[video.Field]bool)
	for _, name := range strings.Split(list, ",") {
		f := video.Field(strings.ToLower(strings.TrimSpace(name)))
		if f == "" || seen[f] {
			continue
		}
		if !known[f] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields, nil
}

// RecordHeader returns "video_id" followed by fields.
func RecordHeader(fields []video.Field) []string {
	out := make([]string, 0, len(fields)+1)
	out = append(out, "video_id")
	for _, f := range fields {
		out = append(out, string(f))
	}
	return out
}

func recordRow(rec video.Record, fields []video.Field) []string {
	out := make([]string, 0, len(fields)+1)
	out = append(out, rec.VideoID)
	for _, f := range fields {
		out = append(out, rec.Get(f))
	}
	return out
}

func errorRow(fe video.FetchError, backend string) []string {
	return []string{fe.VideoID, fe.Message, fe.Detail, string(fe.Class), backend}
}

// ErrorPath derives the error CSV path: out.csv -> out_error.csv.
func ErrorPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "_error" + ext
}

// DefaultOutputPath derives the output path from the input path: ids.csv -> ids-out.csv.
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	if ext == "" {
		ext = ".csv"
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + "-out" + ext
}

func writeFile(path string, fn func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := fn(cw); err != nil {
		f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
