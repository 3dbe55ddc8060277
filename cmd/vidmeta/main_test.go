package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/vidmeta/internal/config"
	"github.com/Sternrassler/vidmeta/internal/csvio"
	"github.com/Sternrassler/vidmeta/pkg/backend"
	"github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/Sternrassler/vidmeta/pkg/video"
)

// fakeBackend titles every id with prefix. Ids starting with "gone" are
// unavailable and "fatal" aborts the job.
type fakeBackend struct {
	prefix string
}

func (fakeBackend) Name() string { return "fake" }
func (fakeBackend) MaxBatch() int { return 10 }
func (fakeBackend) Open(ctx context.Context) error { return nil }
func (fakeBackend) Close() error { return nil }

func (f fakeBackend) Fetch(ctx context.Context, ids []string) ([]video.Outcome, error) {
	out := make([]video.Outcome, 0, len(ids))
	for _, id := range ids {
		if id == "fatal" {
			return nil, backend.Fatal(errors.New("browser crashed"))
		}
		if strings.HasPrefix(id, "gone") {
			out = append(out, video.Failure(video.NewFetchError(id, video.ClassUnavailable, "video unavailable", nil)))
			continue
		}
		rec := video.NewRecord(id)
		rec.Set(video.FieldTitle, f.prefix+"title "+id)
		out = append(out, video.Success(rec))
	}
	return out, nil
}

func factoryOf(b fakeBackend) backend.Factory {
	return func() (backend.Backend, error) { return b, nil }
}

func testSetup(t *testing.T) (*config.Config, map[string]backend.Factory, string) {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit = 0

	factories := map[string]backend.Factory{
		"fake":   factoryOf(fakeBackend{}),
		"api":    factoryOf(fakeBackend{prefix: "api "}),
		"scrape": factoryOf(fakeBackend{prefix: "page "}),
		"broken": func() (backend.Backend, error) { return nil, errors.New("chrome not found") },
	}

	input := writeInput(t, "name,yt_video_id\na,v1\nb,gone1\nc,v2\nd,\n")
	return cfg, factories, input
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	input := filepath.Join(t.TempDir(), "ids.csv")
	if err := os.WriteFile(input, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return input
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRun_WritesReport(t *testing.T) {
	cfg, factories, input := testSetup(t)
	var progress bytes.Buffer

	sum, err := run(context.Background(), options{input: input, backend: "fake"}, cfg, factories, &progress)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(sum.Jobs) != 1 || sum.Jobs[0].Status != jobs.StatusCompleted {
		t.Fatalf("Jobs = %+v, want one completed job", sum.Jobs)
	}
	if sum.Records != 2 || sum.Errors != 1 {
		t.Errorf("records/errors = %d/%d, want 2/1", sum.Records, sum.Errors)
	}

	output := csvio.DefaultOutputPath(input)
	if lines := strings.Count(readFile(t, output), "\n"); lines != 3 {
		t.Errorf("output has %d lines, want 3 (header + 2 rows)", lines)
	}
	if errData := readFile(t, csvio.ErrorPath(output)); !strings.Contains(errData, "gone1,video unavailable") {
		t.Errorf("error output = %q", errData)
	}
}

func TestRun_IncludeFields(t *testing.T) {
	cfg, factories, input := testSetup(t)
	output := filepath.Join(t.TempDir(), "out.csv")

	_, err := run(context.Background(), options{input: input, output: output, backend: "fake", fields: "Title"}, cfg, factories, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(readFile(t, output)), "\n")
	want := []string{"video_id,title", "v1,title v1", "v2,title v2"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("output = %q, want %q", lines, want)
	}
}

func TestRun_FailedJobKeepsPartialOutput(t *testing.T) {
	cfg, factories, _ := testSetup(t)
	cfg.BatchSize = 1
	input := writeInput(t, "yt_video_id\nv1\ngone1\nv2\nfatal\nv3\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	sum, err := run(context.Background(), options{input: input, output: output, backend: "fake"}, cfg, factories, &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() error = nil, want job failure")
	}
	if sum.Jobs[0].Status != jobs.StatusFailed {
		t.Errorf("Status = %s, want failed", sum.Jobs[0].Status)
	}
	if sum.Records != 2 || sum.Errors != 1 {
		t.Errorf("records/errors = %d/%d, want 2/1", sum.Records, sum.Errors)
	}

	data := readFile(t, output)
	for _, row := range []string{"v1,title v1", "v2,title v2"} {
		if !strings.Contains(data, row) {
			t.Errorf("output missing %q: %q", row, data)
		}
	}
	if strings.Contains(data, "v3") {
		t.Errorf("output has rows after the failure: %q", data)
	}
	if errData := readFile(t, csvio.ErrorPath(output)); !strings.Contains(errData, "gone1,video unavailable") {
		t.Errorf("error output = %q", errData)
	}
}

func TestRun_CompareBackends(t *testing.T) {
	cfg, factories, input := testSetup(t)
	output := filepath.Join(t.TempDir(), "out.csv")

	sum, err := run(context.Background(), options{input: input, output: output, backend: "both", fields: "title"}, cfg, factories, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(sum.Jobs) != 2 {
		t.Fatalf("Jobs = %d, want 2", len(sum.Jobs))
	}
	if sum.Records != 4 || sum.Errors != 2 {
		t.Errorf("records/errors = %d/%d, want 4/2", sum.Records, sum.Errors)
	}

	lines := strings.Split(strings.TrimSpace(readFile(t, output)), "\n")
	want := []string{
		"video_id,title,scraped_title",
		"v1,api title v1,page title v1",
		"gone1,Unknown,Unknown",
		"v2,api title v2,page title v2",
	}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("output = %q, want %q", lines, want)
	}

	errData := readFile(t, csvio.ErrorPath(output))
	for _, name := range []string{"api", "scrape"} {
		if !strings.Contains(errData, "gone1,video unavailable,,unavailable,"+name) {
			t.Errorf("error output missing %s failure: %q", name, errData)
		}
	}
}

func TestRun_DryRun(t *testing.T) {
	cfg, factories, input := testSetup(t)

	for _, name := range []string{"FAKE", "both"} {
		t.Run(name, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), "out.csv")
			_, err := run(context.Background(), options{input: input, output: output, backend: name, dryRun: true}, cfg, factories, &bytes.Buffer{})
			if err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if _, err := os.Stat(output); !os.IsNotExist(err) {
				t.Errorf("dry run wrote %s (stat err = %v)", output, err)
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	cfg, factories, input := testSetup(t)

	tests := []struct {
		name string
		opts options
	}{
		{"missing input", options{input: filepath.Join(t.TempDir(), "nope.csv"), backend: "fake"}},
		{"missing column", options{input: input, column: "video", backend: "fake"}},
		{"unknown backend", options{input: input, backend: "ftp"}},
		{"unknown field", options{input: input, backend: "fake", fields: "title,likes"}},
		{"backend init failure", options{input: input, backend: "broken", dryRun: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(context.Background(), tt.opts, cfg, factories, &bytes.Buffer{}); err == nil {
				t.Error("run() error = nil, want error")
			}
		})
	}
}
