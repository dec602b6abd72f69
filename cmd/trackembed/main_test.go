package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ehrlich-b/trackembed/internal/pipeline"
)

func TestParseMusicID(t *testing.T) {
	if id, err := parseMusicID("42"); err != nil || id != 42 {
		t.Fatalf("parseMusicID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "abc", "0", "-3", "1.5"} {
		if _, err := parseMusicID(bad); err == nil {
			t.Errorf("parseMusicID(%q) should fail", bad)
		}
	}
}

func TestSimilarRejectsBadCount(t *testing.T) {
	for _, n := range []string{"0", "-1"} {
		cmd := similarCmd()
		cmd.SetArgs([]string{"5", "-n", n})
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "-n must be at least 1") {
			t.Errorf("similar -n %s: got %v, want a usage error", n, err)
		}
	}
}

func TestAudioUsage(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "album"), 0755)
	os.WriteFile(filepath.Join(dir, "a.mp3"), make([]byte, 100), 0644)
	os.WriteFile(filepath.Join(dir, "album", "b.FLAC"), make([]byte, 50), 0644)
	os.WriteFile(filepath.Join(dir, "cover.jpg"), make([]byte, 1000), 0644)

	files, size, err := audioUsage(dir)
	if err != nil {
		t.Fatal(err)
	}
	if files != 2 || size != 150 {
		t.Fatalf("got %d files, %d bytes; want 2, 150", files, size)
	}

	if _, _, err := audioUsage(filepath.Join(dir, "nope")); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func testReport() *pipeline.Report {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := errors.New("extract: audio file not found: storage/x.mp3")
	return &pipeline.Report{
		RunID:     "run-1",
		Model:     "MTT_musicnn",
		Status:    "done",
		Processed: 1200,
		Skipped:   3,
		Failed:    1,
		Failures: []pipeline.Failure{
			{MusicID: 7, Path: "storage/x.mp3", Kind: pipeline.KindMissingFile, Detail: err.Error(), Err: err},
		},
		Started:  start,
		Finished: start.Add(90 * time.Second),
	}
}

func TestPrintReportTable(t *testing.T) {
	var buf bytes.Buffer
	if err := printReport(&buf, testReport(), false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"run run-1 (done)", "1,200", "1m30s", "MissingFile", "storage/x.mp3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printReport(&buf, testReport(), true); err != nil {
		t.Fatal(err)
	}
	var got struct {
		RunID     string `json:"run_id"`
		Processed int    `json:"processed"`
		Failures  []struct {
			MusicID int64  `json:"music_id"`
			Kind    string `json:"kind"`
			Error   string `json:"error"`
		} `json:"failures"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if got.RunID != "run-1" || got.Processed != 1200 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Failures) != 1 || got.Failures[0].MusicID != 7 || got.Failures[0].Kind != "MissingFile" {
		t.Fatalf("failures = %+v", got.Failures)
	}
	if !strings.Contains(got.Failures[0].Error, "not found") {
		t.Fatalf("error text = %q", got.Failures[0].Error)
	}
}
