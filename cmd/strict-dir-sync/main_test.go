package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yuya-takeyama/strict-dir-sync/internal/checksum"
	"github.com/yuya-takeyama/strict-dir-sync/internal/index"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

func TestBuildPlanResult(t *testing.T) {
	result := &session.ScanResult{
		RunID:       "run-1",
		SourceRoot:  "/S",
		TargetRoot:  "/T",
		SourceFiles: 3,
		TargetFiles: 1,
		Missing: planner.MissingFileList{
			{Path: "/S/b.txt", RelPath: "b.txt", Size: 5},
			{Path: "/S/sub/c.txt", RelPath: "sub/c.txt", Size: 7},
		},
		Failures: []error{&checksum.ReadFailure{Path: "/S/locked", Err: os.ErrPermission}},
	}

	plan, err := buildPlanResult(result)
	if err != nil {
		t.Fatal(err)
	}

	want := PlanSummary{Missing: 2, SourceFiles: 3, TargetFiles: 1, ReadFailures: 1}
	if plan.Summary != want {
		t.Errorf("Summary = %+v, want %+v", plan.Summary, want)
	}
	if len(plan.Files) != 2 {
		t.Fatalf("Files = %+v", plan.Files)
	}
	if got := plan.Files[1]; got.Source != "/S/sub/c.txt" || got.Target != filepath.Join("/T", "sub", "c.txt") || got.Size != 7 {
		t.Errorf("Files[1] = %+v", got)
	}
}

func TestBuildPlanResultEmpty(t *testing.T) {
	plan, err := buildPlanResult(&session.ScanResult{SourceRoot: "/S", TargetRoot: "/T", Missing: planner.MissingFileList{}})
	if err != nil {
		t.Fatal(err)
	}

	data, err := marshalJSON(plan)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"files": []`) {
		t.Errorf("empty plan does not serialize files as an array:\n%s", data)
	}
}

func TestBuildSyncResult(t *testing.T) {
	report := &executor.Report{
		Results: []executor.Result{
			{Item: planner.Item{SourcePath: "/S/a", DestPath: "/T/a"}, Outcome: executor.OutcomeCopied},
			{Item: planner.Item{SourcePath: "/S/b", DestPath: "/T/b"}, Outcome: executor.OutcomeSkippedExisting},
			{Item: planner.Item{SourcePath: "/S/c", DestPath: "/T/c"}, Outcome: executor.OutcomeFailed, Error: errors.New("disk full")},
		},
		Copied:  1,
		Skipped: 1,
		Failed:  1,
	}

	got := buildSyncResult("run-1", report)

	if got.RunID != "run-1" {
		t.Errorf("RunID = %q", got.RunID)
	}
	if got.Summary != (ResultSummary{Copied: 1, Skipped: 1, Failed: 1}) {
		t.Errorf("Summary = %+v", got.Summary)
	}
	if len(got.Files) != 2 || got.Files[0].Action != "copied" || got.Files[1].Action != "skipped" {
		t.Errorf("Files = %+v", got.Files)
	}
	if len(got.Errors) != 1 || got.Errors[0].Source != "/S/c" || got.Errors[0].Error != "disk full" {
		t.Errorf("Errors = %+v", got.Errors)
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	want := buildSyncResult("run-1", &executor.Report{})

	if err := writeJSON(path, want); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got SyncResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-1" || got.Files == nil || got.Errors == nil {
		t.Errorf("read back %+v", got)
	}
}

func request() session.Request {
	return session.Request{
		SourceRoot: "/S",
		TargetRoot: "/T",
		Missing:    planner.MissingFileList{index.FileRecord{Path: "/S/a", Size: 2048}},
	}
}

func TestPromptGate(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			gate := newPromptGate(strings.NewReader(tt.input), &out, 0)

			got, err := gate.Confirm(context.Background(), request())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "1 files (2.0 KB) will be copied from /S to /T") {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}

func TestPromptGateIgnoresEarlyAnswers(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := []time.Time{start, start.Add(time.Second), start.Add(6 * time.Second)}

	var out bytes.Buffer
	gate := newPromptGate(strings.NewReader("n\ny\n"), &out, 5*time.Second)
	gate.now = func() time.Time {
		now := clock[0]
		if len(clock) > 1 {
			clock = clock[1:]
		}
		return now
	}

	got, err := gate.Confirm(context.Background(), request())
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("answer given after the delay was not accepted")
	}
	if !strings.Contains(out.String(), "Answer again in 4s") {
		t.Errorf("prompt = %q", out.String())
	}
}

func TestPromptGateReused(t *testing.T) {
	var out bytes.Buffer
	gate := newPromptGate(strings.NewReader("y\nn\n"), &out, 0)

	for i, want := range []bool{true, false, false} {
		got, err := gate.Confirm(context.Background(), request())
		if err != nil {
			t.Fatalf("Confirm() #%d error = %v", i, err)
		}
		if got != want {
			t.Errorf("Confirm() #%d = %v, want %v", i, got, want)
		}
	}
}

func TestPromptGateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A reader that never returns keeps the prompt waiting
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	var out bytes.Buffer
	_, err = newPromptGate(r, &out, 0).Confirm(ctx, request())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Confirm() error = %v, want context.Canceled", err)
	}
}
