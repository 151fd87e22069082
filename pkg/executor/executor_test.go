package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/yuya-takeyama/strict-dir-sync/internal/checksum"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
)

// mockLogger records executor events
type mockLogger struct {
	mu        sync.Mutex
	processed []string
	errors    []string
	started   int
	completed int
}

func (m *mockLogger) PhaseStart(phase string, totalItems int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = totalItems
}

func (m *mockLogger) ItemProcessed(phase string, item string, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, action+":"+item)
}

func (m *mockLogger) PhaseComplete(phase string, processedItems int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = processedItems
}

func (m *mockLogger) Error(phase string, item string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, item)
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func digestOf(t *testing.T, content string) checksum.Digest {
	t.Helper()
	d, err := checksum.DigestReader(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestExecute(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/b.txt", "world")
	writeFile(t, fs, "/src/deep/nested/c.txt", "nested")
	if err := fs.MkdirAll("/dst", 0755); err != nil {
		t.Fatal(err)
	}

	items := []planner.Item{
		{SourcePath: "/src/b.txt", DestPath: "/dst/b.txt", Size: 5, Digest: digestOf(t, "world")},
		{SourcePath: "/src/deep/nested/c.txt", DestPath: "/dst/deep/nested/c.txt", Size: 6},
	}

	log := &mockLogger{}
	var progress []int
	report := NewExecutor(fs, log, 1).Execute(context.Background(), items, func(current, total int) {
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		progress = append(progress, current)
	})

	if report.Copied != 2 || report.Skipped != 0 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.BytesCopied != 11 {
		t.Errorf("BytesCopied = %d, want 11", report.BytesCopied)
	}
	for path, want := range map[string]string{"/dst/b.txt": "world", "/dst/deep/nested/c.txt": "nested"} {
		got, err := afero.ReadFile(fs, path)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", path, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	if len(progress) != 2 || progress[0] != 1 || progress[1] != 2 {
		t.Errorf("progress = %v", progress)
	}
	if log.started != 2 || log.completed != 2 || len(log.processed) != 2 {
		t.Errorf("logger = %+v", log)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "a")
	writeFile(t, fs, "/src/sub/b.txt", "b")

	items := []planner.Item{
		{SourcePath: "/src/a.txt", DestPath: "/dst/a.txt"},
		{SourcePath: "/src/sub/b.txt", DestPath: "/dst/sub/b.txt"},
	}
	exec := NewExecutor(fs, nil, 2)

	first := exec.Execute(context.Background(), items, nil)
	if first.Copied != 2 {
		t.Fatalf("first run = %+v", first)
	}

	second := exec.Execute(context.Background(), items, nil)
	if second.Copied != 0 || second.Skipped != 2 || second.Failed != 0 {
		t.Errorf("second run = %+v", second)
	}
	for i, r := range second.Results {
		if r.Outcome != OutcomeSkippedExisting {
			t.Errorf("Results[%d].Outcome = %s", i, r.Outcome)
		}
	}
}

func TestExecuteNeverOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "new content")
	writeFile(t, fs, "/dst/a.txt", "existing")

	report := NewExecutor(fs, nil, 1).Execute(context.Background(), []planner.Item{
		{SourcePath: "/src/a.txt", DestPath: "/dst/a.txt"},
	}, nil)

	if report.Skipped != 1 {
		t.Errorf("report = %+v", report)
	}
	got, _ := afero.ReadFile(fs, "/dst/a.txt")
	if string(got) != "existing" {
		t.Errorf("destination overwritten: %q", got)
	}
}

func TestExecuteFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/ok.txt", "ok")
	writeFile(t, fs, "/src/changed.txt", "changed after scan")

	outside := errors.New("outside root")
	items := []planner.Item{
		{SourcePath: "/src/missing.txt", DestPath: "/dst/missing.txt"},
		{SourcePath: "/elsewhere/x.txt", Err: outside},
		{SourcePath: "/src/changed.txt", DestPath: "/dst/changed.txt", Digest: digestOf(t, "original")},
		{SourcePath: "/src/ok.txt", DestPath: "/dst/ok.txt"},
	}

	log := &mockLogger{}
	report := NewExecutor(fs, log, 1).Execute(context.Background(), items, nil)

	if report.Copied != 1 || report.Failed != 3 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Failures()) != 3 || len(log.errors) != 3 {
		t.Errorf("failures = %v, logged = %v", report.Failures(), log.errors)
	}

	var cf *CopyFailure
	if !errors.As(report.Results[0].Error, &cf) || !errors.Is(cf, os.ErrNotExist) {
		t.Errorf("Results[0].Error = %v", report.Results[0].Error)
	}
	if !errors.Is(report.Results[1].Error, outside) {
		t.Errorf("Results[1].Error = %v", report.Results[1].Error)
	}
	if !errors.Is(report.Results[2].Error, ErrSourceChanged) {
		t.Errorf("Results[2].Error = %v", report.Results[2].Error)
	}
	if report.Results[3].Outcome != OutcomeCopied {
		t.Errorf("Results[3] = %+v", report.Results[3])
	}

	// A failed copy leaves nothing behind, so the next run retries it
	if exists, _ := afero.Exists(fs, "/dst/changed.txt"); exists {
		t.Error("partial destination left after failure")
	}
	if exists, _ := afero.Exists(fs, "/dst/missing.txt"); exists {
		t.Error("destination created for missing source")
	}
}

// failingWriteFs creates files whose writes fail
type failingWriteFs struct {
	afero.Fs
}

func (f *failingWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &failingWriteFile{File: file}, nil
}

type failingWriteFile struct {
	afero.File
}

func (f *failingWriteFile) Write(p []byte) (int, error) {
	return 0, errors.New("no space left on device")
}

func TestExecuteRemovesPartialFile(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFile(t, base, "/src/a.txt", "content")

	report := NewExecutor(&failingWriteFs{Fs: base}, nil, 1).Execute(context.Background(), []planner.Item{
		{SourcePath: "/src/a.txt", DestPath: "/dst/a.txt"},
	}, nil)

	if report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if exists, _ := afero.Exists(base, "/dst/a.txt"); exists {
		t.Error("partial destination left after write failure")
	}
}

func TestExecuteCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "a")
	writeFile(t, fs, "/src/b.txt", "b")
	writeFile(t, fs, "/src/c.txt", "c")

	items := []planner.Item{
		{SourcePath: "/src/a.txt", DestPath: "/dst/a.txt"},
		{SourcePath: "/src/b.txt", DestPath: "/dst/b.txt"},
		{SourcePath: "/src/c.txt", DestPath: "/dst/c.txt"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	report := NewExecutor(fs, nil, 1).Execute(ctx, items, func(current, total int) {
		if current == 1 {
			cancel()
		}
	})

	if report.Copied != 1 || report.Failed != 2 {
		t.Fatalf("report = %+v", report)
	}
	for _, r := range report.Results[1:] {
		if !errors.Is(r.Error, context.Canceled) {
			t.Errorf("%s: error = %v, want context.Canceled", r.Item.SourcePath, r.Error)
		}
	}
	if exists, _ := afero.Exists(fs, "/dst/b.txt"); exists {
		t.Error("item copied after cancellation")
	}
}

func TestExecutePreservesMetadata(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	src := filepath.Join(srcDir, "script.sh")
	if err := os.WriteFile(src, []byte("#!/bin/sh\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(src, 0751); err != nil {
		t.Fatal(err)
	}
	atime := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	mtime := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(src, atime, mtime); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dstDir, "bin", "script.sh")
	report := NewExecutor(afero.NewOsFs(), nil, 1).Execute(context.Background(), []planner.Item{
		{SourcePath: src, DestPath: dst},
	}, nil)
	if report.Copied != 1 {
		t.Fatalf("report = %+v, failures = %v", report, report.Failures())
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0751 {
		t.Errorf("mode = %v, want 0751", info.Mode().Perm())
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}

	dirInfo, err := os.Stat(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if !dirInfo.IsDir() {
		t.Error("destination directory not created")
	}
}
