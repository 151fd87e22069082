package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/yuya-takeyama/strict-dir-sync/internal/checksum"
	"github.com/yuya-takeyama/strict-dir-sync/internal/worker"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/logger"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
)

// Phase is the logger phase name used by the executor
const Phase = "copy"

// ErrSourceChanged is returned when a source no longer has the content seen at scan time
var ErrSourceChanged = errors.New("source content changed since scan")

type Outcome string

const (
	OutcomeCopied          Outcome = "copied"
	OutcomeSkippedExisting Outcome = "skipped"
	OutcomeFailed          Outcome = "failed"
)

// CopyFailure describes a file that could not be replicated
type CopyFailure struct {
	Source string
	Dest   string
	Err    error
}

func (e *CopyFailure) Error() string {
	return fmt.Sprintf("copy %s to %s: %v", e.Source, e.Dest, e.Err)
}

func (e *CopyFailure) Unwrap() error {
	return e.Err
}

type Result struct {
	Item    planner.Item
	Outcome Outcome
	Bytes   int64
	Error   error
}

// Report summarizes an Execute run. Results are in item order.
type Report struct {
	Results     []Result
	Copied      int
	Skipped     int
	Failed      int
	BytesCopied int64
}

// Failures returns the errors of failed results
func (r *Report) Failures() []error {
	var errs []error
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			errs = append(errs, res.Error)
		}
	}
	return errs
}

// ProgressFunc receives a strictly increasing count of finished items
type ProgressFunc func(current, total int)

type Executor struct {
	fs          afero.Fs
	logger      logger.Logger
	concurrency int
}

func NewExecutor(fs afero.Fs, log logger.Logger, concurrency int) *Executor {
	if log == nil {
		log = &logger.NullLogger{}
	}
	return &Executor{
		fs:          fs,
		logger:      log,
		concurrency: concurrency,
	}
}

// Execute copies every item whose destination does not exist yet.
// Existing destinations are never overwritten, so running the same items
// again reports them as skipped.
func (e *Executor) Execute(ctx context.Context, items []planner.Item, onProgress ProgressFunc) *Report {
	results := make([]Result, len(items))
	done := make([]bool, len(items))

	e.logger.PhaseStart(Phase, len(items))

	pool := worker.NewPool(e.concurrency)
	err := pool.Run(ctx, len(items), func(ctx context.Context, i int) {
		results[i] = e.executeItem(items[i])
		done[i] = true

		switch results[i].Outcome {
		case OutcomeCopied:
			e.logger.ItemProcessed(Phase, items[i].SourcePath, "copy")
		case OutcomeSkippedExisting:
			e.logger.ItemProcessed(Phase, items[i].SourcePath, "skip")
		case OutcomeFailed:
			e.logger.Error(Phase, items[i].SourcePath, results[i].Error)
		}
	}, func(completed int) {
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	})

	report := &Report{Results: results}
	for i := range results {
		if !done[i] {
			results[i] = Result{
				Item:    items[i],
				Outcome: OutcomeFailed,
				Error:   &CopyFailure{Source: items[i].SourcePath, Dest: items[i].DestPath, Err: err},
			}
		}

		switch results[i].Outcome {
		case OutcomeCopied:
			report.Copied++
			report.BytesCopied += results[i].Bytes
		case OutcomeSkippedExisting:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	e.logger.PhaseComplete(Phase, report.Copied+report.Skipped+report.Failed)
	return report
}

func (e *Executor) executeItem(item planner.Item) Result {
	result := Result{Item: item}

	fail := func(err error) Result {
		result.Outcome = OutcomeFailed
		result.Error = &CopyFailure{Source: item.SourcePath, Dest: item.DestPath, Err: err}
		return result
	}

	if item.Err != nil {
		return fail(item.Err)
	}

	if err := e.fs.MkdirAll(filepath.Dir(item.DestPath), 0755); err != nil {
		return fail(fmt.Errorf("create directory: %w", err))
	}

	if _, err := e.fs.Stat(item.DestPath); err == nil {
		result.Outcome = OutcomeSkippedExisting
		return result
	} else if !errors.Is(err, os.ErrNotExist) {
		return fail(fmt.Errorf("stat destination: %w", err))
	}

	n, err := e.copyFile(item)
	if errors.Is(err, os.ErrExist) {
		result.Outcome = OutcomeSkippedExisting
		return result
	}
	if err != nil {
		return fail(err)
	}

	result.Outcome = OutcomeCopied
	result.Bytes = n
	return result
}

// copyFile copies content, mode and timestamps. A destination that was created
// but not completed is removed so a later run retries it.
func (e *Executor) copyFile(item planner.Item) (int64, error) {
	src, err := e.fs.Open(item.SourcePath)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	dst, err := e.fs.OpenFile(item.DestPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, err
		}
		return 0, fmt.Errorf("create destination: %w", err)
	}

	tee := checksum.NewTeeReaderWithChecksum(src)
	n, err := io.Copy(dst, tee)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && !item.Digest.IsZero() {
		var got checksum.Digest
		if got, err = tee.Digest(); err == nil && got != item.Digest {
			err = ErrSourceChanged
		}
	}
	if err == nil {
		err = e.preserveMetadata(item.DestPath, info)
	}
	if err != nil {
		if rerr := e.fs.Remove(item.DestPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("remove partial destination: %w", rerr))
		}
		return 0, err
	}

	return n, nil
}

func (e *Executor) preserveMetadata(path string, info os.FileInfo) error {
	if err := e.fs.Chmod(path, info.Mode()); err != nil {
		return fmt.Errorf("preserve mode: %w", err)
	}
	if err := e.fs.Chtimes(path, accessTime(info), info.ModTime()); err != nil {
		return fmt.Errorf("preserve timestamps: %w", err)
	}
	return nil
}
