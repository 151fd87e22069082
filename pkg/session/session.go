package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/yuya-takeyama/strict-dir-sync/internal/checksum"
	"github.com/yuya-takeyama/strict-dir-sync/internal/index"
	"github.com/yuya-takeyama/strict-dir-sync/internal/walker"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/logger"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/manifest"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
)

var (
	// ErrConcurrentOperation is returned when a scan or copy is already running
	ErrConcurrentOperation = errors.New("another operation is already running")
	ErrInvalidRoot         = walker.ErrInvalidRoot
	ErrNoScan              = errors.New("no completed scan")
	ErrNotConfirmed        = errors.New("replication not confirmed")
)

// ScanResult is the outcome of one scan. It is never modified after the scan completes.
type ScanResult struct {
	RunID      string
	SourceRoot string
	TargetRoot string

	// Source and Target are nil when the result was loaded from a manifest
	Source *index.Index
	Target *index.Index

	SourceFiles int
	TargetFiles int
	Missing     planner.MissingFileList

	// Failures holds a *checksum.ReadFailure for every file that was skipped
	Failures []error

	ManifestPath string
	ManifestErr  error

	StartedAt time.Time
	Duration  time.Duration
}

// Session runs scans and copies between a source and a target tree.
// Only one operation runs at a time; a second one is rejected.
type Session struct {
	fs              afero.Fs
	observer        Observer
	logger          logger.Logger
	concurrency     int
	copyConcurrency int
	excludes        []string

	busy atomic.Bool

	mu     sync.RWMutex
	result *ScanResult
}

func New(fs afero.Fs, opts ...Option) *Session {
	s := &Session{
		fs:       fs,
		observer: NopObserver{},
		logger:   &logger.NullLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Busy reports whether an operation is running
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Result returns the last completed scan, or nil
func (s *Session) Result() *ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Session) acquire() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrConcurrentOperation
	}
	return nil
}

func (s *Session) release() {
	s.busy.Store(false)
}

func (s *Session) install(result *ScanResult) {
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
}

// Scan fingerprints both trees, computes the missing list and writes the
// manifest at the source root.
func (s *Session) Scan(ctx context.Context, sourceRoot, targetRoot string) (*ScanResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()
	return s.scan(ctx, sourceRoot, targetRoot)
}

// StartScan runs Scan on its own goroutine. A busy session is rejected
// before the goroutine starts.
func (s *Session) StartScan(ctx context.Context, sourceRoot, targetRoot string) (*Task[*ScanResult], error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	return start(func() (*ScanResult, error) {
		defer s.release()
		return s.scan(ctx, sourceRoot, targetRoot)
	}), nil
}

func (s *Session) scan(ctx context.Context, sourceRoot, targetRoot string) (*ScanResult, error) {
	startedAt := time.Now()
	result := &ScanResult{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
	}

	onWalkError := func(path string, err error) {
		failure := &checksum.ReadFailure{Path: path, Err: err}
		result.Failures = append(result.Failures, failure)
		s.logger.Error(string(PhaseWalk), path, err)
		s.observer.FileError(PhaseWalk, failure)
	}

	// The manifest from a previous run, and temp files an interrupted write left
	// behind, are not part of the source tree
	sourceExcludes := append([]string{manifest.FileName, manifest.TempPattern}, s.excludes...)
	sourceWalker, err := walker.NewWalker(s.fs, sourceRoot, sourceExcludes, walker.WithErrorHandler(onWalkError))
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	targetWalker, err := walker.NewWalker(s.fs, targetRoot, s.excludes, walker.WithErrorHandler(onWalkError))
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	if err := checkDistinct(sourceWalker.Root(), targetWalker.Root()); err != nil {
		return nil, err
	}
	result.SourceRoot = sourceWalker.Root()
	result.TargetRoot = targetWalker.Root()

	sourceFiles, err := sourceWalker.Walk(ctx)
	if err != nil {
		return nil, err
	}
	targetFiles, err := targetWalker.Walk(ctx)
	if err != nil {
		return nil, err
	}
	result.SourceFiles = len(sourceFiles)
	result.TargetFiles = len(targetFiles)

	total := len(sourceFiles) + len(targetFiles)
	s.logger.PhaseStart(string(PhaseHash), total)
	s.observer.PhaseStart(PhaseHash, total)

	opts := index.BuildOptions{
		Concurrency: s.concurrency,
		Total:       total,
		OnProgress: func(current, total int) {
			s.observer.Progress(PhaseHash, current, total)
		},
		OnError: func(err error) {
			var rf *checksum.ReadFailure
			path := ""
			if errors.As(err, &rf) {
				path = rf.Path
			}
			s.logger.Error(string(PhaseHash), path, err)
			s.observer.FileError(PhaseHash, err)
		},
	}

	fp := checksum.New(s.fs)
	sourceIndex, failures, err := index.Build(ctx, fp, sourceFiles, opts)
	if err != nil {
		return nil, err
	}
	result.Failures = append(result.Failures, failures...)

	opts.Offset = len(sourceFiles)
	targetIndex, failures, err := index.Build(ctx, fp, targetFiles, opts)
	if err != nil {
		return nil, err
	}
	result.Failures = append(result.Failures, failures...)
	s.logger.PhaseComplete(string(PhaseHash), total)

	result.Source = sourceIndex
	result.Target = targetIndex
	result.Missing = planner.Reconcile(sourceIndex, targetIndex)

	result.ManifestPath = manifest.PathFor(result.SourceRoot)
	if err := manifest.Write(s.fs, result.Missing, result.ManifestPath); err != nil {
		result.ManifestErr = err
		s.logger.Error(string(PhaseManifest), result.ManifestPath, err)
		s.observer.FileError(PhaseManifest, err)
	}

	result.Duration = time.Since(startedAt)
	s.install(result)
	s.observer.ScanComplete(result)
	return result, nil
}

// Replicate copies the missing files of the last scan into the target once
// gate confirms. Nothing is touched when the gate declines.
func (s *Session) Replicate(ctx context.Context, gate Gate) (*executor.Report, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()
	return s.replicate(ctx, gate)
}

// StartReplicate runs Replicate on its own goroutine
func (s *Session) StartReplicate(ctx context.Context, gate Gate) (*Task[*executor.Report], error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	return start(func() (*executor.Report, error) {
		defer s.release()
		return s.replicate(ctx, gate)
	}), nil
}

func (s *Session) replicate(ctx context.Context, gate Gate) (*executor.Report, error) {
	result := s.Result()
	if result == nil {
		return nil, ErrNoScan
	}
	if gate == nil {
		gate = AlwaysConfirm
	}

	ok, err := gate.Confirm(ctx, Request{
		SourceRoot: result.SourceRoot,
		TargetRoot: result.TargetRoot,
		Missing:    result.Missing,
	})
	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	if !ok {
		return nil, ErrNotConfirmed
	}

	items, err := planner.PlanReplication(result.Missing, result.SourceRoot, result.TargetRoot)
	if err != nil {
		return nil, err
	}

	s.observer.PhaseStart(PhaseCopy, len(items))
	exec := executor.NewExecutor(s.fs, s.logger, s.copyConcurrency)
	report := exec.Execute(ctx, items, func(current, total int) {
		s.observer.Progress(PhaseCopy, current, total)
	})
	for _, failure := range report.Failures() {
		s.observer.FileError(PhaseCopy, failure)
	}
	s.observer.ReplicationComplete(report)

	return report, ctx.Err()
}

// LoadManifest installs the files listed in an existing manifest as the
// missing list, so Replicate can run without scanning again.
// Listed files that can no longer be read are recorded as failures.
func (s *Session) LoadManifest(sourceRoot, targetRoot, manifestPath string) (*ScanResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	startedAt := time.Now()
	absSource, err := validateRoot(s.fs, sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	absTarget, err := validateRoot(s.fs, targetRoot)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	if err := checkDistinct(absSource, absTarget); err != nil {
		return nil, err
	}
	if manifestPath == "" {
		manifestPath = manifest.PathFor(absSource)
	}

	paths, err := manifest.Read(s.fs, manifestPath)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		RunID:        uuid.NewString(),
		SourceRoot:   absSource,
		TargetRoot:   absTarget,
		Missing:      planner.MissingFileList{},
		ManifestPath: manifestPath,
		StartedAt:    startedAt,
	}
	for _, path := range paths {
		info, err := s.fs.Stat(path)
		if err == nil && !info.Mode().IsRegular() {
			err = errors.New("not a regular file")
		}
		if err != nil {
			failure := &checksum.ReadFailure{Path: path, Err: err}
			result.Failures = append(result.Failures, failure)
			s.observer.FileError(PhaseManifest, failure)
			continue
		}

		// Paths outside the source root are kept and fail when planned
		relPath, _ := planner.RelativeTo(absSource, path)
		result.Missing = append(result.Missing, index.FileRecord{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	result.SourceFiles = len(paths)
	result.Duration = time.Since(startedAt)

	s.install(result)
	s.observer.ScanComplete(result)
	return result, nil
}

func validateRoot(fs afero.Fs, root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: get absolute path: %w", ErrInvalidRoot, err)
	}
	if err := walker.ValidateRoot(fs, abs); err != nil {
		return "", err
	}
	return abs, nil
}

func checkDistinct(sourceRoot, targetRoot string) error {
	if filepath.Clean(sourceRoot) == filepath.Clean(targetRoot) {
		return fmt.Errorf("%w: source and target are the same directory: %s", ErrInvalidRoot, sourceRoot)
	}
	return nil
}
