package index

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yuya-takeyama/strict-dir-sync/internal/checksum"
	"github.com/yuya-takeyama/strict-dir-sync/internal/walker"
	"github.com/yuya-takeyama/strict-dir-sync/internal/worker"
)

// FileRecord is a fingerprinted file
type FileRecord struct {
	Path    string // Absolute path
	RelPath string // Relative path from the tree root
	Size    int64
	ModTime time.Time
	Digest  checksum.Digest
}

// Index maps each distinct digest of a tree to one representative file.
// It is read-only once Build returns.
type Index struct {
	records    map[checksum.Digest]FileRecord
	order      []checksum.Digest
	duplicates int
}

func newIndex(capacity int) *Index {
	return &Index{
		records: make(map[checksum.Digest]FileRecord, capacity),
		order:   make([]checksum.Digest, 0, capacity),
	}
}

// add keeps the first record seen for a digest
func (idx *Index) add(r FileRecord) {
	if _, exists := idx.records[r.Digest]; exists {
		idx.duplicates++
		return
	}
	idx.records[r.Digest] = r
	idx.order = append(idx.order, r.Digest)
}

// Len returns the number of distinct digests
func (idx *Index) Len() int {
	return len(idx.order)
}

// Get returns the representative for d
func (idx *Index) Get(d checksum.Digest) (FileRecord, bool) {
	r, ok := idx.records[d]
	return r, ok
}

// Contains reports whether any file in the tree has digest d
func (idx *Index) Contains(d checksum.Digest) bool {
	_, ok := idx.records[d]
	return ok
}

// Records returns the representatives in insertion order
func (idx *Index) Records() []FileRecord {
	records := make([]FileRecord, len(idx.order))
	for i, d := range idx.order {
		records[i] = idx.records[d]
	}
	return records
}

// Duplicates returns how many files collapsed onto an already indexed digest
func (idx *Index) Duplicates() int {
	return idx.duplicates
}

// Fingerprinter computes the digest of a file
type Fingerprinter interface {
	Digest(path string) (checksum.Digest, error)
}

// BuildOptions configures Build
type BuildOptions struct {
	Concurrency int

	// Offset and Total place this tree's progress within a larger phase
	Offset int
	Total  int

	OnProgress func(current, total int)
	OnError    func(err error)
}

type outcome struct {
	digest checksum.Digest
	err    error
}

// Build fingerprints files and indexes them by digest.
//
// Files that cannot be read are left out of the index and returned as
// failures. On cancellation the partial index is discarded and the
// context error is returned.
func Build(ctx context.Context, fp Fingerprinter, files []walker.FileInfo, opts BuildOptions) (*Index, []error, error) {
	outcomes := make([]outcome, len(files))
	total := opts.Total
	if total < opts.Offset+len(files) {
		total = opts.Offset + len(files)
	}

	var mu sync.Mutex

	pool := worker.NewPool(opts.Concurrency)
	err := pool.Run(ctx, len(files), func(ctx context.Context, i int) {
		d, err := fp.Digest(files[i].Path)
		if err != nil {
			var rf *checksum.ReadFailure
			if !errors.As(err, &rf) {
				err = &checksum.ReadFailure{Path: files[i].Path, Err: err}
			}
			if opts.OnError != nil {
				mu.Lock()
				opts.OnError(err)
				mu.Unlock()
			}
		}
		outcomes[i] = outcome{digest: d, err: err}
	}, func(completed int) {
		if opts.OnProgress != nil {
			opts.OnProgress(opts.Offset+completed, total)
		}
	})
	if err != nil {
		return nil, nil, err
	}

	// Fold in walk order so duplicates resolve the same way at any concurrency
	idx := newIndex(len(files))
	var failures []error
	for i, f := range files {
		if outcomes[i].err != nil {
			failures = append(failures, outcomes[i].err)
			continue
		}
		idx.add(FileRecord{
			Path:    f.Path,
			RelPath: f.RelPath,
			Size:    f.Size,
			ModTime: f.ModTime,
			Digest:  outcomes[i].digest,
		})
	}

	return idx, failures, nil
}
