package planner

import (
	"time"

	"github.com/yuya-takeyama/strict-dir-sync/internal/checksum"
	"github.com/yuya-takeyama/strict-dir-sync/internal/index"
)

// MissingFileList holds the source files whose content is absent from the target,
// in source index order.
type MissingFileList []index.FileRecord

// TotalSize returns the combined size of the missing files
func (m MissingFileList) TotalSize() int64 {
	var total int64
	for _, r := range m {
		total += r.Size
	}
	return total
}

// Paths returns the absolute source paths in list order
func (m MissingFileList) Paths() []string {
	paths := make([]string, len(m))
	for i, r := range m {
		paths[i] = r.Path
	}
	return paths
}

// Item is a single planned copy from the source tree into the target tree
type Item struct {
	SourcePath string
	RelPath    string
	DestPath   string
	Size       int64
	ModTime    time.Time

	// Digest is the content seen at scan time; zero when the item was not fingerprinted
	Digest checksum.Digest

	// Err is set when the item cannot be copied, e.g. its source lies outside the source root
	Err error
}
