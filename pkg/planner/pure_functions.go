package planner

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yuya-takeyama/strict-dir-sync/internal/index"
)

// ErrOutsideRoot is set on an Item whose source is not under the source root
var ErrOutsideRoot = errors.New("path is outside the source root")

// Reconcile returns every source representative whose digest does not occur
// anywhere in target. Names and locations play no part in the comparison.
func Reconcile(source, target *index.Index) MissingFileList {
	missing := MissingFileList{}
	for _, r := range source.Records() {
		if !target.Contains(r.Digest) {
			missing = append(missing, r)
		}
	}
	return missing
}

// PlanReplication maps each missing file to its destination under targetRoot,
// keeping its path relative to sourceRoot.
func PlanReplication(missing MissingFileList, sourceRoot, targetRoot string) ([]Item, error) {
	absSource, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("get absolute source root: %w", err)
	}
	absTarget, err := filepath.Abs(targetRoot)
	if err != nil {
		return nil, fmt.Errorf("get absolute target root: %w", err)
	}

	items := make([]Item, 0, len(missing))
	for _, r := range missing {
		item := Item{
			SourcePath: r.Path,
			Size:       r.Size,
			ModTime:    r.ModTime,
			Digest:     r.Digest,
		}

		relPath, err := RelativeTo(absSource, r.Path)
		if err != nil {
			item.Err = err
		} else {
			item.RelPath = relPath
			item.DestPath = filepath.Join(absTarget, relPath)
		}

		items = append(items, item)
	}

	return items, nil
}

// RelativeTo returns path relative to root, failing when path is not under root
func RelativeTo(root, path string) (string, error) {
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrOutsideRoot, path, err)
	}
	if relPath == "." || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return relPath, nil
}
