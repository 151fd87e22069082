package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
)

// FileName is the manifest written at the root of the source tree
const FileName = "missing_files.txt"

// TempPattern matches the temporary files Write creates next to the manifest
const TempPattern = "." + FileName + ".*"

// ErrUnlistablePath is returned for a path that cannot be written as one manifest line
var ErrUnlistablePath = errors.New("path contains a line break")

// WriteFailure is returned when the manifest could not be written.
// The scan that produced the missing list is still valid.
type WriteFailure struct {
	Path string
	Err  error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("write manifest %s: %v", e.Path, e.Err)
}

func (e *WriteFailure) Unwrap() error {
	return e.Err
}

// PathFor returns the manifest location for a source root
func PathFor(sourceRoot string) string {
	return filepath.Join(sourceRoot, FileName)
}

// Write replaces the manifest at path with one absolute source path per line.
// The new content is written to a temporary file and renamed into place.
// A path containing a line break fails the write and removes any previous
// manifest, since Read could not return it unchanged.
func Write(fs afero.Fs, missing planner.MissingFileList, path string) error {
	for _, r := range missing {
		if strings.ContainsAny(r.Path, "\r\n") {
			err := fmt.Errorf("%w: %q", ErrUnlistablePath, r.Path)
			if rerr := fs.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("remove stale manifest: %w", rerr))
			}
			return &WriteFailure{Path: path, Err: err}
		}
	}

	tmp, err := afero.TempFile(fs, filepath.Dir(path), TempPattern)
	if err != nil {
		return &WriteFailure{Path: path, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, r := range missing {
		if _, err := w.WriteString(r.Path + "\n"); err != nil {
			break
		}
	}
	err = w.Flush()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = fs.Chmod(tmpName, 0644)
	}
	if err == nil {
		err = fs.Rename(tmpName, path)
	}
	if err != nil {
		_ = fs.Remove(tmpName)
		return &WriteFailure{Path: path, Err: err}
	}
	return nil
}

// Read returns the paths listed in a manifest, skipping blank lines
func Read(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return paths, nil
}
