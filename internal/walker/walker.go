package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// ErrInvalidRoot is returned when a root is not a readable directory
var ErrInvalidRoot = errors.New("invalid root")

// FileInfo represents a regular file found under a root
type FileInfo struct {
	Path    string // Absolute path
	RelPath string // Relative path from root
	Size    int64
	ModTime time.Time
	Mode    os.FileMode
}

// ErrorHandler receives entries that could not be read during a walk.
// The walk continues after the handler returns.
type ErrorHandler func(path string, err error)

// Option configures a Walker
type Option func(*Walker)

// WithErrorHandler sets the handler for unreadable directories and broken links
func WithErrorHandler(h ErrorHandler) Option {
	return func(w *Walker) {
		w.onError = h
	}
}

// Walker walks regular files under a root with exclude pattern support
type Walker struct {
	fs       afero.Fs
	root     string
	excludes []string
	onError  ErrorHandler
}

// NewWalker creates a new file walker.
// The root is validated here so an invalid root fails before any traversal.
func NewWalker(fs afero.Fs, root string, excludes []string, opts ...Option) (*Walker, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: get absolute path: %w", ErrInvalidRoot, err)
	}

	if err := ValidateRoot(fs, absRoot); err != nil {
		return nil, err
	}

	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(strings.TrimSuffix(pattern, "/")) {
			return nil, fmt.Errorf("invalid exclude pattern: %q", pattern)
		}
	}

	w := &Walker{
		fs:       fs,
		root:     absRoot,
		excludes: excludes,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ValidateRoot checks that root exists, is a directory and can be opened
func ValidateRoot(fs afero.Fs, root string) error {
	info, err := fs.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: stat root: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: not a directory: %s", ErrInvalidRoot, root)
	}

	dir, err := fs.Open(root)
	if err != nil {
		return fmt.Errorf("%w: open root: %w", ErrInvalidRoot, err)
	}
	if _, err := dir.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		dir.Close()
		return fmt.Errorf("%w: read root: %w", ErrInvalidRoot, err)
	}
	return dir.Close()
}

// Root returns the absolute root of the walk
func (w *Walker) Root() string {
	return w.root
}

// Walk walks the file tree and returns matching regular files in lexical order.
// Every call re-reads the filesystem.
func (w *Walker) Walk(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo

	if err := w.walkDir(ctx, w.root, &files); err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	return files, nil
}

func (w *Walker) walkDir(ctx context.Context, dir string, files *[]FileInfo) error {
	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		w.report(dir, err)
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, entry.Name())

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}

		// Convert to forward slashes for pattern matching
		relPathForward := filepath.ToSlash(relPath)

		if entry.IsDir() {
			if w.isExcludedDir(relPathForward) {
				continue
			}
			if err := w.walkDir(ctx, path, files); err != nil {
				return err
			}
			continue
		}

		info := entry
		if entry.Mode()&os.ModeSymlink != 0 {
			// Links to regular files are listed; links to directories are not descended
			target, err := w.fs.Stat(path)
			if err != nil {
				w.report(path, err)
				continue
			}
			info = target
		}

		if !info.Mode().IsRegular() {
			continue
		}

		if w.isExcluded(relPathForward) {
			continue
		}

		*files = append(*files, FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	}

	return nil
}

func (w *Walker) report(path string, err error) {
	if w.onError != nil {
		w.onError(path, err)
	}
}

// isExcluded checks if a path matches any exclude pattern
func (w *Walker) isExcluded(path string) bool {
	for _, pattern := range w.excludes {
		// Handle directory patterns (ending with /)
		if strings.HasSuffix(pattern, "/") {
			dirPattern := strings.TrimSuffix(pattern, "/")
			// Check if any parent directory matches
			parts := strings.Split(path, "/")
			for i := 1; i < len(parts); i++ {
				subPath := strings.Join(parts[:i], "/")
				if matched, _ := doublestar.Match(dirPattern, subPath); matched {
					return true
				}
			}
		} else {
			if matched, _ := doublestar.Match(pattern, path); matched {
				return true
			}
		}
	}
	return false
}

// isExcludedDir reports whether a whole directory can be pruned
func (w *Walker) isExcludedDir(path string) bool {
	for _, pattern := range w.excludes {
		if !strings.HasSuffix(pattern, "/") {
			continue
		}
		if matched, _ := doublestar.Match(strings.TrimSuffix(pattern, "/"), path); matched {
			return true
		}
	}
	return false
}
