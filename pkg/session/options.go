package session

import (
	"github.com/yuya-takeyama/strict-dir-sync/pkg/logger"
)

type Option func(*Session)

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency sets the number of files fingerprinted at once
func WithConcurrency(n int) Option {
	return func(s *Session) {
		s.concurrency = n
	}
}

// WithCopyConcurrency sets the number of files copied at once
func WithCopyConcurrency(n int) Option {
	return func(s *Session) {
		s.copyConcurrency = n
	}
}

// WithExcludes sets doublestar patterns excluded from both trees
func WithExcludes(patterns []string) Option {
	return func(s *Session) {
		s.excludes = append([]string(nil), patterns...)
	}
}
