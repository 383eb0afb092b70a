package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrSelfMerge is returned when the merge destination is also a source.
var ErrSelfMerge = errors.New("merge destination is one of its sources")

// MergeOption configures Merge.
type MergeOption func(*mergeConfig)

type mergeConfig struct {
	transform func(string) string
}

// WithTransform rewrites every line before it is deduplicated. Returning an
// empty string drops the line.
func WithTransform(fn func(string) string) MergeOption {
	return func(c *mergeConfig) {
		c.transform = fn
	}
}

// Merge combines the primary sections of sources into dest.
//
// Lines are trimmed, blank lines dropped, and the remaining values
// deduplicated by exact (case-sensitive) match. dest receives the unique
// lines in lexicographic order, one per line, newline-terminated. Sources
// that do not exist are skipped. Merging the same sources twice yields
// byte-identical output.
//
// It returns the number of lines written.
func Merge(sources []string, dest string, opts ...MergeOption) (int, error) {
	cfg := mergeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	cleanDest := filepath.Clean(dest)
	set := make(map[string]struct{})

	for _, src := range sources {
		if filepath.Clean(src) == cleanDest {
			return 0, fmt.Errorf("%w: %s", ErrSelfMerge, dest)
		}

		info, err := os.Stat(src)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("stat merge source %s: %w", src, err)
		}
		if !info.Mode().IsRegular() {
			return 0, fmt.Errorf("%w: %s", ErrNotRegular, src)
		}

		lines, err := ReadLines(src)
		if err != nil {
			return 0, fmt.Errorf("read merge source %s: %w", src, err)
		}
		for _, l := range lines {
			if cfg.transform != nil {
				if l = cfg.transform(l); l == "" {
					continue
				}
			}
			set[l] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)

	if err := WriteLines(dest, out); err != nil {
		return 0, err
	}
	return len(out), nil
}
