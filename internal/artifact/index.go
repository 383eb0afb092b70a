package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// WriteIndex lists every artifact file in dir, sorted, and writes the list
// to dir/outputs_index.txt. The index itself, hidden files (including
// in-flight temporary files) and directories are not listed.
func WriteIndex(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == IndexName || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if err := WriteLines(filepath.Join(dir, IndexName), names); err != nil {
		return nil, err
	}
	return names, nil
}

// Sequence yields strictly increasing disambiguators for artifacts of a tool
// that may run more than once per run. Values are nanosecond timestamps,
// bumped when the clock has not advanced since the previous call.
type Sequence struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewSequence returns a Sequence backed by the wall clock.
func NewSequence() *Sequence {
	return &Sequence{now: time.Now}
}

// Next returns the next disambiguator.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	v := now().UnixNano()
	if v <= s.last {
		v = s.last + 1
	}
	s.last = v
	return v
}
