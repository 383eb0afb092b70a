package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Section separators inside a tool artifact.
const (
	StderrSeparator = "----- stderr -----"
	ErrorSeparator  = "----- error -----"
)

// filePerm is the permission of written artifacts.
const filePerm = 0o644

// WriteFile writes data to path atomically: the content goes to a hidden
// temporary file in the same directory which is then renamed over path.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod artifact %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close artifact %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename artifact %s: %w", path, err)
	}
	return nil
}

// WriteLines writes lines newline-terminated. An empty slice produces an
// empty file.
func WriteLines(path string, lines []string) error {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return WriteFile(path, []byte(sb.String()))
}

// ToolOutput is the captured output of one tool invocation.
type ToolOutput struct {
	Stdout []byte
	Stderr []byte

	// Diagnostic describes an execution failure. Empty on success.
	Diagnostic string
}

// Bytes renders the artifact content: stdout, then the stderr section if
// stderr is non-empty, then the error section if a diagnostic is present.
func (o ToolOutput) Bytes() []byte {
	var b []byte
	b = append(b, o.Stdout...)

	if len(o.Stderr) > 0 {
		b = ensureNewline(b)
		b = append(b, StderrSeparator...)
		b = append(b, '\n')
		b = append(b, o.Stderr...)
	}
	if o.Diagnostic != "" {
		b = ensureNewline(b)
		b = append(b, ErrorSeparator...)
		b = append(b, '\n')
		b = append(b, o.Diagnostic...)
		b = append(b, '\n')
	}
	return b
}

func ensureNewline(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] != '\n' {
		return append(b, '\n')
	}
	return b
}

// isSeparator reports whether line starts a diagnostic section.
func isSeparator(line string) bool {
	return line == StderrSeparator || line == ErrorSeparator
}

// scanLines calls fn for every trimmed, non-empty line of the primary
// section of r. fn returns false to stop early.
func scanLines(r io.Reader, fn func(string) bool) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if isSeparator(line) {
			return nil
		}
		if line == "" {
			continue
		}
		if !fn(line) {
			return nil
		}
	}
	return s.Err()
}

// ReadLines returns the trimmed, non-empty lines of the primary section of
// the artifact at path.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // artifact paths are built by the pipeline
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	err = scanLines(f, func(l string) bool {
		lines = append(lines, l)
		return true
	})
	return lines, err
}

// FirstLine returns the first non-blank line of the primary section.
// ok is false when the artifact has no such line.
func FirstLine(path string) (line string, ok bool, err error) {
	f, err := os.Open(path) //nolint:gosec // artifact paths are built by the pipeline
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	err = scanLines(f, func(l string) bool {
		line, ok = l, true
		return false
	})
	return line, ok, err
}

// Usable reports whether the artifact at path exists and has at least one
// non-blank line in its primary section.
func Usable(path string) bool {
	_, ok, err := FirstLine(path)
	return err == nil && ok
}

// Exists reports whether a regular file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// ErrNotRegular is returned when an artifact path names a directory.
var ErrNotRegular = errors.New("artifact is not a regular file")
