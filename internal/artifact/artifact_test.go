package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRaw(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func readRaw(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "subfinder_example.com.txt", Name("subfinder", "example.com", ""))
	assert.Equal(t, "ffuf_a.example.com_42.txt", Name("ffuf", "a.example.com", "42"))
	assert.Equal(t, "httpx_missing.txt", MissingName("httpx"))
	assert.Equal(t, "ffuf_missing_wordlist.txt", MissingWordlistName("ffuf"))
	assert.Equal(t, "nuclei_missing_input.txt", MissingInputName("nuclei"))
	assert.Equal(t, "all_subs_example.com", Basename("/out/all_subs_example.com.txt"))
	assert.Equal(t, "https___a.example.com_8443", Sanitize("https://a.example.com:8443"))
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	require.NoError(t, WriteFile(path, []byte("one\n")))
	require.NoError(t, WriteFile(path, []byte("two\n")))
	assert.Equal(t, "two\n", readRaw(t, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestToolOutputBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		out  ToolOutput
		want string
	}{
		{name: "stdout only", out: ToolOutput{Stdout: []byte("a\nb\n")}, want: "a\nb\n"},
		{name: "stderr appended after separator",
			out:  ToolOutput{Stdout: []byte("a"), Stderr: []byte("warn\n")},
			want: "a\n" + StderrSeparator + "\nwarn\n"},
		{name: "diagnostic only",
			out:  ToolOutput{Diagnostic: "spawn failed"},
			want: ErrorSeparator + "\nspawn failed\n"},
		{name: "empty", out: ToolOutput{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.out.Bytes()))
		})
	}
}

func TestReadLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tool.txt")
	writeRaw(t, path, "  b.example.com \n\na.example.com\n"+StderrSeparator+"\nnot-a-host\n")

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.example.com", "a.example.com"}, lines)

	_, err = ReadLines(filepath.Join(dir, "missing.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestFirstLineAndUsable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	blank := filepath.Join(dir, "blank.txt")
	writeRaw(t, blank, "\n   \n\t\n")
	_, ok, err := FirstLine(blank)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, Usable(blank))

	diag := filepath.Join(dir, "diag.txt")
	writeRaw(t, diag, ErrorSeparator+"\nexec: permission denied\n")
	assert.False(t, Usable(diag), "diagnostic-only artifact is not usable input")

	hosts := filepath.Join(dir, "hosts.txt")
	writeRaw(t, hosts, "\n\n  a.example.com  \nb.example.com\n")
	line, ok, err := FirstLine(hosts)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a.example.com", line)
	assert.True(t, Usable(hosts))

	assert.False(t, Usable(filepath.Join(dir, "nope.txt")))
	assert.True(t, Exists(hosts))
	assert.False(t, Exists(dir))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	t.Run("sorted union of deduplicated non-blank lines", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		a := filepath.Join(dir, "subfinder_example.com.txt")
		b := filepath.Join(dir, "assetfinder_example.com.txt")
		c := filepath.Join(dir, "amass_example.com.txt")
		writeRaw(t, a, "www.example.com\napi.example.com\n\n")
		writeRaw(t, b, " api.example.com \nAPI.example.com\n"+StderrSeparator+"\nrate limited\n")
		dest := filepath.Join(dir, "all_subs_example.com.txt")

		n, err := Merge([]string{a, b, c}, dest)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, "API.example.com\napi.example.com\nwww.example.com\n", readRaw(t, dest))
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		a := filepath.Join(dir, "a.txt")
		b := filepath.Join(dir, "b.txt")
		writeRaw(t, a, "z\ny\nx\n")
		writeRaw(t, b, "y\nw\n")
		dest := filepath.Join(dir, "merged.txt")

		_, err := Merge([]string{a, b}, dest)
		require.NoError(t, err)
		first := readRaw(t, dest)

		_, err = Merge([]string{a, b}, dest)
		require.NoError(t, err)
		assert.Equal(t, first, readRaw(t, dest))
	})

	t.Run("output has no duplicates and is sorted", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		var sources []string
		for i, content := range []string{"c\nb\na\nb\n", "a\nd\n\n", "e\nc\n"} {
			p := filepath.Join(dir, string(rune('a'+i))+".src")
			writeRaw(t, p, content)
			sources = append(sources, p)
		}
		dest := filepath.Join(dir, "out.txt")
		_, err := Merge(sources, dest)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSuffix(readRaw(t, dest), "\n"), "\n")
		assert.True(t, sort.StringsAreSorted(lines))
		seen := map[string]bool{}
		for _, l := range lines {
			assert.False(t, seen[l], "duplicate %q", l)
			seen[l] = true
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, lines)
	})

	t.Run("all sources missing writes empty file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		dest := filepath.Join(dir, "out.txt")
		n, err := Merge([]string{filepath.Join(dir, "x.txt")}, dest)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, "", readRaw(t, dest))
	})

	t.Run("rejects self merge", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		dest := filepath.Join(dir, "out.txt")
		_, err := Merge([]string{dest}, dest)
		assert.ErrorIs(t, err, ErrSelfMerge)
	})

	t.Run("rejects directory sources", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		_, err := Merge([]string{dir}, filepath.Join(dir, "out.txt"))
		assert.ErrorIs(t, err, ErrNotRegular)
	})

	t.Run("transform rewrites and drops lines", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		src := filepath.Join(dir, "httpx.txt")
		writeRaw(t, src, "https://b.example.com [200]\nhttps://a.example.com [301]\ngarbage\nhttps://b.example.com [200]\n")
		dest := filepath.Join(dir, "live.txt")

		_, err := Merge([]string{src}, dest, WithTransform(func(l string) string {
			if !strings.HasPrefix(l, "https://") {
				return ""
			}
			return strings.Fields(l)[0]
		}))
		require.NoError(t, err)
		assert.Equal(t, "https://a.example.com\nhttps://b.example.com\n", readRaw(t, dest))
	})
}

func TestWriteIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", ".hidden", IndexName} {
		writeRaw(t, filepath.Join(dir, name), "x\n")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	names, err := WriteIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
	assert.Equal(t, "a.txt\nb.txt\n", readRaw(t, filepath.Join(dir, IndexName)))
}

func TestSequence(t *testing.T) {
	t.Parallel()

	t.Run("strictly increasing with a frozen clock", func(t *testing.T) {
		t.Parallel()

		frozen := time.Unix(100, 0)
		s := &Sequence{now: func() time.Time { return frozen }}
		a, b, c := s.Next(), s.Next(), s.Next()
		assert.Less(t, a, b)
		assert.Less(t, b, c)
	})

	t.Run("concurrent callers never collide", func(t *testing.T) {
		t.Parallel()

		s := NewSequence()
		var mu sync.Mutex
		seen := make(map[int64]bool)
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v := s.Next()
				mu.Lock()
				defer mu.Unlock()
				assert.False(t, seen[v])
				seen[v] = true
			}()
		}
		wg.Wait()
		assert.Len(t, seen, 50)
	})
}
