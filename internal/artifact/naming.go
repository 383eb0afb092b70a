package artifact

import (
	"path/filepath"
	"strings"
)

const (
	// Ext is the extension of every artifact.
	Ext = ".txt"

	// IndexName is the file name of the run index.
	IndexName = "outputs_index.txt"
)

// Name returns "<tool>_<input>[_<disambiguator>].txt".
// input is a domain or the basename of an input artifact.
func Name(tool, input, disambiguator string) string {
	var sb strings.Builder
	sb.WriteString(tool)
	sb.WriteByte('_')
	sb.WriteString(input)
	if disambiguator != "" {
		sb.WriteByte('_')
		sb.WriteString(disambiguator)
	}
	sb.WriteString(Ext)
	return sb.String()
}

// MissingName is the marker written when a tool is not installed.
func MissingName(tool string) string {
	return tool + "_missing" + Ext
}

// MissingWordlistName is the marker written when a fuzzer has no wordlist.
func MissingWordlistName(tool string) string {
	return tool + "_missing_wordlist" + Ext
}

// MissingInputName is the marker written when a tool's upstream input is
// absent or empty.
func MissingInputName(tool string) string {
	return tool + "_missing_input" + Ext
}

// Basename returns the file name of path without directory and without the
// artifact extension, for use as the input part of Name.
func Basename(path string) string {
	return strings.TrimSuffix(filepath.Base(path), Ext)
}

// Sanitize makes s safe for use inside a file name. Every character outside
// [A-Za-z0-9.-] is replaced by '_'.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
