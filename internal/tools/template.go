package tools

import "strings"

// Argument template placeholders.
const (
	PlaceholderDomain   = "{domain}"
	PlaceholderInput    = "{input}"
	PlaceholderURL      = "{url}"
	PlaceholderWordlist = "{wordlist}"
	PlaceholderPattern  = "{pattern}"
)

// Input carries the values substituted into a Spec's argument template.
type Input struct {
	// Domain is the target domain.
	Domain string

	// Path is an input artifact path. For Stdin tools the path is not
	// substituted; the adapter feeds it on standard input instead.
	Path string

	// URL is a URL or URL template (fuzzers).
	URL string

	// Wordlist is a wordlist path (fuzzers).
	Wordlist string

	// Pattern is a filter pattern name (gf).
	Pattern string
}

// Args builds the argument list for one invocation. Header flags are not
// included; the adapter appends them for header-aware tools.
func (s Spec) Args(in Input) []string {
	r := strings.NewReplacer(
		PlaceholderDomain, in.Domain,
		PlaceholderInput, in.Path,
		PlaceholderURL, in.URL,
		PlaceholderWordlist, in.Wordlist,
		PlaceholderPattern, in.Pattern,
	)

	args := make([]string, len(s.Template))
	for i, a := range s.Template {
		args[i] = r.Replace(a)
	}
	return args
}

// HeaderArgs returns the "-H <header>" pairs for headers, in order.
// It returns nil for tools that are not header-aware.
func (s Spec) HeaderArgs(headers []string) []string {
	if !s.HeaderAware || len(headers) == 0 {
		return nil
	}
	args := make([]string, 0, len(headers)*2)
	for _, h := range headers {
		args = append(args, "-H", h)
	}
	return args
}
