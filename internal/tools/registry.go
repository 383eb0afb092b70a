package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ID identifies a registered tool. The identifier is also the executable
// name and the prefix of every artifact the tool produces.
type ID string

// Registered tool identifiers.
const (
	Subfinder   ID = "subfinder"
	Assetfinder ID = "assetfinder"
	Amass       ID = "amass"
	Waybackurls ID = "waybackurls"
	Gau         ID = "gau"
	Katana      ID = "katana"
	Httpx       ID = "httpx"
	Dnsx        ID = "dnsx"
	Naabu       ID = "naabu"
	Nuclei      ID = "nuclei"
	Gf          ID = "gf"
	Dalfox      ID = "dalfox"
	Uro         ID = "uro"
	Unfurl      ID = "unfurl"
	Ffuf        ID = "ffuf"
	Gobuster    ID = "gobuster"
)

// String returns the identifier as a plain string.
func (id ID) String() string {
	return string(id)
}

// Category groups tools by the pipeline stage that runs them.
type Category string

// Tool categories, in pipeline order.
const (
	CategoryEnumerate Category = "enumerate"
	CategoryArchive   Category = "archive"
	CategoryCrawl     Category = "crawl"
	CategoryProbe     Category = "probe"
	CategoryScan      Category = "scan"
	CategoryExtract   Category = "extract"
	CategoryFuzz      Category = "fuzz"
)

// ErrUnknownTool is returned when an identifier is not in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Spec describes one external tool. Specs are defined statically in the
// registry below.
type Spec struct {
	// ID is the registry identifier.
	ID ID

	// Binary is the executable looked up on PATH.
	Binary string

	// Category is the stage this tool belongs to.
	Category Category

	// HeaderAware reports whether the tool accepts "-H <header>".
	// Headers are never passed to tools without this flag.
	HeaderAware bool

	// Stdin reports whether the tool reads its input file from standard
	// input instead of a path argument.
	Stdin bool

	// Template is the argument template. See Input for placeholders.
	Template []string

	// Description is a one-line summary for `madrecon tools`.
	Description string
}

// registry holds every known tool in pipeline order.
var registry = []Spec{
	{ID: Subfinder, Binary: "subfinder", Category: CategoryEnumerate,
		Template:    []string{"-d", PlaceholderDomain, "-silent"},
		Description: "passive subdomain enumeration"},
	{ID: Assetfinder, Binary: "assetfinder", Category: CategoryEnumerate,
		Template:    []string{"--subs-only", PlaceholderDomain},
		Description: "subdomain discovery from public sources"},
	{ID: Amass, Binary: "amass", Category: CategoryEnumerate,
		Template:    []string{"enum", "-passive", "-d", PlaceholderDomain},
		Description: "passive attack surface mapping"},
	{ID: Waybackurls, Binary: "waybackurls", Category: CategoryArchive,
		Template:    []string{PlaceholderDomain},
		Description: "URLs from the Wayback Machine"},
	{ID: Gau, Binary: "gau", Category: CategoryArchive,
		Template:    []string{PlaceholderDomain},
		Description: "URLs from AlienVault, Wayback, Common Crawl and URLScan"},
	{ID: Katana, Binary: "katana", Category: CategoryCrawl, HeaderAware: true,
		Template:    []string{"-u", "https://" + PlaceholderDomain, "-silent"},
		Description: "active web crawler"},
	{ID: Httpx, Binary: "httpx", Category: CategoryProbe, HeaderAware: true,
		Template:    []string{"-l", PlaceholderInput, "-silent", "-status-code", "-follow-redirects"},
		Description: "HTTP liveness probe"},
	{ID: Dnsx, Binary: "dnsx", Category: CategoryScan,
		Template:    []string{"-l", PlaceholderInput, "-silent", "-a", "-resp"},
		Description: "DNS resolution"},
	{ID: Naabu, Binary: "naabu", Category: CategoryScan,
		Template:    []string{"-list", PlaceholderInput, "-silent"},
		Description: "port scanner"},
	{ID: Nuclei, Binary: "nuclei", Category: CategoryScan, HeaderAware: true,
		Template:    []string{"-l", PlaceholderInput, "-silent"},
		Description: "template based vulnerability scanner"},
	{ID: Gf, Binary: "gf", Category: CategoryExtract,
		Template:    []string{PlaceholderPattern, PlaceholderInput},
		Description: "pattern filter for interesting URLs"},
	{ID: Dalfox, Binary: "dalfox", Category: CategoryExtract, HeaderAware: true,
		Template:    []string{"file", PlaceholderInput, "--silence"},
		Description: "XSS scanner"},
	{ID: Uro, Binary: "uro", Category: CategoryExtract,
		Template:    []string{"-i", PlaceholderInput},
		Description: "URL dedupe and normalization"},
	{ID: Unfurl, Binary: "unfurl", Category: CategoryExtract, Stdin: true,
		Template:    []string{"--unique", "keys"},
		Description: "query key extraction"},
	{ID: Ffuf, Binary: "ffuf", Category: CategoryFuzz, HeaderAware: true,
		Template:    []string{"-u", PlaceholderURL, "-w", PlaceholderWordlist, "-s"},
		Description: "web fuzzer"},
	{ID: Gobuster, Binary: "gobuster", Category: CategoryFuzz, HeaderAware: true,
		Template:    []string{"dir", "-u", PlaceholderURL, "-w", PlaceholderWordlist, "-q"},
		Description: "directory brute forcer"},
}

// byID indexes the registry.
var byID = func() map[ID]Spec {
	m := make(map[ID]Spec, len(registry))
	for _, s := range registry {
		m[s.ID] = s
	}
	return m
}()

// All returns every registered spec in pipeline order.
func All() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// IDs returns every registered identifier in pipeline order.
func IDs() []ID {
	ids := make([]ID, len(registry))
	for i, s := range registry {
		ids[i] = s.ID
	}
	return ids
}

// ByCategory returns the specs of one category in registry order.
func ByCategory(c Category) []Spec {
	var out []Spec
	for _, s := range registry {
		if s.Category == c {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns the Spec registered for id.
func Lookup(id ID) (Spec, bool) {
	s, ok := byID[id]
	return s, ok
}

// MustLookup returns the Spec registered for id and panics if it is not registered.
// It is meant for the compile-time constants above.
func MustLookup(id ID) Spec {
	s, ok := byID[id]
	if !ok {
		panic(fmt.Sprintf("tools: %q is not registered", id))
	}
	return s
}

// ParseList parses a comma-separated list of identifiers.
// Whitespace around entries and empty entries are ignored; duplicates are
// collapsed. Every unknown identifier is reported in a single error that
// wraps ErrUnknownTool.
func ParseList(s string) ([]ID, error) {
	return Parse(strings.Split(s, ","))
}

// Parse validates a list of identifiers, which may themselves contain
// comma-separated entries (as produced by repeated string-slice flags).
func Parse(values []string) ([]ID, error) {
	seen := make(map[ID]bool)
	var ids []ID
	var unknown []string

	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id := ID(part)
			if _, ok := byID[id]; !ok {
				unknown = append(unknown, part)
				continue
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s (known: %s)",
			ErrUnknownTool, strings.Join(unknown, ", "), knownList())
	}
	return ids, nil
}

func knownList() string {
	names := make([]string, len(registry))
	for i, s := range registry {
		names[i] = string(s.ID)
	}
	return strings.Join(names, ",")
}
