package config

import (
	"fmt"
	"time"

	"github.com/nao1215/madrecon/internal/tools"
)

// File represents the structure of the .madrecon configuration file.
// Every field is optional; unset fields keep the defaults.
type File struct {
	// Headers are added to every header-aware tool, before -H flags.
	Headers []string `yaml:"headers,omitempty"`

	// Threads overrides the user worker budget.
	Threads int `yaml:"threads,omitempty"`

	// Output overrides the output directory.
	Output string `yaml:"output,omitempty"`

	// Include and Exclude are tool identifiers.
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// Fuzz enables the fuzz stage.
	Fuzz *bool `yaml:"fuzz,omitempty"`

	// Wordlist is the default fuzzing wordlist.
	Wordlist string `yaml:"wordlist,omitempty"`

	// Wordlists overrides the wordlist per fuzzer ("ffuf", "gobuster").
	Wordlists map[string]string `yaml:"wordlists,omitempty"`

	// GfPatterns are the gf categories to extract.
	GfPatterns []string `yaml:"gfPatterns,omitempty"`

	// ToolTimeout bounds every tool process, e.g. "10m".
	ToolTimeout time.Duration `yaml:"toolTimeout,omitempty"`

	// Proxy is an external SOCKS5 proxy address.
	Proxy string `yaml:"proxy,omitempty"`
}

// Apply copies the values set in the file onto c.
// Tool identifiers are checked against the registry.
func (cf *File) Apply(c *Config) error {
	if len(cf.Headers) > 0 {
		c.Headers = append(append([]string(nil), cf.Headers...), c.Headers...)
	}
	if cf.Threads != 0 {
		c.Threads = cf.Threads
	}
	if cf.Output != "" {
		c.OutputDir = cf.Output
	}

	if len(cf.Include) > 0 {
		ids, err := tools.Parse(cf.Include)
		if err != nil {
			return fmt.Errorf("%w: include: %w", ErrUnknownTool, err)
		}
		c.Include = ids
	}
	if len(cf.Exclude) > 0 {
		ids, err := tools.Parse(cf.Exclude)
		if err != nil {
			return fmt.Errorf("%w: exclude: %w", ErrUnknownTool, err)
		}
		c.Exclude = ids
	}

	if cf.Fuzz != nil {
		c.Fuzz = *cf.Fuzz
	}
	if cf.Wordlist != "" {
		c.Wordlist = cf.Wordlist
	}
	if len(cf.Wordlists) > 0 {
		if c.Wordlists == nil {
			c.Wordlists = make(map[tools.ID]string)
		}
		for k, v := range cf.Wordlists {
			c.Wordlists[tools.ID(k)] = v
		}
	}
	if len(cf.GfPatterns) > 0 {
		c.GfPatterns = cf.GfPatterns
	}
	if cf.ToolTimeout != 0 {
		c.ToolTimeout = cf.ToolTimeout
	}
	if cf.Proxy != "" {
		c.ProxyAddress = cf.Proxy
	}
	return nil
}
