// Package selection decides which registered tools may run in a pipeline
// invocation, given an include set and an exclude set.
package selection

import (
	"sort"

	"github.com/nao1215/madrecon/internal/tools"
)

// Eligible reports whether toolID may run.
//
// A tool in exclude never runs. Otherwise it runs when include is empty or
// contains it.
func Eligible(toolID tools.ID, include, exclude map[tools.ID]bool) bool {
	if exclude[toolID] {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return include[toolID]
}

// Set is an immutable include/exclude pair. The zero value makes every
// tool eligible.
type Set struct {
	include map[tools.ID]bool
	exclude map[tools.ID]bool
}

// New builds a Set from identifier lists. Identifiers are assumed to have
// been validated against the registry (tools.Parse).
func New(include, exclude []tools.ID) Set {
	return Set{
		include: toMap(include),
		exclude: toMap(exclude),
	}
}

// Eligible reports whether toolID may run under this set.
func (s Set) Eligible(toolID tools.ID) bool {
	return Eligible(toolID, s.include, s.exclude)
}

// Filter returns the specs from specs that are eligible, in order.
func (s Set) Filter(specs []tools.Spec) []tools.Spec {
	var out []tools.Spec
	for _, spec := range specs {
		if s.Eligible(spec.ID) {
			out = append(out, spec)
		}
	}
	return out
}

// Include returns the include set, sorted.
func (s Set) Include() []tools.ID {
	return sortedKeys(s.include)
}

// Exclude returns the exclude set, sorted.
func (s Set) Exclude() []tools.ID {
	return sortedKeys(s.exclude)
}

func toMap(ids []tools.ID) map[tools.ID]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[tools.ID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func sortedKeys(m map[tools.ID]bool) []tools.ID {
	out := make([]tools.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
