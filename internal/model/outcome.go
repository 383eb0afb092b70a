package model

import (
	"fmt"
	"strings"
)

// Outcome is the settled state of one tool invocation.
//
// Every outcome except OutcomeSuccess is a soft failure: it is recorded as an
// artifact and the pipeline carries on.
type Outcome int

const (
	// OutcomeSuccess means the tool ran and exited with status zero.
	OutcomeSuccess Outcome = iota

	// OutcomeToolAbsent means the executable was not found on PATH.
	// A "<tool>_missing.txt" marker artifact records it.
	OutcomeToolAbsent

	// OutcomeExecutionError means the process could not be spawned, was
	// killed, or exited with a non-zero status. The artifact carries the
	// diagnostic after the error separator.
	OutcomeExecutionError

	// OutcomeMissingPrerequisite means the invocation was not attempted
	// because an input it depends on (wordlist, upstream artifact) was
	// absent or empty. A marker artifact records it.
	OutcomeMissingPrerequisite
)

// String returns the outcome name used in reports and logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeToolAbsent:
		return "tool-absent"
	case OutcomeExecutionError:
		return "execution-error"
	case OutcomeMissingPrerequisite:
		return "missing-prerequisite"
	default:
		return "unknown"
	}
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool {
	return o == OutcomeSuccess
}

// MarshalText implements encoding.TextMarshaler so outcomes appear by name
// in JSON reports and the history database.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseOutcome converts a name produced by String back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return OutcomeSuccess, nil
	case "tool-absent":
		return OutcomeToolAbsent, nil
	case "execution-error":
		return OutcomeExecutionError, nil
	case "missing-prerequisite":
		return OutcomeMissingPrerequisite, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", s)
	}
}

// AllOutcomes lists every outcome in display order.
func AllOutcomes() []Outcome {
	return []Outcome{
		OutcomeSuccess,
		OutcomeToolAbsent,
		OutcomeExecutionError,
		OutcomeMissingPrerequisite,
	}
}
