package model

// Summary aggregates a run for display.
type Summary struct {
	// Counts maps each outcome to the number of invocations with it.
	Counts map[Outcome]int `json:"counts"`

	// Invocations is the total number of invocations.
	Invocations int `json:"invocations"`

	// StagesRun and StagesSkipped count stages.
	StagesRun     int `json:"stages_run"`
	StagesSkipped int `json:"stages_skipped"`

	// Artifacts is the number of files in the run index.
	Artifacts int `json:"artifacts"`
}

// Summarize computes the summary of r.
func (r *RunReport) Summarize() Summary {
	s := Summary{
		Counts:    make(map[Outcome]int),
		Artifacts: len(r.Index),
	}
	for _, st := range r.Stages {
		if st.Skipped {
			s.StagesSkipped++
		} else {
			s.StagesRun++
		}
		for _, res := range st.Results {
			s.Counts[res.Outcome]++
			s.Invocations++
		}
	}
	return s
}

// Failures returns the number of invocations that did not succeed.
func (s Summary) Failures() int {
	return s.Invocations - s.Counts[OutcomeSuccess]
}
