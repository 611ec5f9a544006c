package results

import "fmt"

// Summary aggregates a run for reporting.
type Summary struct {
	Total    int   `json:"total"`
	Passed   int   `json:"passed"`
	Failed   int   `json:"failed"`
	Degraded int64 `json:"degraded"`
}

// Summarize counts the outcomes of r.
func Summarize(r *Run) Summary {
	var s Summary
	for _, o := range r.Outcomes {
		s.Total++
		if o.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
		s.Degraded += o.Degraded
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d scenarios: %d passed, %d failed, %d degraded interactions", s.Total, s.Passed, s.Failed, s.Degraded)
}
