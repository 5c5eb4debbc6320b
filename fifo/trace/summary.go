package trace

// TraceSummary aggregates statistics from a PreemptTrace.
type TraceSummary struct {
	TotalPreempts    int
	SucceededCount   int
	FailedCount      int
	NoopCount        int
	MassPreempts     int
	TotalPolls       int
	TimedOutPolls    int
	MaxIterations    int
	MeanIterations   float64
	ResetCauses      map[string]int // reset cause → count of engine polls
	MutexMissedCount int            // orchestrations that ran without the co-processor mutex
}

// Summarize computes aggregate statistics from a PreemptTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(pt *PreemptTrace) *TraceSummary {
	summary := &TraceSummary{
		ResetCauses: make(map[string]int),
	}
	if pt == nil {
		return summary
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()

	summary.TotalPreempts = len(pt.Preempts)
	for _, p := range pt.Preempts {
		switch p.Outcome {
		case PreemptOK:
			summary.SucceededCount++
		case PreemptNoop:
			summary.NoopCount++
		case PreemptFailed:
			summary.FailedCount++
		}
		if p.Outcome != PreemptNoop && !p.MutexHeld {
			summary.MutexMissedCount++
		}
	}
	summary.MassPreempts = len(pt.MassPreempts)

	summary.TotalPolls = len(pt.Polls)
	if len(pt.Polls) > 0 {
		total := 0
		for _, r := range pt.Polls {
			total += r.Iterations
			if r.Iterations > summary.MaxIterations {
				summary.MaxIterations = r.Iterations
			}
			if r.Outcome != OutcomeDone {
				summary.TimedOutPolls++
			}
			if r.ResetCause != "" {
				summary.ResetCauses[r.ResetCause]++
			}
		}
		summary.MeanIterations = float64(total) / float64(len(pt.Polls))
	}
	return summary
}
