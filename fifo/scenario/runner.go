package scenario

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/preempt-sim/fifo"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index  int
	Action string
	Err    error
	// ResetMask is the runlist's ResetEngBitmask after the step (preempt),
	// or the union over all preempted runlists (mass preempt).
	ResetMask   fifo.Bitmask
	ResetCauses map[uint32]fifo.ResetCause
	Expect      string
}

// Passed reports whether the step met its expectation.
func (r StepResult) Passed() bool {
	switch r.Expect {
	case ExpectOK:
		return r.Err == nil
	case ExpectFail:
		return r.Err != nil
	default:
		return true
	}
}

// Report collects step results in scenario order.
type Report struct {
	Name  string
	Steps []StepResult
}

// Passed reports whether every step met its expectation.
func (r *Report) Passed() bool {
	for _, s := range r.Steps {
		if !s.Passed() {
			return false
		}
	}
	return true
}

// Run executes the scenario's steps against t. With concurrent set,
// consecutive preempt steps on different runlists run in parallel (steps on
// the same runlist keep their order); a mass preempt step is a barrier.
func Run(ctx context.Context, t *Target, sc *Scenario, concurrent bool) (*Report, error) {
	report := &Report{Name: sc.Name, Steps: make([]StepResult, len(sc.Steps))}

	var batch []int
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := runPreemptBatch(ctx, t, sc, batch, report, concurrent)
		batch = batch[:0]
		return err
	}

	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if st.Preempt != "" {
			batch = append(batch, i)
			continue
		}
		if err := flush(); err != nil {
			return report, err
		}
		report.Steps[i] = runMassPreempt(t, i, st)
	}
	if err := flush(); err != nil {
		return report, err
	}
	return report, nil
}

// runPreemptBatch runs preempt steps, grouped by runlist when concurrent.
func runPreemptBatch(ctx context.Context, t *Target, sc *Scenario, batch []int, report *Report, concurrent bool) error {
	if !concurrent {
		for _, i := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Steps[i] = runPreempt(t, i, sc.Steps[i])
		}
		return nil
	}

	// Group by runlist, keeping scenario order inside a group. Steps whose
	// target does not resolve share one group.
	groups := make(map[uint32][]int)
	var order []uint32
	for _, i := range batch {
		key := runlistOf(t.Fifo, sc.Steps[i].Preempt)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range order {
		steps := groups[key]
		g.Go(func() error {
			for _, i := range steps {
				if err := gctx.Err(); err != nil {
					return err
				}
				// Each goroutine writes distinct indices.
				report.Steps[i] = runPreempt(t, i, sc.Steps[i])
			}
			return nil
		})
	}
	return g.Wait()
}

func runlistOf(f *fifo.Fifo, target string) uint32 {
	id, err := ParseIdentifier(target)
	if err != nil {
		return fifo.InvalidRunlistID
	}
	if rl := targetRunlist(f, id); rl != nil {
		return rl.ID
	}
	return fifo.InvalidRunlistID
}

func runPreempt(t *Target, i int, st Step) StepResult {
	res := StepResult{Index: i, Action: "preempt " + st.Preempt, Expect: st.Expect}
	id, err := ParseIdentifier(st.Preempt)
	if err != nil {
		res.Err = err
		return res
	}
	logrus.Infof("[step %02d] preempt %v", i, id)
	res.Err = t.Fifo.Preempt(id)

	if rl := targetRunlist(t.Fifo, id); rl != nil {
		rl.Lock()
		res.ResetMask = rl.ResetEngBitmask
		res.ResetCauses = copyCauses(rl.ResetCauses)
		rl.Unlock()
	}
	return res
}

func targetRunlist(f *fifo.Fifo, id fifo.Identifier) *fifo.Runlist {
	tsgID := id.Value
	if id.Type == fifo.IDTypeChannel {
		tsgID = f.ChannelTSG(id.Value)
	}
	tsg, ok := f.TSG(tsgID)
	if !ok {
		return nil
	}
	rl, _ := f.Runlist(tsg.RunlistID)
	return rl
}

// runMassPreempt performs a teardown: lock the runlists, stop scheduling,
// mass preempt, reset the engines it marked, then restore scheduling.
func runMassPreempt(t *Target, i int, st Step) StepResult {
	res := StepResult{
		Index:       i,
		Action:      fmt.Sprintf("mass_preempt %v", st.MassPreempt),
		Expect:      st.Expect,
		ResetCauses: make(map[uint32]fifo.ResetCause),
	}
	mask, err := maskOf("runlist", st.MassPreempt)
	if err != nil {
		res.Err = err
		return res
	}
	logrus.Infof("[step %02d] mass preempt runlists %v", i, mask)

	t.Fifo.LockRunlists(mask)
	t.Fifo.SetRunlistsSched(mask, false)
	t.Fifo.MassPreemptForRecovery(mask)
	for id := range mask.All() {
		rl, ok := t.Fifo.Runlist(id)
		if !ok {
			continue
		}
		res.ResetMask |= rl.ResetEngBitmask
		for eng, cause := range rl.ResetCauses {
			res.ResetCauses[eng] = cause
		}
		t.Fifo.ResetEngines(rl.ResetEngBitmask)
	}
	t.Fifo.SetRunlistsSched(mask, true)
	t.Fifo.UnlockRunlists(mask)
	return res
}

func copyCauses(in map[uint32]fifo.ResetCause) map[uint32]fifo.ResetCause {
	out := make(map[uint32]fifo.ResetCause, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
