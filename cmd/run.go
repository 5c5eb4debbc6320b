package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/preempt-sim/fifo"
	"github.com/inference-sim/preempt-sim/fifo/scenario"
	"github.com/inference-sim/preempt-sim/fifo/trace"
)

var (
	scenarioPath string // Scenario file (YAML or TOML)
	concurrent   bool   // Run preempts of distinct runlists in parallel
	traceOut     string // Write msgpack trace here
	traceLevel   string // Override scenario trace level
	realClock    bool   // Sleep on the wall clock
)

// runCmd executes a scenario against the simulated FIFO
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a preempt scenario against simulated hardware",
	Run: func(cmd *cobra.Command, args []string) {
		if scenarioPath == "" {
			logrus.Fatalf("Scenario file not provided. Use --scenario.")
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		sc, err := scenario.Load(scenarioPath)
		if err != nil {
			logrus.Fatalf("unable to load scenario; %v", err)
		}
		target, err := scenario.Build(sc, scenario.BuildOptions{
			RealClock:  realClock,
			TraceLevel: trace.TraceLevel(traceLevel),
		})
		if err != nil {
			logrus.Fatalf("unable to build target; %v", err)
		}

		logrus.Infof("Starting scenario %q: %d runlists, %d steps, platform=%s",
			sc.Name, len(sc.Runlists), len(sc.Steps), platformName(sc))
		startTime := time.Now()

		report, err := scenario.Run(context.Background(), target, sc, concurrent)
		if err != nil {
			logrus.Fatalf("scenario aborted: %v", err)
		}
		printReport(os.Stdout, report, trace.Summarize(target.Trace), target.Recovery.Escalations())

		if traceOut != "" {
			if err := writeTrace(traceOut, target.Trace); err != nil {
				logrus.Fatalf("unable to write trace; %v", err)
			}
			logrus.Infof("Trace written to %s", traceOut)
		}
		logrus.Infof("Scenario complete in %v.", time.Since(startTime))
		if !report.Passed() {
			os.Exit(1)
		}
	},
}

func platformName(sc *scenario.Scenario) string {
	if sc.IsSilicon() {
		return "silicon"
	}
	return "simulation"
}

func writeTrace(path string, pt *trace.PreemptTrace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pt.WriteMsgpack(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// printReport writes one line per step and a trace summary.
func printReport(w io.Writer, report *scenario.Report, summary *trace.TraceSummary, escalations []uint32) {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(w, "=== Scenario %s ===\n", report.Name)
	for _, s := range report.Steps {
		status := pass("PASS")
		if !s.Passed() {
			status = fail("FAIL")
		}
		result := "ok"
		if s.Err != nil {
			result = s.Err.Error()
		}
		fmt.Fprintf(w, "%s [%02d] %-24s %s\n", status, s.Index, s.Action, result)
		if !s.ResetMask.IsEmpty() {
			fmt.Fprintf(w, "     %s\n", dim("reset engines "+describeResets(s.ResetMask, s.ResetCauses)))
		}
	}
	fmt.Fprintf(w, "preempts: %d ok, %d failed, %d noop; mass preempts: %d\n",
		summary.SucceededCount, summary.FailedCount, summary.NoopCount, summary.MassPreempts)
	if summary.TotalPolls > 0 {
		fmt.Fprintf(w, "polls: %d (%d not confirmed), iterations mean %.1f max %d\n",
			summary.TotalPolls, summary.TimedOutPolls, summary.MeanIterations, summary.MaxIterations)
	}
	if summary.MutexMissedCount > 0 {
		fmt.Fprintf(w, "co-processor mutex missed: %d\n", summary.MutexMissedCount)
	}
	if len(escalations) > 0 {
		fmt.Fprintf(w, "timeouts escalated for tsgs: %v\n", escalations)
	}
}

func describeResets(mask fifo.Bitmask, causes map[uint32]fifo.ResetCause) string {
	out := mask.String()
	for id := range mask.All() {
		out += fmt.Sprintf(" %d:%s", id, causes[id])
	}
	return out
}

func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario file (.yaml or .toml)")
	runCmd.Flags().BoolVar(&concurrent, "concurrent", false, "Preempt distinct runlists in parallel")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the preempt trace (msgpack) to this file")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "", "Trace level override (none, preempts, polls)")
	runCmd.Flags().BoolVar(&realClock, "real-clock", false, "Sleep on the wall clock instead of virtual time")
}
