package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/preempt-sim/fifo"
)

var (
	classifyPhase  string
	classifyTarget uint32
	classifyID     uint32
	classifyNextID uint32
	classifyIntr   bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Show the eviction decision for one PBDMA or engine status sample",
}

// --- preempt-sim classify pbdma ---

var classifyPbdmaCmd = &cobra.Command{
	Use:   "pbdma",
	Short: "Decide whether a TSG has left a PBDMA",
	Run: func(cmd *cobra.Command, args []string) {
		st := fifo.PbdmaStatus{Phase: mustPhase(classifyPhase), ID: classifyID, NextID: classifyNextID}
		writePbdmaDecision(os.Stdout, classifyTarget, st)
	},
}

// --- preempt-sim classify engine ---

var classifyEngineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Decide whether a TSG has left an engine and whether to reset it",
	Run: func(cmd *cobra.Command, args []string) {
		st := fifo.EngineStatus{
			Phase:       mustPhase(classifyPhase),
			ID:          classifyID,
			NextID:      classifyNextID,
			IntrPending: classifyIntr,
		}
		writeEngineDecision(os.Stdout, classifyTarget, st)
	},
}

func mustPhase(name string) fifo.Phase {
	p, err := fifo.ParsePhase(name)
	if err != nil {
		logrus.Fatalf("%v (want invalid, valid, load, save or switch)", err)
	}
	return p
}

func verdict(done bool) string {
	if done {
		return color.GreenString("evicted")
	}
	return color.YellowString("busy")
}

func writePbdmaDecision(w io.Writer, tsgID uint32, st fifo.PbdmaStatus) {
	done := fifo.CheckTSGOnPbdma(tsgID, st)
	fmt.Fprintf(w, "pbdma phase=%v id=%d next_id=%d target=%d: %s\n",
		st.Phase, st.ID, st.NextID, tsgID, verdict(done))
}

func writeEngineDecision(w io.Writer, tsgID uint32, st fifo.EngineStatus) {
	done, reset := fifo.CheckEngine(tsgID, st)
	line := fmt.Sprintf("engine phase=%v id=%d next_id=%d intr=%t target=%d: %s",
		st.Phase, st.ID, st.NextID, st.IntrPending, tsgID, verdict(done))
	if reset {
		line += " " + color.RedString("reset")
	}
	fmt.Fprintln(w, line)
}

func init() {
	for _, c := range []*cobra.Command{classifyPbdmaCmd, classifyEngineCmd} {
		c.Flags().StringVar(&classifyPhase, "phase", "valid", "Switch status (invalid, valid, load, save, switch)")
		c.Flags().Uint32Var(&classifyTarget, "target", 0, "TSG id being preempted")
		c.Flags().Uint32Var(&classifyID, "id", 0, "Current id reported by the unit")
		c.Flags().Uint32Var(&classifyNextID, "next-id", 0, "Next id reported by the unit")
		classifyCmd.AddCommand(c)
	}
	classifyEngineCmd.Flags().BoolVar(&classifyIntr, "intr", false, "Stalling interrupt pending on the engine")
}
