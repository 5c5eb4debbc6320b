package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/preempt-sim/fifo"
	"github.com/inference-sim/preempt-sim/fifo/scenario"
	"github.com/inference-sim/preempt-sim/fifo/trace"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.FatalLevel)
	}
	os.Exit(m.Run())
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "classify", "defaults"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.Len(t, classifyCmd.Commands(), 2)
	assert.NotNil(t, runCmd.Flags().Lookup("concurrent"))
	assert.NotNil(t, classifyEngineCmd.Flags().Lookup("intr"))
	assert.Nil(t, classifyPbdmaCmd.Flags().Lookup("intr"))
}

func TestWriteDefaults_DecodesAsScenarioSections(t *testing.T) {
	// GIVEN the printed defaults
	var buf bytes.Buffer
	require.NoError(t, writeDefaults(&buf))

	// WHEN pasted into a scenario file
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, append([]byte("name: pasted\n"), buf.Bytes()...), 0o644))
	sc, err := scenario.Load(path)
	require.NoError(t, err)

	// THEN it loads strictly and reproduces the default tuning
	assert.Equal(t, fifo.DefaultPollConfig(), sc.PollConfig())
	assert.True(t, sc.Features.CoprocMutex)
	assert.True(t, sc.Features.Recovery)

	var doc defaultsDoc
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, fifo.DefaultPreemptTimeout, doc.Poll.PreemptTimeout)
	assert.Contains(t, buf.String(), "preempt_timeout: 3s")
}

func TestClassifyOutput(t *testing.T) {
	var buf bytes.Buffer

	writePbdmaDecision(&buf, 7, fifo.PbdmaStatus{Phase: fifo.PhaseLoad, ID: 9, NextID: 7})
	writeEngineDecision(&buf, 7, fifo.EngineStatus{Phase: fifo.PhaseValid, ID: 7, IntrPending: true})
	writeEngineDecision(&buf, 7, fifo.EngineStatus{Phase: fifo.PhaseSave, ID: 9})

	want := "pbdma phase=load id=9 next_id=7 target=7: busy\n" +
		"engine phase=valid id=7 next_id=0 intr=true target=7: evicted reset\n" +
		"engine phase=save id=9 next_id=0 intr=false target=7: evicted\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintReport(t *testing.T) {
	// GIVEN a finished run of the engine-hang example
	sc, err := scenario.Load(filepath.Join("..", "examples", "engine-hang.yaml"))
	require.NoError(t, err)
	target, err := scenario.Build(sc, scenario.BuildOptions{})
	require.NoError(t, err)
	report, err := scenario.Run(context.Background(), target, sc, false)
	require.NoError(t, err)

	// WHEN printed
	var buf bytes.Buffer
	printReport(&buf, report, trace.Summarize(target.Trace), target.Recovery.Escalations())
	out := buf.String()

	// THEN each step and the summary appear
	assert.Contains(t, out, "=== Scenario engine-hang ===")
	assert.Contains(t, out, "PASS [00] preempt tsg:7")
	assert.Contains(t, out, "reset engines 0x00000002{1} 1:timeout")
	assert.Contains(t, out, "reset engines 0x00000003{0,1} 0:recovery 1:recovery")
	assert.Contains(t, out, "preempts: 0 ok, 1 failed, 2 noop; mass preempts: 1")
	assert.Contains(t, out, "timeouts escalated for tsgs: [7]")
	assert.NotContains(t, out, "FAIL")
}

func TestPrintReport_FailingStep(t *testing.T) {
	report := &scenario.Report{Name: "x", Steps: []scenario.StepResult{
		{Index: 0, Action: "preempt tsg:1", Expect: scenario.ExpectFail},
	}}
	var buf bytes.Buffer

	printReport(&buf, report, trace.Summarize(nil), nil)

	assert.Contains(t, buf.String(), "FAIL [00] preempt tsg:1")
	assert.NotContains(t, buf.String(), "polls:")
}

func TestWriteTrace_ReadsBack(t *testing.T) {
	pt := trace.NewPreemptTrace(trace.TraceLevelPreempts)
	pt.RecordPreempt(trace.PreemptRecord{Target: "tsg:7", Outcome: trace.PreemptOK})
	path := filepath.Join(t.TempDir(), "trace.msgpack")

	require.NoError(t, writeTrace(path, pt))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := trace.ReadMsgpack(f)
	require.NoError(t, err)
	assert.Equal(t, pt.Preempts, got.Preempts)
}
