package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/preempt-sim/fifo"
	"github.com/inference-sim/preempt-sim/fifo/regs"
	"github.com/inference-sim/preempt-sim/fifo/trace"
)

func TestMain(m *testing.M) {
	// Set DEBUG_TESTS=1 to see full logs: DEBUG_TESTS=1 go test ./fifo/scenario/... -v
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.FatalLevel)
	}
	os.Exit(m.Run())
}

func examplePath(name string) string {
	return filepath.Join("..", "..", "examples", name)
}

func writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func loadAndBuild(t *testing.T, path string) (*Scenario, *Target) {
	t.Helper()
	sc, err := Load(path)
	require.NoError(t, err)
	target, err := Build(sc, BuildOptions{})
	require.NoError(t, err)
	return sc, target
}

func TestExampleScenarios_PreemptE2E(t *testing.T) {
	// GIVEN the preempt-e2e.yaml example
	sc, target := loadAndBuild(t, examplePath("preempt-e2e.yaml"))
	assert.True(t, sc.IsSilicon())
	assert.Equal(t, fifo.DefaultPollConfig(), sc.PollConfig())

	// WHEN run
	report, err := Run(context.Background(), target, sc, false)
	require.NoError(t, err)

	// THEN both preempts pass and the PBDMA drained on its second sample
	assert.True(t, report.Passed())
	require.Len(t, report.Steps, 2)
	assert.Equal(t, "preempt tsg:7", report.Steps[0].Action)
	assert.Equal(t, 3, target.Regs.PbdmaSamples(3), "two samples, then one more for the channel preempt")
	assert.Equal(t, 2, target.Regs.EngineSamples(1))
	assert.Equal(t, []uint32{regs.PreemptValue(7), regs.PreemptValue(7)}, target.Regs.WritesTo(regs.Preempt))
}

func TestExampleScenarios_EngineHang(t *testing.T) {
	sc, target := loadAndBuild(t, examplePath("engine-hang.yaml"))
	assert.Equal(t, 50*time.Millisecond, sc.PollConfig().PreemptTimeout)

	report, err := Run(context.Background(), target, sc, false)
	require.NoError(t, err)
	require.True(t, report.Passed(), "%+v", report.Steps)

	// Step 0 fails on engine 1 and marks it with cause timeout.
	hang := report.Steps[0]
	assert.True(t, errors.Is(hang.Err, fifo.ErrBusy))
	assert.Equal(t, fifo.MaskOf(1), hang.ResetMask)
	assert.Equal(t, fifo.ResetCauseTimeout, hang.ResetCauses[1])

	// Steps 1 and 2 have nothing to preempt.
	assert.NoError(t, report.Steps[1].Err)
	assert.NoError(t, report.Steps[2].Err)

	// Step 3 tears the runlist down and resets both engines.
	mass := report.Steps[3]
	assert.Equal(t, fifo.MaskOf(0, 1), mass.ResetMask)
	assert.Equal(t, fifo.ResetCauseRecovery, mass.ResetCauses[0])

	// Inline recovery ran for step 0, the teardown reset for step 3.
	assert.Equal(t, []fifo.Bitmask{fifo.MaskOf(1), fifo.MaskOf(0, 1)}, target.Recovery.Resets())
	assert.Equal(t, []uint32{7}, target.Recovery.Escalations())
	assert.False(t, target.Fifo.SchedDisabled(0))

	summary := trace.Summarize(target.Trace)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, 2, summary.NoopCount)
	assert.Equal(t, 1, summary.MassPreempts)
	assert.Equal(t, 1, summary.ResetCauses["timeout"])
}

func TestExampleScenarios_RecoveryTOML(t *testing.T) {
	sc, target := loadAndBuild(t, examplePath("recovery.toml"))
	assert.Equal(t, "teardown", sc.Name)
	assert.Equal(t, time.Duration(0), sc.PollConfig().MutexTimeout)

	report, err := Run(context.Background(), target, sc, false)
	require.NoError(t, err)
	require.True(t, report.Passed(), "%+v", report.Steps)

	// TSG 4 is preempted but engine 2 needs a reset for its interrupt.
	assert.Equal(t, fifo.MaskOf(2), report.Steps[1].ResetMask)
	assert.Equal(t, fifo.ResetCauseInterrupt, report.Steps[1].ResetCauses[2])

	// The teardown covers both runlists with one register write.
	assert.Equal(t, fifo.MaskOf(0, 1, 2), report.Steps[2].ResetMask)
	assert.Equal(t, []uint32{0x3}, target.Regs.WritesTo(regs.RunlistPreempt))
	assert.Equal(t, []fifo.Bitmask{fifo.MaskOf(0, 1), fifo.MaskOf(2)}, target.Recovery.Resets())

	// The co-processor held the mutex throughout.
	summary := trace.Summarize(target.Trace)
	assert.Equal(t, 2, summary.MutexMissedCount)
	assert.Equal(t, 0, summary.TotalPolls, "preempts level records no polls")
	require.Len(t, target.Trace.MassPreempts, 1)
	assert.False(t, target.Trace.MassPreempts[0].MutexHeld)
}

func TestExampleScenarios_Concurrent(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		sc, target := loadAndBuild(t, examplePath("concurrent.yaml"))

		report, err := Run(context.Background(), target, sc, concurrent)

		require.NoError(t, err)
		assert.True(t, report.Passed(), "concurrent=%t: %+v", concurrent, report.Steps)
		for i, s := range report.Steps {
			assert.Equal(t, i, s.Index, "results stay in scenario order")
		}
		assert.Equal(t, uint32(0), target.Regs.Value(regs.SchedDisable))
		assert.Equal(t, 4, trace.Summarize(target.Trace).SucceededCount)
	}
}

func TestRun_MassPreemptIsABarrier(t *testing.T) {
	path := writeScenario(t, "barrier.yaml", `
name: barrier
runlists:
  - {id: 0, pbdmas: [0], engines: [0]}
  - {id: 1, pbdmas: [1], engines: [1]}
tsgs:
  - {id: 1, runlist: 0}
  - {id: 2, runlist: 1}
steps:
  - preempt: tsg:1
  - mass_preempt: [0, 1]
  - preempt: tsg:2
`)
	sc, target := loadAndBuild(t, path)

	report, err := Run(context.Background(), target, sc, true)

	require.NoError(t, err)
	require.Len(t, report.Steps, 3)
	// The preempt after the teardown starts from a cleared mask.
	assert.True(t, report.Steps[0].ResetMask.IsEmpty())
	assert.Equal(t, fifo.MaskOf(0, 1), report.Steps[1].ResetMask)
	assert.True(t, report.Steps[2].ResetMask.IsEmpty())
}

func TestRun_CancelledContext(t *testing.T) {
	sc, target := loadAndBuild(t, examplePath("concurrent.yaml"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, target, sc, false)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, target.Regs.Writes())
}

func TestStepResult_Passed(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		expect string
		err    error
		want   bool
	}{
		{ExpectOK, nil, true},
		{ExpectOK, boom, false},
		{ExpectFail, nil, false},
		{ExpectFail, boom, true},
		{ExpectAny, boom, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StepResult{Expect: tc.expect, Err: tc.err}.Passed(), "%q/%v", tc.expect, tc.err)
	}
}

func TestLoad_StrictYAML_RejectsUnknownField(t *testing.T) {
	path := writeScenario(t, "typo.yaml", "name: typo\nrunlsits: []\n")

	_, err := Load(path)

	assert.Error(t, err)
}

func TestLoad_TOML_RejectsUnknownKey(t *testing.T) {
	path := writeScenario(t, "typo.toml", "name = \"typo\"\n[poll]\npreempt_timeuot = \"1s\"\n")

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
	}{
		{"unknown platform", Scenario{Platform: "fpga"}},
		{"unknown trace level", Scenario{Trace: "decisions"}},
		{"bad poll tuning", Scenario{Poll: PollSpec{PreSiliconRetries: ptr(0)}}},
		{"runlist id out of range", Scenario{Runlists: []RunlistSpec{{ID: 32}}}},
		{"negative engine id", Scenario{Runlists: []RunlistSpec{{ID: 0, Engines: []int{-1}}}}},
		{"unknown phase", Scenario{Hardware: HardwareSpec{Engines: []UnitScript{{ID: 0, Samples: []StatusSpec{{Phase: "busy"}}}}}}},
		{"empty step", Scenario{Steps: []Step{{}}}},
		{"both step kinds", Scenario{Steps: []Step{{Preempt: "tsg:1", MassPreempt: []int{0}}}}},
		{"bad identifier", Scenario{Steps: []Step{{Preempt: "runlist:1"}}}},
		{"bad expect", Scenario{Steps: []Step{{Preempt: "tsg:1", Expect: "maybe"}}}},
		{"mass preempt out of range", Scenario{Steps: []Step{{MassPreempt: []int{40}}}}},
		{"tsg id wider than the id field", Scenario{TSGs: []TSGSpec{{ID: 4103}}}},
		{"channel tsg wider than the id field", Scenario{Channels: []ChannelSpec{{ID: 1, TSG: ptr(4096)}}}},
		{"status id wider than the id field", Scenario{Hardware: HardwareSpec{Pbdmas: []UnitScript{{ID: 0, Samples: []StatusSpec{{Phase: "valid", ID: 4103}}}}}}},
		{"status next id wider than the id field", Scenario{Hardware: HardwareSpec{Engines: []UnitScript{{ID: 0, Samples: []StatusSpec{{Phase: "load", NextID: 4103}}}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.sc.Validate())
			_, err := Build(&tc.sc, BuildOptions{})
			assert.Error(t, err)
		})
	}
}

func TestBuild_TopologyErrors(t *testing.T) {
	// A TSG on an undeclared runlist passes Validate but not registration.
	sc := &Scenario{TSGs: []TSGSpec{{ID: 1, Runlist: ptr(3)}}}
	_, err := Build(sc, BuildOptions{})
	assert.True(t, errors.Is(err, fifo.ErrUnknownID), "got %v", err)
}

func TestRun_MassPreemptWithRecoveryDisabled(t *testing.T) {
	// GIVEN a teardown scenario with the recovery feature off
	path := writeScenario(t, "norecovery.yaml", `
name: norecovery
features: {coproc_mutex: true, recovery: false}
runlists:
  - {id: 0, pbdmas: [0], engines: [0, 1]}
steps:
  - mass_preempt: [0]
`)
	sc, target := loadAndBuild(t, path)

	// WHEN it runs
	report, err := Run(context.Background(), target, sc, false)

	// THEN engines are marked but the recovery backend sees no reset
	require.NoError(t, err)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, fifo.MaskOf(0, 1), report.Steps[0].ResetMask)
	assert.Empty(t, target.Recovery.Resets())
}

func TestBuild_TraceLevelOverride(t *testing.T) {
	sc := &Scenario{Trace: "none"}
	target, err := Build(sc, BuildOptions{TraceLevel: trace.TraceLevelPolls})
	require.NoError(t, err)
	assert.Equal(t, trace.TraceLevelPolls, target.Trace.Level)
	assert.IsType(t, &fifo.VirtualClock{}, target.Clock)

	target, err = Build(sc, BuildOptions{RealClock: true})
	require.NoError(t, err)
	assert.Equal(t, trace.TraceLevelNone, target.Trace.Level)
	assert.IsType(t, fifo.RealClock{}, target.Clock)
}

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    fifo.Identifier
		wantErr bool
	}{
		{"tsg:7", fifo.TSGID(7), false},
		{"channel:3", fifo.ChannelID(3), false},
		{"ch:3", fifo.ChannelID(3), false},
		{"tsg7", fifo.Identifier{}, true},
		{"tsg:x", fifo.Identifier{}, true},
		{"tsg:-1", fifo.Identifier{}, true},
		{"runlist:1", fifo.Identifier{}, true},
	}
	for _, tc := range tests {
		got, err := ParseIdentifier(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func ptr[T any](v T) *T { return &v }
