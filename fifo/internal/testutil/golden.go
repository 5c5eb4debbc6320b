// Package testutil provides shared test infrastructure for the preempt
// subsystem. It consolidates the golden decision tables and the simulated
// target rig used across fifo/ and fifo/scenario/ test packages.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDecisions represents the structure of testdata/preempt_decisions.json.
type GoldenDecisions struct {
	Pbdma  []GoldenPbdmaCase  `json:"pbdma"`
	Engine []GoldenEngineCase `json:"engine"`
}

// GoldenPbdmaCase is one PBDMA status sample and the expected eviction verdict.
type GoldenPbdmaCase struct {
	Name   string `json:"name"`
	Phase  string `json:"phase"`
	ID     uint32 `json:"id"`
	NextID uint32 `json:"next_id"`
	Target uint32 `json:"target"`
	Done   bool   `json:"done"`
}

// GoldenEngineCase is one engine status sample and the expected verdict.
type GoldenEngineCase struct {
	Name   string `json:"name"`
	Phase  string `json:"phase"`
	ID     uint32 `json:"id"`
	NextID uint32 `json:"next_id"`
	Intr   bool   `json:"intr"`
	Target uint32 `json:"target"`
	Done   bool   `json:"done"`
	Reset  bool   `json:"reset"`
}

// LoadGoldenDecisions loads the decision tables from the testdata directory.
// The path is resolved relative to this source file: fifo/internal/testutil/ → testdata/.
func LoadGoldenDecisions(t *testing.T) *GoldenDecisions {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from fifo/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "preempt_decisions.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden decisions: %v", err)
	}

	var golden GoldenDecisions
	if err := json.Unmarshal(data, &golden); err != nil {
		t.Fatalf("Failed to parse golden decisions: %v", err)
	}
	if len(golden.Pbdma) == 0 || len(golden.Engine) == 0 {
		t.Fatal("golden decisions: empty table")
	}
	return &golden
}
