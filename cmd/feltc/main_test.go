package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEndToEndFibonacci covers spec §8 scenario 1: fib(10) == 55 through
// the full HIR -> link -> schedule -> emit -> emulate pipeline.
func TestEndToEndFibonacci(t *testing.T) {
	var out, errOut bytes.Buffer
	runFixture = true
	dHIR, dCFG, dSchedule, dAsm = false, false, false, false
	err := compileAndRun("fib", &out, &errOut)
	require.NoError(t, err, errOut.String())
	require.Contains(t, out.String(), "= [55]")
}

// TestEndToEndSumMatrix covers spec §8 scenario 2: sum_matrix over the
// 3x3 pattern [1,0,1, 0,1,0, 1,1,1] sums to 6.
func TestEndToEndSumMatrix(t *testing.T) {
	var out, errOut bytes.Buffer
	runFixture = true
	err := compileAndRun("sum_matrix", &out, &errOut)
	require.NoError(t, err, errOut.String())
	require.Contains(t, out.String(), "= [6]")
}

// TestEndToEndStoreLoad covers spec §8 scenario 3: store(ptr, val);
// return load(ptr) == val.
func TestEndToEndStoreLoad(t *testing.T) {
	var out, errOut bytes.Buffer
	runFixture = true
	err := compileAndRun("store_load", &out, &errOut)
	require.NoError(t, err, errOut.String())
	require.True(t, strings.Contains(out.String(), "3405691582") || strings.Contains(out.String(), "0xCAFEBABE"),
		"expected store_load to return the stored value, got %q", out.String())
}

// TestUnknownFixtureReportsKnownNames exercises the CLI's error path
// when asked to run a fixture that doesn't exist.
func TestUnknownFixtureReportsKnownNames(t *testing.T) {
	var out, errOut bytes.Buffer
	err := compileAndRun("nope", &out, &errOut)
	require.Error(t, err)
	require.Contains(t, err.Error(), "fib")
}

// TestDemitFlagsDumpIntermediateForms exercises --demit-hir/-cfg/-schedule/
// -asm without running the emulator, matching the CLI surface in spec §6.
func TestDemitFlagsDumpIntermediateForms(t *testing.T) {
	dHIR, dCFG, dSchedule, dAsm = true, true, true, true
	runFixture = false
	defer func() { dHIR, dCFG, dSchedule, dAsm = false, false, false, false; runFixture = true }()

	var out, errOut bytes.Buffer
	err := compileAndRun("fib", &out, &errOut)
	require.NoError(t, err, errOut.String())
	text := out.String()
	require.Contains(t, text, "fn")
	require.Contains(t, text, "cfg fib::fib")
	require.Contains(t, text, "schedule fib::fib")
}
