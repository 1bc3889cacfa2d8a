package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandRegistersAllSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["optimize"])
	assert.True(t, names["validate-profile"])
	assert.True(t, names["validate-example"])
	assert.True(t, names["validate-rules"])
}

func TestOptimizeFlagDefaults(t *testing.T) {
	assert.Equal(t, "retry", optMode)
	assert.Equal(t, 5, optWorkers)
	assert.Equal(t, 1.10, optTargetSpeedup)
	assert.False(t, optBenchmarkAll)
}

func TestExitErrCarriesCode(t *testing.T) {
	e := exitErr{code: 2, err: assert.AnError}
	assert.Equal(t, 2, e.code)
	assert.ErrorIs(t, e, assert.AnError)
}

func TestFirstNonEmptyPicksFirstSetValue(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
