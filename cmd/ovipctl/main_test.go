package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OVIP/internal/domain/models"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	// flag values persist between Execute calls
	engDataDir, engSynthetic, engSet, engOut, engVerbose = "", 0, "all", "", false
	featuresSet = ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestEngineer_SyntheticNPRS1(t *testing.T) {
	out, summary, err := execute(t, "engineer", "--synthetic", "24", "--set", "NPRS-1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 25)
	assert.Equal(t, "Date,Vol_Direction,L_Vol,L_Regime,L_Inten,L_GPR,L_Accel", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2015-01-01,,"), lines[1])

	var s models.PipelineSummary
	require.NoError(t, json.Unmarshal([]byte(summary), &s))
	assert.Equal(t, 24, s.Rows)
	assert.Equal(t, "synthetic", s.Source)
	assert.Contains(t, s.Sets, models.FeatureSetRF11)
}

func TestEngineer_RequiresOneSource(t *testing.T) {
	_, _, err := execute(t, "engineer")
	assert.ErrorContains(t, err, "required")

	_, _, err = execute(t, "engineer", "--synthetic", "12", "--data", "/tmp")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, _, err = execute(t, "engineer", "--synthetic", "12", "--set", "xgb")
	assert.ErrorContains(t, err, "unknown feature set")
}

func TestFeatures_ListsCanonicalOrder(t *testing.T) {
	out, _, err := execute(t, "features", "--set", "rf11")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 12)
	assert.Contains(t, lines[1], "L_Vol")
	assert.Contains(t, lines[11], "L_Vol_Std")
	assert.NotContains(t, out, "nprs1")
}
