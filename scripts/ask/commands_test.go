package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/sensorql/pkg/models"
	"github.com/ekaya-inc/sensorql/pkg/testhelpers"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	db := testhelpers.NewSQLiteIoTDB(t, testhelpers.SmallDataset())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`backend:
  type: sqlite
  path: %s
cache:
  size: 0
history:
  enabled: true
  path: %s
`, db.Path, filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAsk_JSON(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := execute(t, "--config", cfg, "-o", "json", "--detail", "count", "readings")
	require.NoError(t, err)

	var env models.ResultEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.True(t, env.Success)
	assert.Equal(t, "count readings", env.Question)
	assert.EqualValues(t, 500, env.Rows[0]["count"])
	require.NotNil(t, env.Intent)
	assert.Equal(t, "RepData", env.Intent.Target)
}

func TestAsk_Table(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := execute(t, "--config", cfg, "-o", "table", "--row-limit", "3", "readings from DEV003")
	require.NoError(t, err)
	assert.Contains(t, out, "DEV003")
	assert.Contains(t, out, "3 row(s)")
	assert.Contains(t, out, "SELECT")
}

func TestAsk_FailureExitsNonZero(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := execute(t, "--config", cfg, "-o", "table", "what happened yesterday")
	require.ErrorIs(t, err, errQuestionFailed)
	assert.Contains(t, out, "AmbiguousIntentError")
}

func TestAsk_Flags(t *testing.T) {
	_, err := execute(t, "-o", "yaml", "count readings")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = execute(t, "--row-limit", "-1", "count readings")
	assert.ErrorContains(t, err, "row-limit")

	_, err = execute(t)
	assert.Error(t, err, "a question is required")
}

func TestHistory(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := execute(t, "--config", cfg, "-o", "json", "count readings")
	require.NoError(t, err)
	_, err = execute(t, "--config", cfg, "-o", "json", "what happened yesterday")
	require.Error(t, err)

	out, err := execute(t, "--config", cfg, "-o", "json", "history")
	require.NoError(t, err)
	var all struct {
		Entries []models.QueryHistoryEntry `json:"entries"`
		Total   int                        `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	assert.Equal(t, 2, all.Total)

	out, err = execute(t, "--config", cfg, "-o", "table", "history", "--failed", "--since", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "what happened yesterday")
	assert.NotContains(t, out, "count readings")
	assert.Contains(t, out, "1 of 1 entries")
}

func TestHistory_Stats(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := execute(t, "--config", cfg, "-o", "json", "count readings")
	require.NoError(t, err)
	_, err = execute(t, "--config", cfg, "-o", "json", "what happened yesterday")
	require.Error(t, err)

	out, err := execute(t, "--config", cfg, "-o", "json", "history", "--stats")
	require.NoError(t, err)
	var stats models.QueryHistoryStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Succeeded)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)

	out, err = execute(t, "--config", cfg, "-o", "table", "history", "--stats", "--since", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "RepData")
	assert.Contains(t, out, "(unresolved)")
	assert.Contains(t, out, "2 questions, 1 answered (50%)")
	assert.Contains(t, out, "AmbiguousIntentError: 1")
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "21.50", formatCell(21.5))
	assert.Equal(t, "2024-03-14T12:00:00Z", formatCell(time.Date(2024, 3, 14, 13, 0, 0, 0, time.FixedZone("CET", 3600))))
	assert.Equal(t, "a b", formatCell("a\nb"))
	assert.Len(t, formatCell(string(bytes.Repeat([]byte("x"), 100))), maxCellWidth+3)
}
