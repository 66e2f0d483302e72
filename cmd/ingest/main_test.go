package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-lake/internal/config"
	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/pipeline"
)

func testCommand(ov *overrides) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&ov.workers, "workers", 0, "")
	cmd.Flags().StringSliceVar(&ov.entities, "entities", nil, "")
	cmd.Flags().BoolVar(&ov.noShotCharts, "no-shot-charts", false, "")
	return cmd
}

func baseConfig() *config.Config {
	return &config.Config{
		LedgerBackend:    config.LedgerSQLite,
		StorageBackend:   config.StorageFS,
		Workers:          4,
		FetchMaxAttempts: 5,
		FailureThreshold: 0.25,
		Entities:         append([]model.EntityType(nil), model.EntityPriority...),
	}
}

func TestApplyOverrides(t *testing.T) {
	var ov overrides
	cmd := testCommand(&ov)
	require.NoError(t, cmd.Flags().Set("workers", "8"))
	require.NoError(t, cmd.Flags().Set("no-shot-charts", "true"))

	cfg := baseConfig()
	require.NoError(t, applyOverrides(cmd, cfg, &ov))
	assert.Equal(t, 8, cfg.Workers)
	assert.NotContains(t, cfg.Entities, model.EntityShotChart)
	assert.Len(t, cfg.Entities, len(model.EntityPriority)-1)
}

func TestApplyOverridesEntities(t *testing.T) {
	var ov overrides
	cmd := testCommand(&ov)
	require.NoError(t, cmd.Flags().Set("entities", "game,standing"))

	cfg := baseConfig()
	require.NoError(t, applyOverrides(cmd, cfg, &ov))
	assert.Equal(t, []model.EntityType{model.EntityGame, model.EntityStanding}, cfg.Entities)
	assert.Equal(t, 4, cfg.Workers)

	require.NoError(t, cmd.Flags().Set("entities", "injuries"))
	assert.Error(t, applyOverrides(cmd, baseConfig(), &ov))
}

func TestApplyOverridesRejectsZeroWorkers(t *testing.T) {
	var ov overrides
	cmd := testCommand(&ov)
	require.NoError(t, cmd.Flags().Set("workers", "0"))
	assert.Error(t, applyOverrides(cmd, baseConfig(), &ov))
}

func TestParseRange(t *testing.T) {
	r, err := parseRange("2026-01-10", "2026-01-12")
	require.NoError(t, err)
	assert.Len(t, r.Days(), 3)

	r, err = parseRange("2026-01-10", "")
	require.NoError(t, err)
	assert.Equal(t, r.From, r.To)

	_, err = parseRange("2026-01-12", "2026-01-10")
	assert.Error(t, err)
	_, err = parseRange("yesterday", "")
	assert.Error(t, err)
}

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	err := printEntries(&buf, []model.LedgerEntry{
		{
			Entity:        model.EntityGame,
			Date:          "2026-01-15",
			Status:        model.StatusFailed,
			LastAttemptAt: time.Date(2026, 1, 16, 11, 0, 0, 0, time.UTC),
			AttemptCount:  2,
			LastError:     "fetch: upstream 503",
		},
		{
			Entity: model.EntityStanding,
			Date:   "2026-01-16",
			Status: model.StatusPending,
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "LAST ATTEMPT")
	assert.Contains(t, out, "2026-01-15")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "2026-01-16T11:00:00Z")
	assert.Contains(t, out, "fetch: upstream 503")
	assert.Contains(t, out, "standing")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	var gameRow string
	for _, l := range lines {
		if strings.Contains(l, "2026-01-15") {
			gameRow = l
		}
	}
	require.NotEmpty(t, gameRow)
	assert.Contains(t, gameRow, "game")
}

func TestPrintEntriesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEntries(&buf, nil))
	assert.Contains(t, strings.ToUpper(buf.String()), "ENTITY")
}

func TestPrintDimensions(t *testing.T) {
	var buf bytes.Buffer
	err := printDimensions(&buf, []pipeline.DimensionResult{
		{Entity: model.DatasetTeams, Key: "teams/data.parquet", Rows: 30},
		{Entity: model.DatasetPlayers, Key: "players/data.parquet", Rows: 512, Dropped: 3},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "DROPPED")
	assert.Contains(t, out, "teams/data.parquet")
	assert.Contains(t, out, "players/data.parquet")
	assert.Contains(t, out, "512")
}
