package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeasonFor(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2025-10-21", "2025-26"},
		{"2025-12-31", "2025-26"},
		{"2026-01-01", "2025-26"},
		{"2026-06-15", "2025-26"},
		{"2026-09-30", "2025-26"},
		{"1999-10-01", "1999-00"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			d, err := ParseDate(tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, SeasonFor(d))
		})
	}
}

func TestDateRangeDays(t *testing.T) {
	from, _ := ParseDate("2026-01-30")
	to, _ := ParseDate("2026-02-02")
	r, err := NewDateRange(from, to)
	require.NoError(t, err)

	days := r.Days()
	require.Len(t, days, 4)
	assert.Equal(t, "2026-01-30", FormatDate(days[0]))
	assert.Equal(t, "2026-02-02", FormatDate(days[3]))

	_, err = NewDateRange(to, from)
	assert.Error(t, err)
}

func TestDayKeepsLocalCalendarDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	late := time.Date(2026, 3, 4, 23, 30, 0, 0, ny)
	assert.Equal(t, "2026-03-04", FormatDate(Day(late)))
}

func TestEntityPriority(t *testing.T) {
	assert.Less(t, EntityGame.Rank(), EntityPlayerStat.Rank())
	assert.Less(t, EntityPlayerStat.Rank(), EntityTeamStat.Rank())
	assert.Less(t, EntityTeamStat.Rank(), EntityStanding.Rank())
	assert.Less(t, EntityStanding.Rank(), EntityShotChart.Rank())

	e, err := ParseEntityType(" Player_Stat ")
	require.NoError(t, err)
	assert.Equal(t, EntityPlayerStat, e)

	_, err = ParseEntityType("injury")
	assert.Error(t, err)
}

func TestPartitionObjectKey(t *testing.T) {
	d, _ := ParseDate("2026-01-15")
	key := PartitionFor(Task{Date: d, Entity: EntityTeamStat})
	assert.Equal(t, "team_stat/season=2025-26/game_date=2026-01-15/data.parquet", key.ObjectKey())

	assert.Equal(t, "teams/data.parquet", DimensionKey(DatasetTeams).ObjectKey())
	assert.Equal(t, "player_team_history/season=2025-26/snapshot_date=2026-01-15/data.parquet",
		SnapshotKey(DatasetPlayerTeamHistory, d).ObjectKey())
}

func TestDatasetsAreNotTaskEntities(t *testing.T) {
	for _, e := range []EntityType{DatasetTeams, DatasetPlayers, DatasetPlayerTeamHistory} {
		assert.False(t, e.Valid(), e)
		_, err := ParseEntityType(string(e))
		assert.Error(t, err, e)
	}
}
