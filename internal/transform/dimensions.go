package transform

import (
	"sort"
	"strings"
	"time"

	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/schema"
)

func (t *Transformer) teams(b *Batch, rows []map[string]any) []schema.TeamRow {
	seen := map[int64]bool{}
	out := make([]schema.TeamRow, 0, len(rows))

	for _, raw := range rows {
		v, ok := validate(b, raw)
		if !ok || dedupe(b, seen, v.Int("team_id")) {
			continue
		}
		row := schema.TeamRow{
			TeamID:       v.Int("team_id"),
			Abbreviation: v.String("abbreviation"),
			City:         v.String("city"),
			Name:         v.String("name"),
			FullName:     v.String("full_name"),
			Conference:   strings.TrimSpace(v.String("conference")),
			Division:     strings.TrimSpace(v.String("division")),
		}
		if row.FullName == "" {
			row.FullName = strings.TrimSpace(row.City + " " + row.Name)
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out
}

func (t *Transformer) players(b *Batch, rows []map[string]any) []schema.PlayerRow {
	seen := map[int64]bool{}
	out := make([]schema.PlayerRow, 0, len(rows))

	for _, raw := range rows {
		v, ok := validate(b, raw)
		if !ok || dedupe(b, seen, v.Int("player_id")) {
			continue
		}
		first, last := v.String("first_name"), v.String("last_name")
		out = append(out, schema.PlayerRow{
			PlayerID:  v.Int("player_id"),
			FirstName: first,
			LastName:  last,
			FullName:  strings.TrimSpace(first + " " + last),
			Position:  v.String("position"),
			TeamID:    v.IntPtr("team_id"),
			IsActive:  true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// PlayerTeamHistory snapshots the latest team of every observed player as
// of snapshot. When a player has two teams on the same latest date, the
// later observation wins.
func PlayerTeamHistory(obs []model.Observation, snapshot time.Time) []schema.PlayerTeamHistoryRow {
	latest := map[int64]model.Observation{}
	for _, o := range obs {
		if cur, ok := latest[o.PlayerID]; ok && o.Date.Before(cur.Date) {
			continue
		}
		latest[o.PlayerID] = o
	}

	date, season := model.FormatDate(snapshot), model.SeasonFor(snapshot)
	out := make([]schema.PlayerTeamHistoryRow, 0, len(latest))
	for _, o := range latest {
		out = append(out, schema.PlayerTeamHistoryRow{
			SnapshotDate: date,
			Season:       season,
			PlayerID:     o.PlayerID,
			TeamID:       o.TeamID,
			LastSeen:     model.FormatDate(o.Date),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}
