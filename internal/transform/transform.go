package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/provider"
	"github.com/albapepper/scoracle-lake/internal/schema"
)

// Batch is the transformed output of one task.
type Batch struct {
	Task     model.Task
	Rows     any // []schema.GameRow, []schema.PlayerStatRow, ...
	Count    int // len(Rows)
	Input    int // upstream rows seen
	Dropped  []*schema.ValidationError
	Warnings []string

	// Observations lists (player, team, date) sightings from player lines,
	// fed to trade detection.
	Observations []model.Observation
}

// AllDropped reports whether input existed but every row was rejected.
func (b *Batch) AllDropped() bool { return b.Input > 0 && b.Count == 0 && len(b.Dropped) > 0 }

func (b *Batch) drop(err error) {
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		ve = &schema.ValidationError{Entity: b.Task.Entity, Reason: err.Error()}
	}
	b.Dropped = append(b.Dropped, ve)
}

func (b *Batch) warnf(format string, args ...any) {
	b.Warnings = append(b.Warnings, fmt.Sprintf(format, args...))
}

// Transformer converts fetched pages into typed rows.
type Transformer struct {
	logger *slog.Logger
}

// New creates a Transformer.
func New(logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{logger: logger}
}

// TransformTask decodes, validates and converts every page of a task.
// Invalid rows are dropped individually; an error is returned only when a
// page cannot be decoded at all. gameCtx may be nil, which degrades the
// derived metrics of player and team lines.
func (t *Transformer) TransformTask(task model.Task, records []provider.RawRecord, gameCtx *GameContext) (*Batch, error) {
	var rows []map[string]any
	for _, rec := range records {
		page, err := DecodeRows(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", task, rec.Provenance.Page, err)
		}
		rows = append(rows, page...)
	}

	b := &Batch{Task: task, Input: len(rows)}
	switch task.Entity {
	case model.EntityGame:
		out := t.games(b, rows)
		b.Rows, b.Count = out, len(out)
	case model.EntityPlayerStat:
		out := t.playerStats(b, rows, gameCtx)
		b.Rows, b.Count = out, len(out)
	case model.EntityTeamStat:
		out := t.teamStats(b, rows, gameCtx)
		b.Rows, b.Count = out, len(out)
	case model.EntityStanding:
		out := t.standings(b, rows)
		b.Rows, b.Count = out, len(out)
	case model.EntityShotChart:
		out := t.shotZones(b, rows)
		b.Rows, b.Count = out, len(out)
	case model.DatasetTeams:
		out := t.teams(b, rows)
		b.Rows, b.Count = out, len(out)
	case model.DatasetPlayers:
		out := t.players(b, rows)
		b.Rows, b.Count = out, len(out)
	default:
		return nil, fmt.Errorf("no transform for entity %q", task.Entity)
	}

	if len(b.Dropped) > 0 {
		t.logger.Warn("rows dropped", "task", task.String(), "dropped", len(b.Dropped), "input", b.Input, "first", b.Dropped[0].Error())
	}
	return b, nil
}

// validate runs ValidateRow and rejects rows dated outside the task.
func validate(b *Batch, row map[string]any) (schema.Values, bool) {
	vals, err := ValidateRow(b.Task.Entity, row)
	if err != nil {
		b.drop(err)
		return nil, false
	}
	if d := vals.String("game_date"); d != "" && d != model.FormatDate(b.Task.Date) {
		b.drop(&schema.ValidationError{Entity: b.Task.Entity, Field: "game_date", Value: d, Reason: "outside partition date " + model.FormatDate(b.Task.Date)})
		return nil, false
	}
	return vals, true
}

// dedupe reports whether key was already seen, dropping the repeat.
func dedupe[K comparable](b *Batch, seen map[K]bool, key K) bool {
	if seen[key] {
		b.drop(&schema.ValidationError{Entity: b.Task.Entity, Value: key, Reason: "duplicate row"})
		return true
	}
	seen[key] = true
	return false
}

// --------------------------------------------------------------------------
// Games
// --------------------------------------------------------------------------

func (t *Transformer) games(b *Batch, rows []map[string]any) []schema.GameRow {
	date, season := model.FormatDate(b.Task.Date), b.Task.Season()
	seen := map[teamGame]bool{}
	out := make([]schema.GameRow, 0, len(rows))

	for _, raw := range rows {
		v, ok := validate(b, raw)
		if !ok || dedupe(b, seen, teamGame{v.Int("game_id"), v.Int("team_id")}) {
			continue
		}
		periods := int32(4)
		if v.Has("periods") && v.Int32("periods") > 4 {
			periods = v.Int32("periods")
		}
		minutes := TeamMinutes(periods)
		if v.Has("minutes") && v.Float("minutes") > 0 {
			minutes = v.Float("minutes")
		}
		out = append(out, schema.GameRow{
			GameID:         v.Int("game_id"),
			GameDate:       date,
			Season:         season,
			TeamID:         v.Int("team_id"),
			OpponentTeamID: v.Int("opponent_team_id"),
			IsHome:         v.Bool("is_home"),
			Status:         v.String("status"),
			Periods:        periods,
			Minutes:        minutes,
			Pts:            v.Int32("pts"),
			FGM:            v.Int32("fgm"),
			FGA:            v.Int32("fga"),
			FG3M:           v.Int32("fg3m"),
			FG3A:           v.Int32("fg3a"),
			FTM:            v.Int32("ftm"),
			FTA:            v.Int32("fta"),
			OREB:           v.Int32("oreb"),
			DREB:           v.Int32("dreb"),
			AST:            v.Int32("ast"),
			TOV:            v.Int32("tov"),
		})
	}

	// Derived metrics need both lines of a game, so they run after every
	// row of the date is known.
	gc := NewGameContext(out)
	for i := range out {
		r := &out[i]
		if r.Status == schema.GameScheduled {
			continue
		}
		r.Possessions = Possessions(gameLine(*r))
		opp, ok := gc.Opponent(r.GameID, r.TeamID)
		if !ok {
			b.warnf("degraded: game %d team %d has no opponent line", r.GameID, r.TeamID)
			r.OffRating = Rating(float64(r.Pts), r.Possessions)
			continue
		}
		oppPoss := Possessions(gameLine(opp))
		r.Pace = Pace(r.Possessions, oppPoss, r.Minutes)
		r.OffRating = Rating(float64(r.Pts), r.Possessions)
		r.DefRating = Rating(float64(opp.Pts), oppPoss)
		r.NetRating = NetRating(r.OffRating, r.DefRating)
	}
	return out
}

// --------------------------------------------------------------------------
// Player box scores
// --------------------------------------------------------------------------

type playerGame struct {
	gameID   int64
	playerID int64
}

func (t *Transformer) playerStats(b *Batch, rows []map[string]any, gc *GameContext) []schema.PlayerStatRow {
	date, season := model.FormatDate(b.Task.Date), b.Task.Season()
	seen := map[playerGame]bool{}
	out := make([]schema.PlayerStatRow, 0, len(rows))
	degraded := map[int64]bool{}

	for _, raw := range rows {
		v, ok := validate(b, raw)
		if !ok || dedupe(b, seen, playerGame{v.Int("game_id"), v.Int("player_id")}) {
			continue
		}

		row := schema.PlayerStatRow{
			GameID:     v.Int("game_id"),
			GameDate:   date,
			Season:     season,
			PlayerID:   v.Int("player_id"),
			PlayerName: v.String("player_name"),
			TeamID:     v.Int("team_id"),
			Starter:    v.Bool("starter"),
			Minutes:    v.Float("min"),
			Pts:        v.Int32("pts"),
			Reb:        v.Int32("reb"),
			Ast:        v.Int32("ast"),
			Stl:        v.Int32("stl"),
			Blk:        v.Int32("blk"),
			TOV:        v.Int32("tov"),
			PF:         v.Int32("pf"),
			FGM:        v.Int32("fgm"),
			FGA:        v.Int32("fga"),
			FG3M:       v.Int32("fg3m"),
			FG3A:       v.Int32("fg3a"),
			FTM:        v.Int32("ftm"),
			FTA:        v.Int32("fta"),
			PlusMinus:  v.Int32Ptr("plus_minus"),
		}
		line := Line{
			Pts:  float64(row.Pts),
			FGM:  float64(row.FGM),
			FGA:  float64(row.FGA),
			FG3M: float64(row.FG3M),
			FTA:  float64(row.FTA),
			TOV:  float64(row.TOV),
		}
		row.TSPct = TrueShooting(line)
		row.EFGPct = EffectiveFG(line)

		if team, ok := gc.Team(row.GameID, row.TeamID); ok {
			if limit := team.Minutes / 5; row.Minutes > limit+0.5 {
				b.drop(&schema.ValidationError{Entity: b.Task.Entity, Field: "min", Value: row.Minutes, Reason: fmt.Sprintf("exceeds game length of %g minutes", limit)})
				continue
			}
			opp := team.OpponentTeamID
			row.OpponentTeamID = &opp
			row.Pace = team.Pace
			row.UsagePct = Usage(line, row.Minutes, gameLine(team), team.Minutes)
			row.OffRating = OnFloorRating(float64(row.Pts), row.Minutes, team.Possessions, team.Minutes)
			if team.Pace == nil && team.Status != schema.GameScheduled && !degraded[row.GameID] {
				degraded[row.GameID] = true
				b.warnf("degraded: game %d team %d has no opponent totals, pace left null", row.GameID, row.TeamID)
			}
		} else if !degraded[row.GameID] {
			degraded[row.GameID] = true
			b.warnf("degraded: no game context for game %d, usage and pace left null", row.GameID)
		}

		out = append(out, row)
		b.Observations = append(b.Observations, model.Observation{PlayerID: row.PlayerID, TeamID: row.TeamID, Date: b.Task.Date})
	}
	return out
}

// --------------------------------------------------------------------------
// Team box scores
// --------------------------------------------------------------------------

func (t *Transformer) teamStats(b *Batch, rows []map[string]any, gc *GameContext) []schema.TeamStatRow {
	date, season := model.FormatDate(b.Task.Date), b.Task.Season()
	seen := map[teamGame]bool{}
	out := make([]schema.TeamStatRow, 0, len(rows))

	for _, raw := range rows {
		v, ok := validate(b, raw)
		if !ok || dedupe(b, seen, teamGame{v.Int("game_id"), v.Int("team_id")}) {
			continue
		}

		row := schema.TeamStatRow{
			GameID:    v.Int("game_id"),
			GameDate:  date,
			Season:    season,
			TeamID:    v.Int("team_id"),
			Reb:       v.Int32("reb"),
			Ast:       v.Int32("ast"),
			Stl:       v.Int32("stl"),
			Blk:       v.Int32("blk"),
			TOV:       v.Int32("tov"),
			PF:        v.Int32("pf"),
			PlusMinus: v.Int32Ptr("plus_minus"),
		}

		team, ok := gc.Team(row.GameID, row.TeamID)
		if !ok {
			b.warnf("degraded: no game context for game %d team %d, advanced metrics left null", row.GameID, row.TeamID)
			out = append(out, row)
			continue
		}
		opp, home := team.OpponentTeamID, team.IsHome
		row.OpponentTeamID, row.IsHome = &opp, &home

		line := gameLine(team)
		line.AST, line.TOV = float64(row.Ast), float64(row.TOV)
		row.EFGPct = EffectiveFG(line)
		row.TSPct = TrueShooting(line)
		row.AstRatio = AssistRatio(line)
		row.Pace = team.Pace
		row.OffRating = team.OffRating
		row.DefRating = team.DefRating
		row.NetRating = team.NetRating
		if team.Pace == nil && team.Status != schema.GameScheduled {
			b.warnf("degraded: game %d team %d has no opponent totals", row.GameID, row.TeamID)
		}
		out = append(out, row)
	}
	return out
}

// --------------------------------------------------------------------------
// Standings
// --------------------------------------------------------------------------

func (t *Transformer) standings(b *Batch, rows []map[string]any) []schema.StandingRow {
	date, season := model.FormatDate(b.Task.Date), b.Task.Season()
	seen := map[int64]bool{}
	out := make([]schema.StandingRow, 0, len(rows))

	for _, raw := range rows {
		v, ok := validate(b, raw)
		if !ok || dedupe(b, seen, v.Int("team_id")) {
			continue
		}
		wins, losses := v.Int32("wins"), v.Int32("losses")
		out = append(out, schema.StandingRow{
			SnapshotDate:   date,
			Season:         season,
			TeamID:         v.Int("team_id"),
			Conference:     v.String("conference"),
			Division:       v.String("division"),
			ConferenceRank: v.Int32("conference_rank"),
			Wins:           wins,
			Losses:         losses,
			WinPct:         ratio(float64(wins), float64(wins+losses)),
			GamesBack:      v.FloatPtr("games_back"),
			Streak:         v.String("streak"),
			Last10:         v.String("last_10"),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Conference != out[j].Conference {
			return out[i].Conference < out[j].Conference
		}
		return out[i].ConferenceRank < out[j].ConferenceRank
	})
	return out
}

// --------------------------------------------------------------------------
// Shot zones
// --------------------------------------------------------------------------

type zoneKey struct {
	gameID, teamID, playerID int64
	basic, area, rng         string
}

// shotZones aggregates shot-level rows into per-zone totals. A date with
// no shots yields no rows.
func (t *Transformer) shotZones(b *Batch, rows []map[string]any) []schema.ShotZoneRow {
	date, season := model.FormatDate(b.Task.Date), b.Task.Season()
	agg := map[zoneKey]*schema.ShotZoneRow{}

	for _, raw := range rows {
		v, ok := validate(b, raw)
		if !ok {
			continue
		}
		k := zoneKey{
			gameID:   v.Int("game_id"),
			teamID:   v.Int("team_id"),
			playerID: v.Int("player_id"),
			basic:    v.String("zone_basic"),
			area:     v.String("zone_area"),
			rng:      v.String("zone_range"),
		}
		z, ok := agg[k]
		if !ok {
			z = &schema.ShotZoneRow{
				GameID:    k.gameID,
				GameDate:  date,
				Season:    season,
				TeamID:    k.teamID,
				PlayerID:  k.playerID,
				ZoneBasic: k.basic,
				ZoneArea:  k.area,
				ZoneRange: k.rng,
			}
			agg[k] = z
		}
		z.FGA++
		if v.Bool("made") {
			z.FGM++
		}
	}

	out := make([]schema.ShotZoneRow, 0, len(agg))
	for _, z := range agg {
		z.FGPct = float64(z.FGM) / float64(z.FGA)
		out = append(out, *z)
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.GameID != c.GameID {
			return a.GameID < c.GameID
		}
		if a.PlayerID != c.PlayerID {
			return a.PlayerID < c.PlayerID
		}
		if a.ZoneBasic != c.ZoneBasic {
			return a.ZoneBasic < c.ZoneBasic
		}
		if a.ZoneArea != c.ZoneArea {
			return a.ZoneArea < c.ZoneArea
		}
		return a.ZoneRange < c.ZoneRange
	})
	return out
}
