package schema

import (
	"fmt"

	"github.com/albapepper/scoracle-lake/internal/model"
)

// RowCheck is a cross-field rule evaluated after every field passed.
type RowCheck struct {
	Field string // reported on failure
	Check func(Values) error
}

// Schema is the validation table of one entity.
type Schema struct {
	Entity model.EntityType
	Fields []FieldSpec
	Checks []RowCheck
}

// For returns the schema of entity.
func For(entity model.EntityType) (Schema, bool) {
	s, ok := registry[entity]
	return s, ok
}

// Field returns the named field spec.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Zone categories used by shot location data.
var ZoneBasic = []string{
	"Restricted Area",
	"In The Paint (Non-RA)",
	"Mid-Range",
	"Left Corner 3",
	"Right Corner 3",
	"Above the Break 3",
	"Backcourt",
}

// Game statuses.
const (
	GameScheduled  = "scheduled"
	GameInProgress = "in_progress"
	GameFinal      = "final"
)

// --------------------------------------------------------------------------
// Field constructors
// --------------------------------------------------------------------------

func id(name string, aliases ...string) FieldSpec {
	return FieldSpec{Name: name, Aliases: aliases, Kind: KindInt, Min: 1, Max: 1 << 53}
}

func count(name string, max float64, aliases ...string) FieldSpec {
	return FieldSpec{Name: name, Aliases: aliases, Kind: KindInt, Min: 0, Max: max}
}

func optional(f FieldSpec) FieldSpec {
	f.Nullable = true
	return f
}

// madeNotAboveAttempted rejects rows where makes exceed attempts.
func madeNotAboveAttempted(made, attempted string) RowCheck {
	return RowCheck{Field: made, Check: func(v Values) error {
		if v.Int(made) > v.Int(attempted) {
			return fmt.Errorf("%s %d exceeds %s %d", made, v.Int(made), attempted, v.Int(attempted))
		}
		return nil
	}}
}

var shootingChecks = []RowCheck{
	madeNotAboveAttempted("fgm", "fga"),
	madeNotAboveAttempted("fg3m", "fg3a"),
	madeNotAboveAttempted("ftm", "fta"),
	madeNotAboveAttempted("fg3m", "fgm"),
	madeNotAboveAttempted("fg3a", "fga"),
}

// --------------------------------------------------------------------------
// Entity schemas
// --------------------------------------------------------------------------

var registry = map[model.EntityType]Schema{
	model.EntityGame: {
		Entity: model.EntityGame,
		Fields: []FieldSpec{
			id("game_id", "id"),
			optional(FieldSpec{Name: "game_date", Aliases: []string{"date"}, Kind: KindString}),
			id("team_id"),
			id("opponent_team_id", "opponent_id"),
			{Name: "is_home", Aliases: []string{"home"}, Kind: KindBool},
			{Name: "status", Kind: KindString, Enum: []string{GameScheduled, GameInProgress, GameFinal}},
			optional(count("periods", 20, "period")),
			optional(FieldSpec{Name: "minutes", Aliases: []string{"min"}, Kind: KindMinutes, Min: 0, Max: 740}),
			count("pts", 250),
			count("fgm", 150),
			count("fga", 200),
			count("fg3m", 100),
			count("fg3a", 150),
			count("ftm", 100),
			count("fta", 120),
			count("oreb", 80),
			count("dreb", 100),
			count("ast", 80),
			count("tov", 60, "turnover"),
		},
		Checks: append([]RowCheck{{Field: "opponent_team_id", Check: func(v Values) error {
			if v.Int("team_id") == v.Int("opponent_team_id") {
				return fmt.Errorf("team %d listed as its own opponent", v.Int("team_id"))
			}
			return nil
		}}}, shootingChecks...),
	},

	model.EntityPlayerStat: {
		Entity: model.EntityPlayerStat,
		Fields: []FieldSpec{
			id("game_id", "game.id"),
			id("player_id", "player.id"),
			optional(FieldSpec{Name: "player_name", Aliases: []string{"name", "player.name"}, Kind: KindString}),
			id("team_id", "team.id"),
			optional(FieldSpec{Name: "starter", Kind: KindBool}),
			// 48 regulation minutes plus up to ten overtimes
			{Name: "min", Aliases: []string{"minutes"}, Kind: KindMinutes, Min: 0, Max: 98},
			count("pts", 100),
			count("reb", 60),
			count("ast", 40),
			count("stl", 20),
			count("blk", 20),
			count("tov", 20, "turnover"),
			count("pf", 6),
			count("fgm", 50),
			count("fga", 80),
			count("fg3m", 30),
			count("fg3a", 50),
			count("ftm", 40),
			count("fta", 50),
			optional(FieldSpec{Name: "plus_minus", Kind: KindInt, Min: -100, Max: 100}),
		},
		Checks: shootingChecks,
	},

	model.EntityTeamStat: {
		Entity: model.EntityTeamStat,
		Fields: []FieldSpec{
			id("game_id", "game.id"),
			id("team_id", "team.id"),
			count("reb", 120),
			count("ast", 80),
			count("stl", 40),
			count("blk", 40),
			count("tov", 60, "turnover"),
			count("pf", 60),
			optional(FieldSpec{Name: "plus_minus", Kind: KindInt, Min: -100, Max: 100}),
		},
	},

	model.EntityStanding: {
		Entity: model.EntityStanding,
		Fields: []FieldSpec{
			id("team_id", "team.id"),
			{Name: "conference", Aliases: []string{"team.conference"}, Kind: KindString, Enum: []string{"East", "West"}},
			optional(FieldSpec{Name: "division", Aliases: []string{"team.division"}, Kind: KindString}),
			{Name: "conference_rank", Aliases: []string{"rank"}, Kind: KindInt, Min: 1, Max: 15},
			count("wins", 82),
			count("losses", 82),
			optional(FieldSpec{Name: "games_back", Aliases: []string{"gb"}, Kind: KindFloat, Min: 0, Max: 82}),
			optional(FieldSpec{Name: "streak", Kind: KindString}),
			optional(FieldSpec{Name: "last_10", Aliases: []string{"l10"}, Kind: KindString}),
		},
		Checks: []RowCheck{{Field: "wins", Check: func(v Values) error {
			if played := v.Int("wins") + v.Int("losses"); played > 82 {
				return fmt.Errorf("%d games played exceeds a season", played)
			}
			return nil
		}}},
	},

	model.EntityShotChart: {
		Entity: model.EntityShotChart,
		Fields: []FieldSpec{
			id("game_id"),
			id("team_id"),
			id("player_id"),
			{Name: "zone_basic", Aliases: []string{"shot_zone_basic"}, Kind: KindString, Enum: ZoneBasic},
			{Name: "zone_area", Aliases: []string{"shot_zone_area"}, Kind: KindString},
			{Name: "zone_range", Aliases: []string{"shot_zone_range"}, Kind: KindString},
			{Name: "made", Aliases: []string{"shot_made", "shot_made_flag"}, Kind: KindBool},
		},
	},
	model.DatasetTeams: {
		Entity: model.DatasetTeams,
		Fields: []FieldSpec{
			id("team_id", "id"),
			{Name: "abbreviation", Kind: KindString},
			optional(FieldSpec{Name: "city", Kind: KindString}),
			optional(FieldSpec{Name: "name", Kind: KindString}),
			optional(FieldSpec{Name: "full_name", Kind: KindString}),
			optional(FieldSpec{Name: "conference", Kind: KindString}),
			optional(FieldSpec{Name: "division", Kind: KindString}),
		},
	},

	model.DatasetPlayers: {
		Entity: model.DatasetPlayers,
		Fields: []FieldSpec{
			id("player_id", "id"),
			{Name: "first_name", Kind: KindString},
			{Name: "last_name", Kind: KindString},
			optional(FieldSpec{Name: "position", Kind: KindString}),
			optional(id("team_id", "team.id")),
		},
	},
}
