package transform

import "github.com/albapepper/scoracle-lake/internal/schema"

type teamGame struct {
	gameID int64
	teamID int64
}

// GameContext indexes a date's game rows so player and team lines can
// read team totals, opponents and pace.
type GameContext struct {
	rows map[teamGame]schema.GameRow
}

// NewGameContext indexes rows by (game, team).
func NewGameContext(rows []schema.GameRow) *GameContext {
	gc := &GameContext{rows: make(map[teamGame]schema.GameRow, len(rows))}
	for _, r := range rows {
		gc.rows[teamGame{r.GameID, r.TeamID}] = r
	}
	return gc
}

// Len returns the number of indexed team lines.
func (gc *GameContext) Len() int {
	if gc == nil {
		return 0
	}
	return len(gc.rows)
}

// Team returns the game row of team in game.
func (gc *GameContext) Team(gameID, teamID int64) (schema.GameRow, bool) {
	if gc == nil {
		return schema.GameRow{}, false
	}
	r, ok := gc.rows[teamGame{gameID, teamID}]
	return r, ok
}

// Opponent returns the game row of team's opponent in game.
func (gc *GameContext) Opponent(gameID, teamID int64) (schema.GameRow, bool) {
	own, ok := gc.Team(gameID, teamID)
	if !ok {
		return schema.GameRow{}, false
	}
	return gc.Team(gameID, own.OpponentTeamID)
}

func gameLine(r schema.GameRow) Line {
	return Line{
		Pts:  float64(r.Pts),
		FGM:  float64(r.FGM),
		FGA:  float64(r.FGA),
		FG3M: float64(r.FG3M),
		FTA:  float64(r.FTA),
		OREB: float64(r.OREB),
		TOV:  float64(r.TOV),
		AST:  float64(r.AST),
	}
}
