// Package schema defines the validated row types persisted per entity and
// the field tables used to validate upstream rows before conversion.
//
// Dates are stored as YYYY-MM-DD strings and nullable values as pointers,
// so a partition read back compares equal to the rows that were written.
package schema

// GameRow is one team's line of one game.
type GameRow struct {
	GameID         int64   `parquet:"game_id" json:"game_id"`
	GameDate       string  `parquet:"game_date,dict" json:"game_date"`
	Season         string  `parquet:"season,dict" json:"season"`
	TeamID         int64   `parquet:"team_id" json:"team_id"`
	OpponentTeamID int64   `parquet:"opponent_team_id" json:"opponent_team_id"`
	IsHome         bool    `parquet:"is_home" json:"is_home"`
	Status         string  `parquet:"status,dict" json:"status"`
	Periods        int32   `parquet:"periods" json:"periods"`
	Minutes        float64 `parquet:"minutes" json:"minutes"`
	Pts            int32   `parquet:"pts" json:"pts"`
	FGM            int32   `parquet:"fgm" json:"fgm"`
	FGA            int32   `parquet:"fga" json:"fga"`
	FG3M           int32   `parquet:"fg3m" json:"fg3m"`
	FG3A           int32   `parquet:"fg3a" json:"fg3a"`
	FTM            int32   `parquet:"ftm" json:"ftm"`
	FTA            int32   `parquet:"fta" json:"fta"`
	OREB           int32   `parquet:"oreb" json:"oreb"`
	DREB           int32   `parquet:"dreb" json:"dreb"`
	AST            int32   `parquet:"ast" json:"ast"`
	TOV            int32   `parquet:"tov" json:"tov"`

	Possessions *float64 `parquet:"possessions,optional" json:"possessions"`
	Pace        *float64 `parquet:"pace,optional" json:"pace"`
	OffRating   *float64 `parquet:"off_rating,optional" json:"off_rating"`
	DefRating   *float64 `parquet:"def_rating,optional" json:"def_rating"`
	NetRating   *float64 `parquet:"net_rating,optional" json:"net_rating"`
}

// PlayerStatRow is one player's box score line for one game.
type PlayerStatRow struct {
	GameID         int64   `parquet:"game_id" json:"game_id"`
	GameDate       string  `parquet:"game_date,dict" json:"game_date"`
	Season         string  `parquet:"season,dict" json:"season"`
	PlayerID       int64   `parquet:"player_id" json:"player_id"`
	PlayerName     string  `parquet:"player_name" json:"player_name"`
	TeamID         int64   `parquet:"team_id" json:"team_id"`
	OpponentTeamID *int64  `parquet:"opponent_team_id,optional" json:"opponent_team_id"`
	Starter        bool    `parquet:"starter" json:"starter"`
	Minutes        float64 `parquet:"minutes" json:"minutes"`
	Pts            int32   `parquet:"pts" json:"pts"`
	Reb            int32   `parquet:"reb" json:"reb"`
	Ast            int32   `parquet:"ast" json:"ast"`
	Stl            int32   `parquet:"stl" json:"stl"`
	Blk            int32   `parquet:"blk" json:"blk"`
	TOV            int32   `parquet:"tov" json:"tov"`
	PF             int32   `parquet:"pf" json:"pf"`
	FGM            int32   `parquet:"fgm" json:"fgm"`
	FGA            int32   `parquet:"fga" json:"fga"`
	FG3M           int32   `parquet:"fg3m" json:"fg3m"`
	FG3A           int32   `parquet:"fg3a" json:"fg3a"`
	FTM            int32   `parquet:"ftm" json:"ftm"`
	FTA            int32   `parquet:"fta" json:"fta"`
	PlusMinus      *int32  `parquet:"plus_minus,optional" json:"plus_minus"`

	TSPct     *float64 `parquet:"ts_pct,optional" json:"ts_pct"`
	EFGPct    *float64 `parquet:"efg_pct,optional" json:"efg_pct"`
	UsagePct  *float64 `parquet:"usage_pct,optional" json:"usage_pct"`
	Pace      *float64 `parquet:"pace,optional" json:"pace"`
	OffRating *float64 `parquet:"off_rating,optional" json:"off_rating"`
}

// TeamStatRow is one team's advanced line for one game.
type TeamStatRow struct {
	GameID         int64  `parquet:"game_id" json:"game_id"`
	GameDate       string `parquet:"game_date,dict" json:"game_date"`
	Season         string `parquet:"season,dict" json:"season"`
	TeamID         int64  `parquet:"team_id" json:"team_id"`
	OpponentTeamID *int64 `parquet:"opponent_team_id,optional" json:"opponent_team_id"`
	IsHome         *bool  `parquet:"is_home,optional" json:"is_home"`
	Reb            int32  `parquet:"reb" json:"reb"`
	Ast            int32  `parquet:"ast" json:"ast"`
	Stl            int32  `parquet:"stl" json:"stl"`
	Blk            int32  `parquet:"blk" json:"blk"`
	TOV            int32  `parquet:"tov" json:"tov"`
	PF             int32  `parquet:"pf" json:"pf"`
	PlusMinus      *int32 `parquet:"plus_minus,optional" json:"plus_minus"`

	Pace      *float64 `parquet:"pace,optional" json:"pace"`
	OffRating *float64 `parquet:"off_rating,optional" json:"off_rating"`
	DefRating *float64 `parquet:"def_rating,optional" json:"def_rating"`
	NetRating *float64 `parquet:"net_rating,optional" json:"net_rating"`
	EFGPct    *float64 `parquet:"efg_pct,optional" json:"efg_pct"`
	TSPct     *float64 `parquet:"ts_pct,optional" json:"ts_pct"`
	AstRatio  *float64 `parquet:"ast_ratio,optional" json:"ast_ratio"`
}

// StandingRow is one team's standing as of a snapshot date.
type StandingRow struct {
	SnapshotDate   string   `parquet:"snapshot_date,dict" json:"snapshot_date"`
	Season         string   `parquet:"season,dict" json:"season"`
	TeamID         int64    `parquet:"team_id" json:"team_id"`
	Conference     string   `parquet:"conference,dict" json:"conference"`
	Division       string   `parquet:"division,dict" json:"division"`
	ConferenceRank int32    `parquet:"conference_rank" json:"conference_rank"`
	Wins           int32    `parquet:"wins" json:"wins"`
	Losses         int32    `parquet:"losses" json:"losses"`
	WinPct         *float64 `parquet:"win_pct,optional" json:"win_pct"`
	GamesBack      *float64 `parquet:"games_back,optional" json:"games_back"`
	Streak         string   `parquet:"streak" json:"streak"`
	Last10         string   `parquet:"last_10" json:"last_10"`
}

// ShotZoneRow aggregates one player's shots in one zone of one game.
type ShotZoneRow struct {
	GameID    int64   `parquet:"game_id" json:"game_id"`
	GameDate  string  `parquet:"game_date,dict" json:"game_date"`
	Season    string  `parquet:"season,dict" json:"season"`
	TeamID    int64   `parquet:"team_id" json:"team_id"`
	PlayerID  int64   `parquet:"player_id" json:"player_id"`
	ZoneBasic string  `parquet:"zone_basic,dict" json:"zone_basic"`
	ZoneArea  string  `parquet:"zone_area,dict" json:"zone_area"`
	ZoneRange string  `parquet:"zone_range,dict" json:"zone_range"`
	FGM       int32   `parquet:"fgm" json:"fgm"`
	FGA       int32   `parquet:"fga" json:"fga"`
	FGPct     float64 `parquet:"fg_pct" json:"fg_pct"`
}

// TeamRow is one franchise in the teams dimension.
type TeamRow struct {
	TeamID       int64  `parquet:"team_id" json:"team_id"`
	Abbreviation string `parquet:"abbreviation" json:"abbreviation"`
	City         string `parquet:"city" json:"city"`
	Name         string `parquet:"name" json:"name"`
	FullName     string `parquet:"full_name" json:"full_name"`
	Conference   string `parquet:"conference,dict" json:"conference"`
	Division     string `parquet:"division,dict" json:"division"`
}

// PlayerRow is one active player in the players dimension.
type PlayerRow struct {
	PlayerID  int64  `parquet:"player_id" json:"player_id"`
	FirstName string `parquet:"first_name" json:"first_name"`
	LastName  string `parquet:"last_name" json:"last_name"`
	FullName  string `parquet:"full_name" json:"full_name"`
	Position  string `parquet:"position,dict" json:"position"`
	TeamID    *int64 `parquet:"team_id,optional" json:"team_id"`
	IsActive  bool   `parquet:"is_active" json:"is_active"`
}

// PlayerTeamHistoryRow is the team a player was last seen with, as of a
// snapshot date.
type PlayerTeamHistoryRow struct {
	SnapshotDate string `parquet:"snapshot_date,dict" json:"snapshot_date"`
	Season       string `parquet:"season,dict" json:"season"`
	PlayerID     int64  `parquet:"player_id" json:"player_id"`
	TeamID       int64  `parquet:"team_id" json:"team_id"`
	LastSeen     string `parquet:"last_seen" json:"last_seen"`
}
