package transform

// Derived metric formulas. Every function returns nil when a denominator
// is zero or negative, so callers store null rather than Inf or NaN.

// Line is the shooting and ball-control line the formulas read.
type Line struct {
	Pts, FGM, FGA, FG3M, FTA, OREB, TOV, AST float64
}

func ratio(num, den float64) *float64 {
	if den <= 0 {
		return nil
	}
	v := num / den
	return &v
}

// Possessions estimates possessions: FGA + 0.44·FTA − OREB + TOV.
func Possessions(l Line) *float64 {
	p := l.FGA + 0.44*l.FTA - l.OREB + l.TOV
	if p <= 0 {
		return nil
	}
	return &p
}

// Pace is possessions per 48 minutes, averaged over both teams.
// teamMinutes is the summed minutes of a team's players (240 in regulation).
func Pace(poss, oppPoss *float64, teamMinutes float64) *float64 {
	if poss == nil || oppPoss == nil {
		return nil
	}
	return ratio(48*((*poss+*oppPoss)/2), teamMinutes/5)
}

// Rating is points per 100 possessions.
func Rating(pts float64, poss *float64) *float64 {
	if poss == nil {
		return nil
	}
	return ratio(100*pts, *poss)
}

// NetRating is offensive minus defensive rating.
func NetRating(off, def *float64) *float64 {
	if off == nil || def == nil {
		return nil
	}
	v := *off - *def
	return &v
}

// TrueShooting is pts / (2·(FGA + 0.44·FTA)).
func TrueShooting(l Line) *float64 {
	return ratio(l.Pts, 2*(l.FGA+0.44*l.FTA))
}

// EffectiveFG is (FGM + 0.5·FG3M) / FGA.
func EffectiveFG(l Line) *float64 {
	return ratio(l.FGM+0.5*l.FG3M, l.FGA)
}

// Usage is the share of team plays a player used while on the floor:
// 100·((FGA + 0.44·FTA + TOV)·(teamMin/5)) / (min·(tFGA + 0.44·tFTA + tTOV)).
func Usage(player Line, minutes float64, team Line, teamMinutes float64) *float64 {
	return ratio(
		100*((player.FGA+0.44*player.FTA+player.TOV)*(teamMinutes/5)),
		minutes*(team.FGA+0.44*team.FTA+team.TOV),
	)
}

// OnFloorRating approximates points produced per 100 team possessions
// while the player is on the floor.
func OnFloorRating(pts, minutes float64, teamPoss *float64, teamMinutes float64) *float64 {
	if teamPoss == nil || teamMinutes <= 0 {
		return nil
	}
	return ratio(100*pts, *teamPoss*(minutes/(teamMinutes/5)))
}

// AssistRatio is assists per 100 plays: 100·AST / (FGA + 0.44·FTA + AST + TOV).
func AssistRatio(l Line) *float64 {
	return ratio(100*l.AST, l.FGA+0.44*l.FTA+l.AST+l.TOV)
}

// TeamMinutes returns regulation 240 plus 25 per overtime period.
func TeamMinutes(periods int32) float64 {
	ot := periods - 4
	if ot < 0 {
		ot = 0
	}
	return 240 + 25*float64(ot)
}
