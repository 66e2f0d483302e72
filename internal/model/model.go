// Package model defines the domain types shared by every stage of the
// ingestion engine: entity types, dates and seasons, tasks and ledger entries.
//
// These types are the contract between the planner, the fetcher, the
// transformer, the writer and the orchestrator.
package model

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Entity types
// --------------------------------------------------------------------------

// EntityType names one kind of ingested dataset.
type EntityType string

const (
	EntityGame       EntityType = "game"
	EntityPlayerStat EntityType = "player_stat"
	EntityTeamStat   EntityType = "team_stat"
	EntityStanding   EntityType = "standing"
	EntityShotChart  EntityType = "shot_chart"
)

// EntityPriority is the fixed scheduling order within a date. Games come
// first so later entities can read box-score context.
var EntityPriority = []EntityType{
	EntityGame,
	EntityPlayerStat,
	EntityTeamStat,
	EntityStanding,
	EntityShotChart,
}

// Datasets written outside the task ledger. They are not valid task
// entities.
const (
	// DatasetTeams is the franchise dimension, replaced whole.
	DatasetTeams EntityType = "teams"
	// DatasetPlayers is the active player dimension, replaced whole.
	DatasetPlayers EntityType = "players"
	// DatasetPlayerTeamHistory is a daily snapshot of each player's team.
	DatasetPlayerTeamHistory EntityType = "player_team_history"
)

// Dimensions are the undated datasets refreshed in full.
var Dimensions = []EntityType{DatasetTeams, DatasetPlayers}

// Rank returns the entity's position in EntityPriority, or -1.
func (e EntityType) Rank() int {
	for i, p := range EntityPriority {
		if p == e {
			return i
		}
	}
	return -1
}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool { return e.Rank() >= 0 }

// ParseEntityType parses a user-supplied entity name.
func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return e, nil
}

// --------------------------------------------------------------------------
// Dates and seasons
// --------------------------------------------------------------------------

// DateLayout is the canonical date format used in params, keys and rows.
const DateLayout = "2006-01-02"

// Day truncates t to a calendar date at UTC midnight, keeping the calendar
// day as seen in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// SeasonFor returns the NBA season label ("2025-26") a date belongs to.
// October or later starts a new season.
func SeasonFor(t time.Time) string {
	year := t.Year()
	if t.Month() < time.October {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange builds a normalized range, rejecting From after To.
func NewDateRange(from, to time.Time) (DateRange, error) {
	r := DateRange{From: Day(from), To: Day(to)}
	if r.From.After(r.To) {
		return DateRange{}, fmt.Errorf("invalid date range: %s is after %s", FormatDate(r.From), FormatDate(r.To))
	}
	return r, nil
}

// Days returns every date in the range in ascending order.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := r.From; !d.After(r.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// String renders the range as "from..to".
func (r DateRange) String() string {
	return FormatDate(r.From) + ".." + FormatDate(r.To)
}

// --------------------------------------------------------------------------
// Tasks
// --------------------------------------------------------------------------

// TaskReason records why the planner scheduled a task.
type TaskReason string

const (
	ReasonScheduled       TaskReason = "scheduled"        // no ledger entry yet
	ReasonRetry           TaskReason = "retry"            // previous attempt failed or never finished
	ReasonLive            TaskReason = "live"             // complete but the day is not yet stable
	ReasonTradeCorrection TaskReason = "trade_correction" // reopened by trade detection
)

// Task is one unit of ingestion work: a single entity type for a single date.
// Tasks are immutable once planned.
type Task struct {
	Date   time.Time
	Entity EntityType
	Reason TaskReason
}

// Key returns the ledger key of the task.
func (t Task) Key() Key { return Key{Entity: t.Entity, Date: FormatDate(t.Date)} }

// Season returns the season the task's date belongs to.
func (t Task) Season() string { return SeasonFor(t.Date) }

// String renders the task for logs and reports.
func (t Task) String() string {
	if t.Date.IsZero() {
		return string(t.Entity)
	}
	return fmt.Sprintf("%s@%s", t.Entity, FormatDate(t.Date))
}

// Key identifies a ledger entry and a partition within a season.
type Key struct {
	Entity EntityType
	Date   string
}

// --------------------------------------------------------------------------
// Ledger entries
// --------------------------------------------------------------------------

// Status is the durable ingestion state of an (entity, date) pair.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// LedgerEntry is the ledger's record for one (entity, date) pair.
type LedgerEntry struct {
	Entity        EntityType `json:"entity_type"`
	Date          string     `json:"date"`
	Status        Status     `json:"status"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
	AttemptCount  int        `json:"attempt_count"`
	LastRunID     string     `json:"last_run_id,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Affiliation is the last recorded team of a player.
type Affiliation struct {
	PlayerID int64
	TeamID   int64
	LastSeen time.Time
	Season   string
}

// Observation is a player seen playing for a team on a date.
type Observation struct {
	PlayerID int64
	TeamID   int64
	Date     time.Time
}

// --------------------------------------------------------------------------
// Partitions
// --------------------------------------------------------------------------

// PartitionKey addresses one unit of atomic storage replacement.
type PartitionKey struct {
	Entity EntityType
	Season string
	Date   time.Time
}

// PartitionFor returns the partition key written by a task.
func PartitionFor(t Task) PartitionKey {
	return PartitionKey{Entity: t.Entity, Season: t.Season(), Date: t.Date}
}

// DimensionKey returns the key of an undated dataset.
func DimensionKey(entity EntityType) PartitionKey {
	return PartitionKey{Entity: entity}
}

// SnapshotKey returns the key of a dataset snapshotted on date.
func SnapshotKey(entity EntityType, date time.Time) PartitionKey {
	return PartitionKey{Entity: entity, Season: SeasonFor(date), Date: Day(date)}
}

// ObjectKey returns the storage key of the partition, Hive style.
func (k PartitionKey) ObjectKey() string {
	switch {
	case k.Date.IsZero():
		return fmt.Sprintf("%s/data.parquet", k.Entity)
	case k.Entity == DatasetPlayerTeamHistory:
		return fmt.Sprintf("%s/season=%s/snapshot_date=%s/data.parquet", k.Entity, k.Season, FormatDate(k.Date))
	}
	return fmt.Sprintf("%s/season=%s/game_date=%s/data.parquet", k.Entity, k.Season, FormatDate(k.Date))
}

// String renders the key for logs.
func (k PartitionKey) String() string { return k.ObjectKey() }
