package bdl

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/provider"
)

// maxPages guards against an upstream that never stops returning cursors.
const maxPages = 500

// endpoints maps each entity type to its date-filtered list endpoint.
var endpoints = map[model.EntityType]string{
	model.EntityGame:       "/games",
	model.EntityPlayerStat: "/box_scores/players",
	model.EntityTeamStat:   "/box_scores/teams",
	model.EntityStanding:   "/standings",
	model.EntityShotChart:  "/shots",

	model.DatasetTeams:   "/teams",
	model.DatasetPlayers: "/players/active",
}

// Endpoint returns the endpoint serving entity.
func Endpoint(entity model.EntityType) (string, bool) {
	ep, ok := endpoints[entity]
	return ep, ok
}

// Fetcher is the single-page fetch contract Source walks.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) (provider.RawRecord, error)
}

// Source fetches every page of a task's endpoint.
type Source struct {
	fetcher Fetcher
	perPage int
	logger  *slog.Logger
}

// NewSource creates a Source over fetcher.
func NewSource(fetcher Fetcher, perPage int, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if perPage <= 0 {
		perPage = 100
	}
	return &Source{fetcher: fetcher, perPage: perPage, logger: logger}
}

// FetchTask walks the cursor pages of the task's endpoint for its date.
// Dimension tasks carry no date and fetch the whole list.
func (s *Source) FetchTask(ctx context.Context, task model.Task) ([]provider.RawRecord, error) {
	endpoint, ok := Endpoint(task.Entity)
	if !ok {
		fe := provider.Permanent("", fmt.Errorf("no endpoint for entity %q", task.Entity))
		fe.Task = task.String()
		return nil, fe
	}

	params := url.Values{
		"per_page": {strconv.Itoa(s.perPage)},
	}
	if !task.Date.IsZero() {
		params.Set("date", model.FormatDate(task.Date))
	}
	if task.Entity == model.EntityStanding {
		params.Set("season", task.Season())
	}

	var pages []provider.RawRecord
	seen := map[string]bool{}
	for page := 1; ; page++ {
		rec, err := s.fetcher.Fetch(ctx, endpoint, params)
		if err != nil {
			if fe, ok := err.(*provider.FetchError); ok {
				fe.Task = task.String()
			}
			return nil, err
		}
		rec.Provenance.Task = task
		rec.Provenance.Page = page
		pages = append(pages, rec)

		if rec.NextCursor == "" {
			break
		}
		if seen[rec.NextCursor] || page >= maxPages {
			fe := provider.Permanent(endpoint, fmt.Errorf("pagination did not terminate at cursor %s", rec.NextCursor))
			fe.Task = task.String()
			return nil, fe
		}
		seen[rec.NextCursor] = true
		params.Set("cursor", rec.NextCursor)
	}

	s.logger.Debug("fetched task pages", "task", task.String(), "pages", len(pages))
	return pages, nil
}
