// Package provider holds the upstream-facing types shared by stats API
// clients: raw page records, fetch errors and the retry policy.
package provider

import (
	"time"

	"github.com/albapepper/scoracle-lake/internal/model"
)

// RawRecord is one fetched page of upstream rows, still undecoded.
type RawRecord struct {
	Payload    []byte // JSON array of row objects
	NextCursor string // empty on the last page
	Provenance Provenance
}

// Provenance records where a page came from.
type Provenance struct {
	Task      model.Task
	Endpoint  string
	Cursor    string
	Page      int
	FetchedAt time.Time
	Attempts  int
}
