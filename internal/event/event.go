// Package event defines the canonical LiveOps event model shared by
// the ingestion pipeline, store and search engine.
package event

import "github.com/liveopshq/opscal/internal/dates"

// Source tags an event's provenance. Informational only, never part
// of identity.
type Source string

const (
	SourceManual  Source = "manual"
	SourceTabular Source = "tabular-import"
	SourceWebhook Source = "webhook-import"
)

// Event is a canonical, persisted calendar event. Events are all-day:
// Date carries no time-of-day. Events are never mutated after
// creation, only deleted.
type Event struct {
	ID     string     `json:"id"`
	Date   dates.Date `json:"date"`
	Title  string     `json:"title"`
	Fair   string     `json:"fair,omitempty"`
	Link   string     `json:"link,omitempty"`
	Source Source     `json:"source,omitempty"`
}

// Key returns the deduplication key. Two events in the store may never
// share it. Fair and Link are deliberately excluded: a re-import that
// differs only in those fields is a duplicate, not an upgrade.
func (e Event) Key() DedupKey {
	return DedupKey{Date: e.Date, Title: e.Title}
}

// DedupKey is the (date, title) identity pair.
type DedupKey struct {
	Date  dates.Date
	Title string
}

// ImportCandidate is a pre-normalization event draft produced by the
// record adapter. DateRaw holds whatever the source carried: a string
// or a numeric spreadsheet serial. Candidates are never persisted.
type ImportCandidate struct {
	DateRaw any
	Title   string
	Fair    string
	Link    string
	Source  Source
}

// SearchQuery is the global filter state. Both fields are optional;
// an empty field disables its clause.
type SearchQuery struct {
	Text    string
	FairTag string
}

// IsEmpty reports whether no predicate is active.
func (q SearchQuery) IsEmpty() bool {
	return q.Text == "" && q.FairTag == ""
}
