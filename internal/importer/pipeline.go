// Package importer orchestrates record adaptation, date
// normalization and deduplication over one import batch, committing
// to the event store atomically.
package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/liveopshq/opscal/internal/dates"
	"github.com/liveopshq/opscal/internal/event"
	"github.com/liveopshq/opscal/internal/ingest"
	"github.com/liveopshq/opscal/internal/storage"
)

// Stats reports one batch: Imported + Skipped always equals the
// number of import candidates the batch produced, which can exceed
// the number of raw rows when webhook records fan out.
type Stats struct {
	Imported int
	Skipped  int
}

// Pipeline turns raw records into stored events.
type Pipeline struct {
	store  *storage.Store
	logger *slog.Logger

	// now supplies the reference year for year-less date forms.
	now func() time.Time
}

// New creates a pipeline over the given store.
func New(store *storage.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: store, logger: logger, now: time.Now}
}

// ImportBatch runs every record through the adapter and normalizer,
// deduplicates on (date, title) against both the store and the batch
// itself, then commits all accepted events in one atomic store add
// followed by one snapshot write. Per-candidate failures (bad date,
// duplicate key) are counted as skipped and never abort the batch.
func (p *Pipeline) ImportBatch(records []ingest.RawRecord, src event.Source) (Stats, error) {
	refYear := p.now().Year()
	stats := Stats{}

	var staged []event.Event
	seen := make(map[event.DedupKey]struct{})

	for _, rec := range records {
		for _, cand := range ingest.Adapt(rec, src) {
			date, err := dates.Normalize(cand.DateRaw, refYear)
			if err != nil {
				stats.Skipped++
				p.logger.Debug("skipping candidate", "title", cand.Title, "reason", err)
				continue
			}

			key := event.DedupKey{Date: date, Title: cand.Title}
			if _, dup := seen[key]; dup {
				stats.Skipped++
				continue
			}
			if p.store.Contains(key) {
				stats.Skipped++
				continue
			}

			seen[key] = struct{}{}
			staged = append(staged, event.Event{
				ID:     uuid.NewString(),
				Date:   date,
				Title:  cand.Title,
				Fair:   cand.Fair,
				Link:   cand.Link,
				Source: cand.Source,
			})
			stats.Imported++
		}
	}

	if len(staged) > 0 {
		if err := p.store.Add(staged...); err != nil {
			return Stats{}, fmt.Errorf("commit batch: %w", err)
		}
	}

	p.logger.Info("import batch complete",
		"source", string(src), "imported", stats.Imported, "skipped", stats.Skipped)
	return stats, nil
}

// ImportFile reads a CSV or workbook file and imports its rows.
// Unsupported extensions and unparseable files fail the whole batch
// with nothing committed.
func (p *Pipeline) ImportFile(path string) (Stats, error) {
	records, err := ingest.ReadFile(path)
	if err != nil {
		return Stats{}, err
	}
	return p.ImportBatch(records, event.SourceTabular)
}

// AddManual imports a single hand-entered event, treated as a
// one-row batch. The date accepts any normalizer form.
func (p *Pipeline) AddManual(dateRaw, title, fair, link string) (Stats, error) {
	rec := ingest.Tabular(dateRaw, title, fair, link)
	return p.ImportBatch([]ingest.RawRecord{rec}, event.SourceManual)
}

// IsBatchFailure reports whether err is one of the abort-the-batch
// errors rather than a per-row condition.
func IsBatchFailure(err error) bool {
	var parseErr *ingest.ParseError
	return errors.Is(err, ingest.ErrInvalidFile) || errors.As(err, &parseErr)
}
