// Package search drives the visible subset of the event store: a
// Bleve-backed filter index plus the query and highlight state.
package search

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/liveopshq/opscal/internal/event"
)

// lowerAnalyzer keeps a title as one lowercased term so substring
// matching via regexp queries behaves like lowercase(title)
// contains lowercase(text).
const lowerAnalyzer = "keyword_lower"

// Index wraps a Bleve index over the event store.
type Index struct {
	index bleve.Index
}

// indexedEvent is the projection of an Event held in the index. Seq
// is the insertion sequence used as the ordering tiebreaker.
type indexedEvent struct {
	Title string
	Fair  string
	Date  string
	Seq   float64
}

// Open opens or creates a Bleve index at path.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		m, merr := buildIndexMapping()
		if merr != nil {
			return nil, fmt.Errorf("build mapping: %w", merr)
		}
		idx, err = bleve.New(path, m)
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx}, nil
}

// OpenMemory creates an in-memory index, used by tests and one-shot
// CLI queries.
func OpenMemory() (*Index, error) {
	m, err := buildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("build mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(lowerAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = lowerAnalyzer

	// Fair and Date are exact-match facets, stored verbatim.
	fairField := bleve.NewTextFieldMapping()
	fairField.Analyzer = keyword.Name

	dateField := bleve.NewTextFieldMapping()
	dateField.Analyzer = keyword.Name

	seqField := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("Title", titleField)
	doc.AddFieldMappingsAt("Fair", fairField)
	doc.AddFieldMappingsAt("Date", dateField)
	doc.AddFieldMappingsAt("Seq", seqField)

	im.AddDocumentMapping("_default", doc)
	return im, nil
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// Add indexes events in one batch. seqOf supplies each event's
// insertion sequence.
func (i *Index) Add(events []event.Event, seqOf func(event.Event) uint64) error {
	batch := i.index.NewBatch()
	for _, ev := range events {
		doc := indexedEvent{
			Title: ev.Title,
			Fair:  ev.Fair,
			Date:  ev.Date.String(),
			Seq:   float64(seqOf(ev)),
		}
		if err := batch.Index(ev.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", ev.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Delete removes one event from the index.
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Reset indexes events from scratch, replacing whatever the index
// held. Sequence numbers restart at the events' positions.
func (i *Index) Reset(events []event.Event) error {
	all := bleve.NewMatchAllQuery()
	req := bleve.NewSearchRequestOptions(all, int(^uint(0)>>1), 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return fmt.Errorf("enumerate index: %w", err)
	}

	batch := i.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	for pos, ev := range events {
		doc := indexedEvent{
			Title: ev.Title,
			Fair:  ev.Fair,
			Date:  ev.Date.String(),
			Seq:   float64(pos),
		}
		if err := batch.Index(ev.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", ev.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// Query returns the IDs of events matching q, ascending by date with
// ties broken by insertion sequence. matchAllWhenEmpty decides the
// empty-query policy. limit caps the result size.
func (i *Index) Query(q event.SearchQuery, matchAllWhenEmpty bool, limit int) ([]string, error) {
	bq := buildQuery(q, matchAllWhenEmpty)
	if bq == nil {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bq, limit, 0, false)
	req.SortBy([]string{"Date", "Seq"})

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func buildQuery(q event.SearchQuery, matchAllWhenEmpty bool) query.Query {
	var clauses []query.Query

	if q.Text != "" {
		// Quote the query text so wildcard and regexp characters
		// match literally; the predicate is plain substring.
		rq := bleve.NewRegexpQuery(".*" + regexp.QuoteMeta(strings.ToLower(q.Text)) + ".*")
		rq.SetField("Title")
		clauses = append(clauses, rq)
	}
	if q.FairTag != "" {
		tq := bleve.NewTermQuery(q.FairTag)
		tq.SetField("Fair")
		clauses = append(clauses, tq)
	}

	switch len(clauses) {
	case 0:
		if matchAllWhenEmpty {
			return bleve.NewMatchAllQuery()
		}
		return nil
	case 1:
		return clauses[0]
	default:
		return bleve.NewConjunctionQuery(clauses...)
	}
}

// Count returns the number of indexed events.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
