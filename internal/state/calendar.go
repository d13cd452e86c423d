// Package state ties the store, import pipeline and search engine
// together as one explicitly owned calendar state. Rendering
// collaborators subscribe to change notifications instead of reading
// globals.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/liveopshq/opscal/internal/dates"
	"github.com/liveopshq/opscal/internal/event"
	"github.com/liveopshq/opscal/internal/importer"
	"github.com/liveopshq/opscal/internal/ingest"
	"github.com/liveopshq/opscal/internal/search"
	"github.com/liveopshq/opscal/internal/storage"
	"github.com/liveopshq/opscal/internal/webhook"
)

// ErrFetchInProgress rejects a webhook refresh while a previous fetch
// is still outstanding.
var ErrFetchInProgress = errors.New("webhook fetch already in progress")

// Calendar is the single owner of mutable calendar state. All
// operations are serialized; readers never observe a partially
// applied import batch.
type Calendar struct {
	mu sync.Mutex

	store    *storage.Store
	engine   *search.Engine
	pipeline *importer.Pipeline
	hook     *webhook.Client
	hookURL  string
	logger   *slog.Logger

	// fetching is the busy flag for the one suspending operation.
	fetching atomic.Bool

	subscribers []func()
}

// New wires a Calendar over its collaborators. hookURL may be empty
// when no webhook source is configured.
func New(store *storage.Store, engine *search.Engine, pipeline *importer.Pipeline, hook *webhook.Client, hookURL string, logger *slog.Logger) *Calendar {
	return &Calendar{
		store:    store,
		engine:   engine,
		pipeline: pipeline,
		hook:     hook,
		hookURL:  hookURL,
		logger:   logger,
	}
}

// Subscribe registers a state-changed callback. Callbacks run after
// every committed mutation, outside the state lock.
func (c *Calendar) Subscribe(fn func()) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.mu.Unlock()

	c.engine.OnHighlightCleared(c.notify)
}

func (c *Calendar) notify() {
	c.mu.Lock()
	subs := make([]func(), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// ImportFile imports a CSV or workbook file.
func (c *Calendar) ImportFile(path string) (importer.Stats, error) {
	records, err := ingest.ReadFile(path)
	if err != nil {
		return importer.Stats{}, err
	}
	return c.ImportRecords(records, event.SourceTabular)
}

// AddManual stores one hand-entered event as a one-row import.
func (c *Calendar) AddManual(dateRaw, title, fair, link string) (importer.Stats, error) {
	rec := ingest.Tabular(dateRaw, title, fair, link)
	return c.ImportRecords([]ingest.RawRecord{rec}, event.SourceManual)
}

// ImportRecords runs one batch through the pipeline and folds the
// committed events into the search index.
func (c *Calendar) ImportRecords(records []ingest.RawRecord, src event.Source) (importer.Stats, error) {
	c.mu.Lock()
	before := c.store.Count()
	stats, err := c.pipeline.ImportBatch(records, src)
	if err != nil {
		c.mu.Unlock()
		return importer.Stats{}, err
	}
	added := c.store.All()[before:]
	if len(added) > 0 {
		if err := c.engine.IndexAdded(added); err != nil {
			// The batch is already committed and snapshotted, so
			// rebuild rather than leave the search view stale.
			if rerr := c.engine.Reindex(); rerr != nil {
				c.mu.Unlock()
				return stats, fmt.Errorf("index import batch: %w", err)
			}
			c.logger.Warn("incremental indexing failed, index rebuilt", "error", err)
		}
	}
	c.mu.Unlock()

	if len(added) > 0 {
		c.notify()
	}
	return stats, nil
}

// FetchWebhook pulls the configured webhook endpoint and imports its
// records. While one fetch is outstanding, further calls fail with
// ErrFetchInProgress; there is no cancellation beyond ctx.
func (c *Calendar) FetchWebhook(ctx context.Context) (importer.Stats, error) {
	if c.hookURL == "" {
		return importer.Stats{}, errors.New("no webhook URL configured")
	}
	if !c.fetching.CompareAndSwap(false, true) {
		return importer.Stats{}, ErrFetchInProgress
	}
	defer c.fetching.Store(false)

	records, err := c.hook.Fetch(ctx, c.hookURL)
	if err != nil {
		return importer.Stats{}, err
	}
	return c.ImportRecords(records, event.SourceWebhook)
}

// Fetching reports whether a webhook fetch is outstanding.
func (c *Calendar) Fetching() bool {
	return c.fetching.Load()
}

// Search installs the global query and returns the filtered events.
func (c *Calendar) Search(q event.SearchQuery) ([]event.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.SetQuery(q)
}

// Results re-evaluates the currently installed query.
func (c *Calendar) Results() ([]event.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Results()
}

// SelectEvent highlights the event's date and returns it along with
// the current filtered list.
func (c *Calendar) SelectEvent(id string) ([]event.Event, dates.Date, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev, ok := c.store.Get(id)
	if !ok {
		return nil, dates.Date{}, errors.New("unknown event " + id)
	}
	date := c.engine.SelectEvent(ev)
	filtered, err := c.engine.Results()
	return filtered, date, err
}

// Highlighted returns the highlighted date, if one is active.
func (c *Calendar) Highlighted() (dates.Date, bool) {
	return c.engine.Highlighted()
}

// EventsOn is the day-detail query: every stored event on the given
// date, unaffected by the global query, optionally narrowed by a
// local case-insensitive title filter.
func (c *Calendar) EventsOn(date dates.Date, localText string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(localText))
	var out []event.Event
	for _, ev := range c.store.All() {
		if ev.Date != date {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(ev.Title), needle) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Remove deletes one event from the store and the index. Callers
// re-derive their views afterwards; subscribers are notified.
func (c *Calendar) Remove(id string) (bool, error) {
	c.mu.Lock()
	removed, err := c.store.Remove(id)
	if err == nil && removed {
		err = c.engine.IndexRemoved(id)
	}
	c.mu.Unlock()

	if err != nil {
		return false, err
	}
	if removed {
		c.notify()
	}
	return removed, nil
}

// Clear deletes every event.
func (c *Calendar) Clear() error {
	c.mu.Lock()
	err := c.store.RemoveAll()
	if err == nil {
		err = c.engine.Reindex()
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.notify()
	return nil
}

// All returns every stored event in insertion order.
func (c *Calendar) All() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.All()
}

// Fairs returns the categorical filter vocabulary.
func (c *Calendar) Fairs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Fairs()
}

// Month returns the events of one calendar month bucketed by day.
// Order within a day is insertion order; grid placement is purely by
// date bucket.
func (c *Calendar) Month(year, month int) map[int][]event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	buckets := make(map[int][]event.Event)
	for _, ev := range c.store.All() {
		if ev.Date.Year == year && ev.Date.Month == month {
			buckets[ev.Date.Day] = append(buckets[ev.Date.Day], ev)
		}
	}
	return buckets
}

// Summary describes the store for the stats command.
type Summary struct {
	Events    int
	Fairs     int
	BySource  map[event.Source]int
	FirstDate dates.Date
	LastDate  dates.Date
}

// Summarize computes store statistics.
func (c *Calendar) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := c.store.All()
	sum := Summary{
		Events:   len(events),
		Fairs:    len(c.store.Fairs()),
		BySource: make(map[event.Source]int),
	}
	if len(events) == 0 {
		return sum
	}

	sorted := make([]dates.Date, 0, len(events))
	for _, ev := range events {
		sum.BySource[ev.Source]++
		sorted = append(sorted, ev.Date)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	sum.FirstDate = sorted[0]
	sum.LastDate = sorted[len(sorted)-1]
	return sum
}
