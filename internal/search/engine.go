package search

import (
	"sync"
	"time"

	"github.com/liveopshq/opscal/internal/dates"
	"github.com/liveopshq/opscal/internal/event"
	"github.com/liveopshq/opscal/internal/storage"
)

// DefaultHighlightWindow is how long a selected event's date stays
// highlighted before clearing on its own.
const DefaultHighlightWindow = 5 * time.Second

// Engine owns the global search query and the highlight state, and
// derives the visible event subset from the store through the index.
type Engine struct {
	idx   *Index
	store *storage.Store

	// emptyShowsAll picks the empty-query policy: true lists the
	// whole store when no predicate is active, false lists nothing.
	emptyShowsAll bool

	query   event.SearchQuery
	nextSeq uint64
	window  time.Duration

	mu            sync.Mutex
	highlighted   dates.Date
	hasHighlight  bool
	highlightGen  uint64
	timer         *time.Timer
	onClearExpiry func()
}

// NewEngine builds an engine over store and idx, resetting the index
// to the store's current contents.
func NewEngine(store *storage.Store, idx *Index, emptyShowsAll bool) (*Engine, error) {
	events := store.All()
	if err := idx.Reset(events); err != nil {
		return nil, err
	}
	return &Engine{
		idx:           idx,
		store:         store,
		emptyShowsAll: emptyShowsAll,
		nextSeq:       uint64(len(events)),
		window:        DefaultHighlightWindow,
	}, nil
}

// SetHighlightWindow overrides the highlight expiry window.
func (e *Engine) SetHighlightWindow(d time.Duration) {
	e.window = d
}

// OnHighlightCleared registers a callback fired when a highlight
// expires on its own. Used by the rendering collaborator.
func (e *Engine) OnHighlightCleared(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClearExpiry = fn
}

// SetQuery installs the global query and returns the filtered events.
func (e *Engine) SetQuery(q event.SearchQuery) ([]event.Event, error) {
	e.query = q
	return e.Results()
}

// Query returns the currently installed global query.
func (e *Engine) Query() event.SearchQuery {
	return e.query
}

// Results evaluates the current query: every stored event matching
// the predicate, ascending by date, ties in insertion order.
func (e *Engine) Results() ([]event.Event, error) {
	limit := e.store.Count()
	if limit == 0 {
		return nil, nil
	}
	ids, err := e.idx.Query(e.query, e.emptyShowsAll, limit)
	if err != nil {
		return nil, err
	}
	out := make([]event.Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := e.store.Get(id); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// IndexAdded folds newly stored events into the index, assigning
// monotonically increasing sequence numbers.
func (e *Engine) IndexAdded(events []event.Event) error {
	return e.idx.Add(events, func(event.Event) uint64 {
		seq := e.nextSeq
		e.nextSeq++
		return seq
	})
}

// IndexRemoved drops an event from the index after store removal.
func (e *Engine) IndexRemoved(id string) error {
	return e.idx.Delete(id)
}

// Reindex rebuilds the index from the store's current contents and
// restarts the sequence counter.
func (e *Engine) Reindex() error {
	events := e.store.All()
	if err := e.idx.Reset(events); err != nil {
		return err
	}
	e.nextSeq = uint64(len(events))
	return nil
}

// SelectEvent marks the event's date as highlighted and arms the
// expiry timer. A pending expiry is cancelled first; re-selecting,
// even the same event, restarts the window rather than stacking a
// second timer.
func (e *Engine) SelectEvent(ev event.Event) dates.Date {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	e.highlighted = ev.Date
	e.hasHighlight = true
	e.highlightGen++
	gen := e.highlightGen

	e.timer = time.AfterFunc(e.window, func() {
		e.expireHighlight(gen)
	})
	return ev.Date
}

// expireHighlight clears the highlight only if no newer selection
// superseded the timer that fired.
func (e *Engine) expireHighlight(gen uint64) {
	e.mu.Lock()
	if gen != e.highlightGen {
		e.mu.Unlock()
		return
	}
	e.highlighted = dates.Date{}
	e.hasHighlight = false
	e.timer = nil
	fn := e.onClearExpiry
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Highlighted returns the currently highlighted date, if any.
func (e *Engine) Highlighted() (dates.Date, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.highlighted, e.hasHighlight
}

// ClearHighlight drops the highlight and any pending expiry.
func (e *Engine) ClearHighlight() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.highlightGen++
	e.highlighted = dates.Date{}
	e.hasHighlight = false
}
