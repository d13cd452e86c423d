package search

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/liveopshq/opscal/internal/dates"
	"github.com/liveopshq/opscal/internal/event"
	"github.com/liveopshq/opscal/internal/storage"
)

func mustDate(t *testing.T, iso string) dates.Date {
	t.Helper()
	d, err := dates.ParseISO(iso)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func seedEvents(t *testing.T) []event.Event {
	return []event.Event{
		{ID: "e1", Date: mustDate(t, "2025-03-05"), Title: "Spring Sale", Fair: "SpringFair"},
		{ID: "e2", Date: mustDate(t, "2025-03-05"), Title: "PO 1: Sale A", Fair: "SpringFair"},
		{ID: "e3", Date: mustDate(t, "2025-03-04"), Title: "Album Sale"},
		{ID: "e4", Date: mustDate(t, "2025-03-06"), Title: "Launch Party", Fair: "Autumn"},
	}
}

func testEngine(t *testing.T, emptyShowsAll bool) (*Engine, *storage.Store) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "opscal.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Add(seedEvents(t)...); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	idx, err := OpenMemory()
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	engine, err := NewEngine(store, idx, emptyShowsAll)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, store
}

func ids(events []event.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func assertIDs(t *testing.T, got []event.Event, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("got %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("got %v, want %v", gotIDs, want)
		}
	}
}

func TestTextPredicateIsCaseInsensitiveSubstring(t *testing.T) {
	engine, _ := testEngine(t, true)

	results, err := engine.SetQuery(event.SearchQuery{Text: "SALE"})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	// Ascending by date; the 03-05 tie keeps insertion order.
	assertIDs(t, results, "e3", "e1", "e2")

	results, err = engine.SetQuery(event.SearchQuery{Text: "sale a"})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results, "e2")

	results, err = engine.SetQuery(event.SearchQuery{Text: "nothing matches this"})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results)
}

func TestTextPredicateTreatsMetacharactersLiterally(t *testing.T) {
	engine, store := testEngine(t, true)

	// No seed title contains these characters, so each query must
	// come back empty instead of acting as a pattern.
	for _, text := range []string{"s?le", "*", "s.le", "sal.", "s*e"} {
		results, err := engine.SetQuery(event.SearchQuery{Text: text})
		if err != nil {
			t.Fatalf("set query %q: %v", text, err)
		}
		assertIDs(t, results)
	}

	odd := event.Event{ID: "e5", Date: mustDate(t, "2025-03-07"), Title: "Q?A Night (EU)*"}
	if err := store.Add(odd); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.IndexAdded([]event.Event{odd}); err != nil {
		t.Fatalf("index: %v", err)
	}

	// The same characters still match themselves.
	for _, text := range []string{"q?a", "(eu)*", "Q?A Night"} {
		results, err := engine.SetQuery(event.SearchQuery{Text: text})
		if err != nil {
			t.Fatalf("set query %q: %v", text, err)
		}
		assertIDs(t, results, "e5")
	}
}

func TestFairPredicateIsExactMatch(t *testing.T) {
	engine, _ := testEngine(t, true)

	results, err := engine.SetQuery(event.SearchQuery{FairTag: "SpringFair"})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results, "e1", "e2")

	// Substrings of a fair tag never match.
	results, err = engine.SetQuery(event.SearchQuery{FairTag: "Spring"})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results)
}

func TestCombinedPredicateIsConjunction(t *testing.T) {
	engine, _ := testEngine(t, true)

	results, err := engine.SetQuery(event.SearchQuery{Text: "sale", FairTag: "SpringFair"})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results, "e1", "e2")
}

func TestEmptyQueryPolicyShowAll(t *testing.T) {
	engine, _ := testEngine(t, true)

	results, err := engine.SetQuery(event.SearchQuery{})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results, "e3", "e1", "e2", "e4")
}

func TestEmptyQueryPolicyShowNone(t *testing.T) {
	engine, _ := testEngine(t, false)

	results, err := engine.SetQuery(event.SearchQuery{})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results)

	// Predicates still work under the show-none policy.
	results, err = engine.SetQuery(event.SearchQuery{Text: "launch"})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results, "e4")
}

func TestIndexAddedKeepsInsertionOrder(t *testing.T) {
	engine, store := testEngine(t, true)

	later := event.Event{ID: "e5", Date: mustDate(t, "2025-03-05"), Title: "Late Sale"}
	if err := store.Add(later); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.IndexAdded([]event.Event{later}); err != nil {
		t.Fatalf("index: %v", err)
	}

	results, err := engine.SetQuery(event.SearchQuery{Text: "sale"})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	// e5 shares the 03-05 bucket but was inserted last.
	assertIDs(t, results, "e3", "e1", "e2", "e5")
}

func TestIndexRemoved(t *testing.T) {
	engine, store := testEngine(t, true)

	if _, err := store.Remove("e1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := engine.IndexRemoved("e1"); err != nil {
		t.Fatalf("index remove: %v", err)
	}

	results, err := engine.Results()
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	assertIDs(t, results, "e3", "e2", "e4")
}

func TestHighlightExpires(t *testing.T) {
	engine, store := testEngine(t, true)
	engine.SetHighlightWindow(50 * time.Millisecond)

	cleared := make(chan struct{}, 1)
	engine.OnHighlightCleared(func() { cleared <- struct{}{} })

	ev, _ := store.Get("e1")
	engine.SelectEvent(ev)

	if hl, ok := engine.Highlighted(); !ok || hl != ev.Date {
		t.Fatalf("highlight = %v %v", hl, ok)
	}

	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("highlight never expired")
	}
	if _, ok := engine.Highlighted(); ok {
		t.Error("highlight still set after expiry")
	}
}

func TestReselectBeforeExpiryRestartsTimer(t *testing.T) {
	engine, store := testEngine(t, true)
	engine.SetHighlightWindow(150 * time.Millisecond)

	a, _ := store.Get("e1")
	b, _ := store.Get("e4")

	engine.SelectEvent(a)
	time.Sleep(80 * time.Millisecond)
	engine.SelectEvent(b)

	// A's timer would have fired by now; B's selection cancelled it.
	time.Sleep(100 * time.Millisecond)
	hl, ok := engine.Highlighted()
	if !ok {
		t.Fatal("highlight cleared by the superseded timer")
	}
	if hl != b.Date {
		t.Errorf("highlight = %v, want %v", hl, b.Date)
	}

	// B's own window still expires.
	time.Sleep(200 * time.Millisecond)
	if _, ok := engine.Highlighted(); ok {
		t.Error("highlight never cleared")
	}
}

func TestClearHighlightCancelsTimer(t *testing.T) {
	engine, store := testEngine(t, true)
	engine.SetHighlightWindow(50 * time.Millisecond)

	cleared := make(chan struct{}, 1)
	engine.OnHighlightCleared(func() { cleared <- struct{}{} })

	ev, _ := store.Get("e1")
	engine.SelectEvent(ev)
	engine.ClearHighlight()

	if _, ok := engine.Highlighted(); ok {
		t.Fatal("highlight still set")
	}
	select {
	case <-cleared:
		t.Error("expiry callback fired after manual clear")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestIndexCountFollowsStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "opscal.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := storage.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Add(seedEvents(t)...); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	idx, err := OpenMemory()
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	engine, err := NewEngine(store, idx, true)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if n, err := idx.Count(); err != nil || n != uint64(store.Count()) {
		t.Fatalf("index count = %d (%v), store = %d", n, err, store.Count())
	}

	if _, err := store.Remove("e1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := engine.IndexRemoved("e1"); err != nil {
		t.Fatalf("index remove: %v", err)
	}
	if n, err := idx.Count(); err != nil || n != 3 {
		t.Errorf("index count after remove = %d (%v), want 3", n, err)
	}
}

func TestReindexAfterClear(t *testing.T) {
	engine, store := testEngine(t, true)

	if err := store.RemoveAll(); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if err := engine.Reindex(); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	results, err := engine.SetQuery(event.SearchQuery{})
	if err != nil {
		t.Fatalf("set query: %v", err)
	}
	assertIDs(t, results)
}
