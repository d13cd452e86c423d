// Package ingest adapts raw schedule rows from spreadsheets and
// webhook payloads into import candidates.
package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/liveopshq/opscal/internal/event"
)

// ErrInvalidFile reports an import file with an unsupported extension.
var ErrInvalidFile = errors.New("invalid file: expected .csv, .xlsx or .xls")

// ParseError reports structurally unparseable input: a malformed file
// or an unexpected webhook top-level shape. It aborts a whole batch.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// RawRecord is one input row, resolved into exactly one of two shapes
// at the ingestion boundary. Downstream code never sniffs the source
// format again.
type RawRecord struct {
	// Cells is set for tabular rows: date, title, fair?, link?.
	Cells []string
	// Fields is set for webhook key-value records.
	Fields map[string]any
}

// Tabular wraps an ordered cell row.
func Tabular(cells ...string) RawRecord {
	return RawRecord{Cells: cells}
}

// KeyValue wraps a flat webhook record.
func KeyValue(fields map[string]any) RawRecord {
	return RawRecord{Fields: fields}
}

// sentinel marks "no activity" in a webhook activity column.
const sentinel = "-"

// IsHeaderRow reports whether a tabular row is a column-header row and
// should be skipped before adaptation.
func IsHeaderRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	first := strings.ToLower(cells[0])
	return strings.Contains(first, "date") || strings.Contains(first, "when")
}

// Adapt converts one raw record into zero or more import candidates.
//
// A tabular row yields at most one candidate and is silently dropped
// when date or title is blank. A key-value record fans out: every
// known activity column with a real value yields one candidate sharing
// the record's date and fair tag.
func Adapt(rec RawRecord, src event.Source) []event.ImportCandidate {
	if rec.Fields != nil {
		return adaptKeyValue(rec.Fields, src)
	}
	return adaptTabular(rec.Cells, src)
}

func adaptTabular(cells []string, src event.Source) []event.ImportCandidate {
	if len(cells) < 2 {
		return nil
	}
	dateRaw := strings.TrimSpace(cells[0])
	title := strings.TrimSpace(cells[1])
	if dateRaw == "" || title == "" {
		return nil
	}
	cand := event.ImportCandidate{DateRaw: dateRaw, Title: title, Source: src}
	if len(cells) > 2 {
		cand.Fair = strings.TrimSpace(cells[2])
	}
	if len(cells) > 3 {
		cand.Link = strings.TrimSpace(cells[3])
	}
	return []event.ImportCandidate{cand}
}

func adaptKeyValue(fields map[string]any, src event.Source) []event.ImportCandidate {
	dateRaw, ok := fields["Date"]
	if !ok {
		dateRaw = fields["date"]
	}

	fair := cellString(fields["Fairs"])
	if fair == sentinel {
		fair = ""
	}

	var out []event.ImportCandidate
	for _, col := range ActivityColumns {
		if col == "Fairs" {
			// Consumed as the fair tag, never a title of its own.
			continue
		}
		val := cellString(fields[col])
		if val == "" || val == sentinel {
			continue
		}
		out = append(out, event.ImportCandidate{
			DateRaw: dateRaw,
			Title:   col + ": " + val,
			Fair:    fair,
			Source:  src,
		})
	}
	return out
}

// cellString renders a webhook field value as trimmed text. Numbers
// pass through; anything unrenderable is treated as blank.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64, int, int64, bool:
		return strings.TrimSpace(fmt.Sprint(t))
	default:
		return ""
	}
}
