package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	csv := "Date,Title,Fair,Link\n" +
		"2025-03-05,Spring Sale,SpringFair,https://example.com\n" +
		"6 Mar,Album Sale\n"
	records, err := Read(strings.NewReader(csv), ".csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (header stripped)", len(records))
	}
	if records[0].Cells[1] != "Spring Sale" {
		t.Errorf("first row = %v", records[0].Cells)
	}
	if len(records[1].Cells) != 2 {
		t.Errorf("ragged row not preserved: %v", records[1].Cells)
	}
}

func TestReadCSVWithoutHeader(t *testing.T) {
	records, err := Read(strings.NewReader("2025-03-05,Sale\n"), ".csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestReadRejectsUnknownExtension(t *testing.T) {
	if _, err := Read(strings.NewReader("x"), ".txt"); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("want ErrInvalidFile, got %v", err)
	}
}

func TestReadFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("want ErrInvalidFile, got %v", err)
	}
}

func TestReadFileCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	if err := os.WriteFile(path, []byte("When,What\n2025-03-05,Sale\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	records, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestReadMalformedWorkbook(t *testing.T) {
	var parseErr *ParseError
	_, err := Read(strings.NewReader("this is not a zip archive"), ".xlsx")
	if !errors.As(err, &parseErr) {
		t.Errorf("want ParseError, got %v", err)
	}
}

func TestReadFileLegacyWorkbook(t *testing.T) {
	records, err := ReadFile(filepath.Join("testdata", "legacy.xls"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (header stripped)", len(records))
	}
	want := [][]string{
		{"5 Mar, Tue", "Legacy Sale", "SpringFair", ""},
		{"2025-03-06", "Launch Party", "", "https://example.com/l"},
	}
	for i, cells := range want {
		if len(records[i].Cells) != len(cells) {
			t.Fatalf("row %d = %v, want %v", i, records[i].Cells, cells)
		}
		for j := range cells {
			if records[i].Cells[j] != cells[j] {
				t.Errorf("row %d col %d = %q, want %q", i, j, records[i].Cells[j], cells[j])
			}
		}
	}
}

func TestReadMalformedLegacyWorkbook(t *testing.T) {
	var parseErr *ParseError
	_, err := Read(strings.NewReader("this is not a compound file"), ".xls")
	if !errors.As(err, &parseErr) {
		t.Errorf("want ParseError, got %v", err)
	}
}
