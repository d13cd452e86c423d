package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ReadFile loads an import file into raw tabular records. The
// extension selects the reader; anything but .csv/.xlsx/.xls is an
// ErrInvalidFile. A leading header row is stripped.
func ReadFile(path string) ([]RawRecord, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExt(ext) {
		return nil, fmt.Errorf("%q: %w", path, ErrInvalidFile)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, ext)
}

// Read parses delimited or workbook data from r. ext decides the
// format and must include the leading dot.
func Read(r io.Reader, ext string) ([]RawRecord, error) {
	switch strings.ToLower(ext) {
	case ".csv":
		return readCSV(r)
	case ".xlsx":
		return readWorkbook(r)
	case ".xls":
		return readLegacyWorkbook(r)
	default:
		return nil, fmt.Errorf("%q: %w", ext, ErrInvalidFile)
	}
}

func supportedExt(ext string) bool {
	switch ext {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}

func readCSV(r io.Reader) ([]RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &ParseError{Reason: "malformed delimited file", Err: err}
	}
	return tabularRecords(rows), nil
}

// readWorkbook reads the first sheet of a spreadsheet workbook.
func readWorkbook(r io.Reader) ([]RawRecord, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Reason: "malformed workbook", Err: err}
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Reason: "workbook has no sheets"}
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Reason: "read sheet " + sheets[0], Err: err}
	}
	return tabularRecords(rows), nil
}

// readLegacyWorkbook reads the first sheet of a BIFF workbook, the
// binary format behind the .xls extension.
func readLegacyWorkbook(r io.Reader) ([]RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Reason: "read workbook", Err: err}
	}
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, &ParseError{Reason: "malformed workbook", Err: err}
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, &ParseError{Reason: "workbook has no sheets"}
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil || row.LastCol() == 0 {
			continue
		}
		cells := make([]string, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return tabularRecords(rows), nil
}

func tabularRecords(rows [][]string) []RawRecord {
	if len(rows) > 0 && IsHeaderRow(rows[0]) {
		rows = rows[1:]
	}
	out := make([]RawRecord, 0, len(rows))
	for _, cells := range rows {
		out = append(out, RawRecord{Cells: cells})
	}
	return out
}
