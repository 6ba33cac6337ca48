// pkg/frame/reader.go
package frame

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned when an uploaded file's extension is
// not one of the accepted spreadsheet/delimited formats
var ErrUnsupportedFormat = fmt.Errorf("unsupported file format")

// Read parses an uploaded file into a Frame. The format is chosen from
// the file name extension: .csv and .tsv/.txt are treated as delimited
// text, .xlsx/.xlsm as spreadsheet binaries. The first row supplies the
// column headers.
func Read(r io.Reader, filename string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readDelimited(r, ',')
	case ".tsv", ".txt":
		return readDelimited(r, '\t')
	case ".xlsx", ".xlsm":
		return readSpreadsheet(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

// readDelimited parses comma- or tab-separated text into a Frame
func readDelimited(r io.Reader, delimiter rune) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1 // tolerate ragged rows
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse delimited file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file contains no header row")
	}

	return fromRecords(records)
}

// readSpreadsheet parses an xlsx workbook's first sheet into a Frame
func readSpreadsheet(r io.Reader) (*Frame, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet contains no sheets")
	}

	records, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %q contains no header row", sheets[0])
	}

	return fromRecords(records)
}

// fromRecords builds a column-oriented Frame from row-oriented records.
// The first record is the header row; empty header cells are skipped.
func fromRecords(records [][]string) (*Frame, error) {
	headers := records[0]
	rows := records[1:]

	f := New()
	for col, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" {
			continue
		}

		cells := make([]interface{}, len(rows))
		for i, row := range rows {
			if col < len(row) {
				cells[i] = row[col]
			} else {
				cells[i] = nil
			}
		}
		f.AddColumn(header, cells)
	}

	if len(f.Columns()) == 0 {
		return nil, fmt.Errorf("no named columns found in header row")
	}

	return f, nil
}

// ReadBytes is a convenience wrapper around Read for in-memory uploads
func ReadBytes(data []byte, filename string) (*Frame, error) {
	return Read(bytes.NewReader(data), filename)
}
