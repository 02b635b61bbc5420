package fileutil

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVReader streams a CSV file whose first line is a header
type CSVReader struct {
	FilePath string
	// Comment marks lines to ignore, '#' by default
	Comment rune
}

// NewCSVReader returns a CSVReader for the file at fp
func NewCSVReader(fp string) *CSVReader {
	return &CSVReader{
		FilePath: fp,
		Comment:  '#',
	}
}

// Row is one data line addressed by column name
type Row struct {
	Line    int
	fields  []string
	columns map[string]int
}

// Get returns the trimmed value of column
func (r Row) Get(column string) string {
	idx, ok := r.columns[column]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

// ErrShortRow is passed to onError for rows missing a mapped column
var ErrShortRow = errors.New("row has fewer fields than the header")

// ReadRows maps the expected columns from the header, then calls fn for every
// complete row. Short rows go to onError (when set) and are skipped; an error
// returned by fn or onError stops the read.
func (r *CSVReader) ReadRows(expected []string, fn func(Row) error, onError func(line int, err error) error) error {
	f, err := os.Open(r.FilePath)
	if err != nil {
		return fmt.Errorf("opening a csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.Comment = r.Comment

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}

	columns, err := MapHeader(header, expected)
	if err != nil {
		return err
	}
	last := MaxIndex(columns)

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading CSV row: %w", err)
		}

		line, _ := reader.FieldPos(0)
		if len(fields) <= last {
			if onError != nil {
				if err := onError(line, ErrShortRow); err != nil {
					return err
				}
			}
			continue
		}

		if err := fn(Row{Line: line, fields: fields, columns: columns}); err != nil {
			return err
		}
	}
}

// WriteCSV writes header followed by rows to w
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("writing CSV rows: %w", err)
	}

	return nil
}
