package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Row is one decoded row of an uploaded file: column name to raw cell value.
type Row map[string]string

// Decoder turns a tabular file into ordered rows plus the distinct column
// names. It is the boundary to the excluded file-format collaborator; the
// pipeline never looks at file bytes itself.
type Decoder interface {
	Decode(path string) ([]Row, []string, error)
	Preview(path string, limit int) (rows []Row, columns []string, totalRows int, err error)
}

// CSVDecoder decodes comma-separated files with a header row.
type CSVDecoder struct{}

// SupportedFile reports whether the decoder handles the given file name.
func (CSVDecoder) SupportedFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

func (CSVDecoder) Decode(path string) ([]Row, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, nil, err
	}
	columns := trimmedHeader(header)

	var rows []Row
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, rowFromFields(columns, fields))
	}
	return rows, columns, nil
}

// Preview returns the first limit rows plus the total row count without
// materializing the whole file as rows.
func (CSVDecoder) Preview(path string, limit int) ([]Row, []string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, 0, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, nil, 0, err
	}
	columns := trimmedHeader(header)

	var rows []Row
	total := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, 0, err
		}
		if total < limit {
			rows = append(rows, rowFromFields(columns, fields))
		}
		total++
	}
	return rows, columns, total, nil
}

func trimmedHeader(header []string) []string {
	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(col)
	}
	return columns
}

func rowFromFields(columns, fields []string) Row {
	row := make(Row, len(columns))
	for i, col := range columns {
		if i < len(fields) {
			row[col] = fields[i]
		}
	}
	return row
}
