package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/parquet-go"
)

// ReadRows decodes every statement row from r.
func ReadRows(r io.Reader, format Format) ([]Row, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatJSON:
		return readJSON(r)
	case FormatParquet:
		return readParquet(r)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

func readCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	field := func(record []string, name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read CSV record: %w", err)
		}
		rows = append(rows, Row{
			Date:       field(record, "date"),
			Narration:  field(record, "narration"),
			Withdrawal: field(record, "withdrawal amt."),
			Deposit:    field(record, "deposit amt."),
			Balance:    field(record, "closing balance"),
		})
	}
	return rows, nil
}

// readJSON reads one JSON object per line.
func readJSON(r io.Reader) ([]Row, error) {
	decoder := json.NewDecoder(r)

	var rows []Row
	for {
		var row Row
		err := decoder.Decode(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read JSON record: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readParquet(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer Parquet file: %w", err)
	}

	rows, err := parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read Parquet file: %w", err)
	}
	return rows, nil
}
