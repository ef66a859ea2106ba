// Package source reads HR export files into source records.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

// ReadCSV reads a comma-separated export with a header row. The first
// header cell is stripped of a UTF-8 BOM if present. Each record gets a
// stable row id from the first non-empty id column, falling back to the
// line number for rows without one.
func ReadCSV(path string, idColumns ...string) ([]types.SourceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	return readCSV(f, path, idColumns)
}

func readCSV(f io.Reader, path string, idColumns []string) ([]types.SourceRecord, error) {
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	var records []types.SourceRecord
	line := 1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		line++

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				fields[name] = row[i]
			}
		}

		id := ""
		for _, col := range idColumns {
			if v := strings.TrimSpace(fields[col]); v != "" {
				id = v
				break
			}
		}
		if id == "" {
			id = "row-" + strconv.Itoa(line)
		}
		records = append(records, types.SourceRecord{
			RowRef: types.RowRef{RowID: id, LineNo: line},
			Fields: fields,
		})
	}
	return records, nil
}
