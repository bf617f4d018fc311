package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Row is one FAQ entry from the knowledge-base CSV.
type Row struct {
	Question string
	Answer   string
	Category string
}

// Text renders the row into the canonical form stored in the index. The
// pipeline's context formatter assumes this shape.
func (r Row) Text() string {
	return fmt.Sprintf("Question: %s\nAnswer: %s", r.Question, r.Answer)
}

// ReadCSV parses a knowledge-base CSV. The header must contain Question and
// Answer columns; Category is optional and defaults to "General". Header
// matching is case-insensitive, extra columns are ignored, and rows with an
// empty question or answer are skipped.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	qIdx, ok := cols["question"]
	if !ok {
		return nil, fmt.Errorf("csv header missing %q column", "Question")
	}
	aIdx, ok := cols["answer"]
	if !ok {
		return nil, fmt.Errorf("csv header missing %q column", "Answer")
	}
	cIdx, hasCategory := cols["category"]

	var rows []Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		row := Row{
			Question: strings.TrimSpace(field(record, qIdx)),
			Answer:   strings.TrimSpace(field(record, aIdx)),
			Category: "General",
		}
		if hasCategory {
			if c := strings.TrimSpace(field(record, cIdx)); c != "" {
				row.Category = c
			}
		}
		if row.Question == "" || row.Answer == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
