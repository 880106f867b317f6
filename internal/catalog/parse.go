package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column names looked up in a feed's header row.
const (
	ColumnID      = "id"
	ColumnTitle   = "title"
	ColumnSummary = "summary"
	ColumnPages   = "pages"
	ColumnViews   = "views"
)

// ParseCSV reads a feed with a header row. ID and Title columns are required;
// Summary, Pages and Views default to empty/zero when absent. Blank lines are
// skipped and unparsable counts read as zero.
func ParseCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, required := range []string{ColumnID, ColumnTitle} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %q column in header %v", required, header)
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := make([]Record, 0)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(records)+2, err)
		}
		if blankRow(row) {
			continue
		}
		records = append(records, Record{
			ID:      strings.TrimSpace(field(row, ColumnID)),
			Title:   field(row, ColumnTitle),
			Summary: field(row, ColumnSummary),
			Pages:   atoi(field(row, ColumnPages)),
			Views:   atoi(field(row, ColumnViews)),
		})
	}
	return records, nil
}

// ParseLines splits a newline-delimited list, trimming each line and dropping
// blanks.
func ParseLines(body string) []string {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(strings.ReplaceAll(s, ",", "")))
	if err != nil {
		return 0
	}
	return n
}
