package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// Entry kinds appearing in an approval trail.
const (
	EntryApproval    = "approval"
	EntryFieldChange = "field_change"
)

// Row is one line of a request's approval trail: a recorded decision or an
// approver field edit.
type Row struct {
	Entry     string
	Level     int
	Actor     string
	Detail    string
	Timestamp string
}

// trailColumns is the fixed column set of every rendered trail document.
var trailColumns = []string{"Entry", "Level", "Actor", "Detail", "Timestamp"}

func (r Row) record() []string {
	return []string{r.Entry, strconv.Itoa(r.Level), r.Actor, r.Detail, r.Timestamp}
}

// CSVExporter renders an approval trail into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the trail. An empty trail yields a
// header-only document.
func (e *CSVExporter) Render(rows []Row) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(trailColumns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row.record()); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
