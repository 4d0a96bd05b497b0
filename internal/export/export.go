// Package export renders dose history as CSV, JSON or YAML.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gmsas95/dosewise/internal/tracker"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts csv, json, yaml or yml, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType is the MIME type to serve a format with.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/csv"
	}
}

// HistoryRow is one exported log line.
type HistoryRow struct {
	Date       string `json:"date" yaml:"date"`
	Time       string `json:"time" yaml:"time"`
	Medication string `json:"medication" yaml:"medication"`
	Dosage     string `json:"dosage" yaml:"dosage"`
	Status     string `json:"status" yaml:"status"`
	TakenAt    string `json:"taken_at" yaml:"taken_at"`
	Notes      string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

var csvHeader = []string{"date", "time", "medication", "dosage", "status", "taken_at", "notes"}

// Rows flattens history entries. Dates and timestamps are written in loc.
func Rows(entries []tracker.HistoryEntry, loc *time.Location) []HistoryRow {
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		at := e.Log.TakenAt.In(loc)
		rows = append(rows, HistoryRow{
			Date:       at.Format("2006-01-02"),
			Time:       e.Schedule.TimeToTake,
			Medication: e.Medication.Name,
			Dosage:     e.Medication.Dosage,
			Status:     string(e.Log.Status),
			TakenAt:    at.Format(time.RFC3339),
			Notes:      e.Log.Notes,
		})
	}
	return rows
}

// Write encodes rows to w in the given format.
func Write(w io.Writer, format Format, rows []HistoryRow) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return writeCSV(w, rows)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeCSV(w io.Writer, rows []HistoryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Date, r.Time, r.Medication, r.Dosage, r.Status, r.TakenAt, r.Notes}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
