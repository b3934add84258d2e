package reconcile

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Audit export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// AuditLog is the exported snapshot of metrics, history, pending conflicts and configuration.
type AuditLog struct {
	Metrics    MetricsSnapshot `json:"metrics" yaml:"metrics"`
	History    []HistoryEntry  `json:"history" yaml:"history"`
	Conflicts  []Conflict      `json:"conflicts" yaml:"conflicts"`
	Config     Config          `json:"config" yaml:"config"`
	ExportedAt time.Time       `json:"exportedAt" yaml:"exportedAt"`
}

var csvHeader = []string{"Sync ID", "Duration (ms)", "Timestamp", "Status", "Synced Users", "Conflicts"}

// AuditLog builds the current audit snapshot with the full retained history.
func (e *Engine) AuditLog() AuditLog {
	return AuditLog{
		Metrics:    e.Metrics(),
		History:    e.metrics.History(0),
		Conflicts:  e.PendingConflicts(),
		Config:     e.Configuration(),
		ExportedAt: e.now(),
	}
}

// ExportAuditLog serializes the audit snapshot as json, csv or yaml.
// The csv form has one row per history entry.
func (e *Engine) ExportAuditLog(format string) ([]byte, error) {
	log := e.AuditLog()

	switch format {
	case FormatJSON:
		return json.MarshalIndent(log, "", "  ")
	case FormatYAML:
		return yaml.Marshal(log)
	case FormatCSV:
		return historyCSV(log.History)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func historyCSV(history []HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, h := range history {
		row := []string{
			h.SessionID,
			strconv.FormatInt(h.DurationMs, 10),
			h.Timestamp.UTC().Format(time.RFC3339),
			string(h.Status),
			strconv.Itoa(h.Result.Synced),
			strconv.Itoa(h.Result.ConflictsDetected),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
