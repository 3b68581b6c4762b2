package report

import (
	"encoding/json"
	"os"

	"github.com/koltyakov/pgindexhealth/internal/analyze"
	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/model"
)

// exportData is the machine-readable form of a report.
type exportData struct {
	RunID       string          `json:"run_id"`
	StartedAt   string          `json:"started_at"`
	Database    string          `json:"database,omitempty"`
	Schema      string          `json:"schema,omitempty"`
	Primary     string          `json:"primary,omitempty"`
	Hosts       []string        `json:"hosts,omitempty"`
	Diagnostics []exportSection `json:"diagnostics"`
}

type exportSection struct {
	Name     string          `json:"name"`
	Runtime  bool            `json:"runtime"`
	Count    int             `json:"count"`
	Excluded int             `json:"excluded,omitempty"`
	Error    string          `json:"error,omitempty"`
	Findings []model.Finding `json:"findings,omitempty"`
}

// WriteJSON writes a ".json" file next to the HTML report with every finding
// and returns its path. Nothing is written when the report goes to stdout.
func WriteJSON(htmlOutPath string, a analyze.Analysis, meta Meta) (string, error) {
	path := sidecarPath(htmlOutPath, ".json")
	if path == "" {
		return "", nil
	}

	d := exportData{
		RunID:     meta.RunID.String(),
		StartedAt: meta.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Database:  meta.Database,
		Schema:    meta.Schema,
		Primary:   meta.Primary,
		Hosts:     meta.Hosts,
	}
	for _, s := range a.Sections {
		es := exportSection{Name: s.Diagnostic, Runtime: s.Runtime, Count: len(s.Findings), Excluded: s.Excluded, Findings: s.Findings}
		if s.Err != nil {
			es.Error = s.Err.Error()
		}
		d.Diagnostics = append(d.Diagnostics, es)
	}

	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", apperrors.NewReportError("encode", path, err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", apperrors.NewReportError("write", path, err)
	}
	return path, nil
}
