// SPDX-License-Identifier: MPL-2.0

package transform

import (
	"fmt"
	"io"
	"time"

	"github.com/crossmod/crossmod/pkg/fspath"

	"gopkg.in/yaml.v3"
)

// ReportFileName is the audit report inside the work directory.
const ReportFileName = "transform_report.yaml"

type (
	report struct {
		FinishedAt time.Time     `yaml:"finished_at"`
		Succeeded  int           `yaml:"succeeded"`
		Failed     int           `yaml:"failed"`
		Cached     int           `yaml:"cached"`
		Packages   []reportEntry `yaml:"packages"`
	}

	reportEntry struct {
		ID     string      `yaml:"id"`
		Input  string      `yaml:"input"`
		Output string      `yaml:"output"`
		Status string      `yaml:"status"`
		Error  string      `yaml:"error,omitempty"`
		Audit  *AuditTrail `yaml:"audit,omitempty"`
	}
)

// Status returns "cached", "rewritten" or "failed".
func (r *Record) Status() string {
	switch {
	case !r.Succeeded:
		return "failed"
	case r.Cached:
		return "cached"
	default:
		return "rewritten"
	}
}

// WriteReport writes the audit report of a batch as YAML.
func WriteReport(path string, records []Record, finished time.Time) error {
	rep := report{FinishedAt: finished.UTC()}
	for i := range records {
		rec := &records[i]
		entry := reportEntry{ID: rec.Job.ID, Input: rec.Job.Input, Output: rec.Output, Status: rec.Status(), Audit: rec.Audit}
		switch entry.Status {
		case "failed":
			rep.Failed++
			if rec.Err != nil {
				entry.Error = rec.Err.Error()
			}
		case "cached":
			rep.Cached++
			rep.Succeeded++
		default:
			rep.Succeeded++
		}
		rep.Packages = append(rep.Packages, entry)
	}

	err := fspath.WriteAtomic(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return fmt.Errorf("writing transform report: %w", err)
	}
	return nil
}
