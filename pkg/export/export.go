// Package export writes the scored customer table and the run report.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

// Format of the scored table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	}
	return "", eris.Errorf("export: unknown format %q (csv, xlsx, json)", s)
}

// ScoredHeader is the column order of the scored table.
var ScoredHeader = []string{"CustomerID", "Recency", "Frequency", "Monetary", "R", "F", "M", "Segment"}

func scoredRecord(c models.ScoredCustomer) []string {
	return []string{
		c.CustomerID,
		strconv.Itoa(c.RecencyDays),
		strconv.Itoa(c.Frequency),
		strconv.FormatFloat(c.Monetary, 'f', 2, 64),
		strconv.Itoa(c.R),
		strconv.Itoa(c.F),
		strconv.Itoa(c.M),
		c.Segment,
	}
}

// WriteScoredFile writes the scored table to path, creating parent folders.
func WriteScoredFile(path string, format Format, scored []models.ScoredCustomer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create folder")
	}
	if format == FormatXLSX {
		return writeScoredXLSX(path, scored)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	defer f.Close()

	if err := WriteScored(f, format, scored); err != nil {
		return err
	}
	return eris.Wrap(f.Close(), "export: close file")
}

// WriteScored writes the scored table as CSV or JSON.
func WriteScored(w io.Writer, format Format, scored []models.ScoredCustomer) error {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(ScoredHeader); err != nil {
			return eris.Wrap(err, "export: write header")
		}
		for _, c := range scored {
			if err := cw.Write(scoredRecord(c)); err != nil {
				return eris.Wrapf(err, "export: write customer %s", c.CustomerID)
			}
		}
		cw.Flush()
		return eris.Wrap(cw.Error(), "export: flush csv")
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(scored), "export: encode json")
	}
	return eris.Errorf("export: format %q needs a file path", format)
}

func writeScoredXLSX(path string, scored []models.ScoredCustomer) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("RFM")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	header := sheet.AddRow()
	for _, h := range ScoredHeader {
		header.AddCell().SetString(h)
	}
	for _, c := range scored {
		row := sheet.AddRow()
		row.AddCell().SetString(c.CustomerID)
		row.AddCell().SetInt(c.RecencyDays)
		row.AddCell().SetInt(c.Frequency)
		row.AddCell().SetFloat(c.Monetary)
		row.AddCell().SetInt(c.R)
		row.AddCell().SetInt(c.F)
		row.AddCell().SetInt(c.M)
		row.AddCell().SetString(c.Segment)
	}
	return eris.Wrap(file.Save(path), "export: save xlsx")
}

// Report is the per-run summary written next to the scored table.
type Report struct {
	RunID          string                      `json:"run_id" yaml:"run_id"`
	AsOf           string                      `json:"as_of" yaml:"as_of"`
	Period         string                      `json:"period" yaml:"period"`
	Dataset        models.DatasetSummary       `json:"dataset" yaml:"dataset"`
	Boundaries     map[string]models.Quartiles `json:"boundaries" yaml:"boundaries"`
	IncompleteJoin []string                    `json:"incomplete_join,omitempty" yaml:"incomplete_join,omitempty"`
	Cohorts        []models.CohortSummary      `json:"cohorts" yaml:"cohorts"`
}

// BoundaryTable keys quartiles by metric name for serialisation.
func BoundaryTable(b models.QuartileBoundaries) map[string]models.Quartiles {
	out := make(map[string]models.Quartiles, len(b))
	for m, q := range b {
		out[string(m)] = q
	}
	return out
}

// WriteReportFile writes r as JSON when path ends in .json, YAML otherwise.
func WriteReportFile(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create folder")
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(r, "", "  ")
	} else {
		data, err = yaml.Marshal(r)
	}
	if err != nil {
		return eris.Wrap(err, "export: encode report")
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "export: write report")
}
