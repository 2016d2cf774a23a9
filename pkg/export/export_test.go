package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

func sampleScored() []models.ScoredCustomer {
	return []models.ScoredCustomer{
		{
			CustomerMetrics: models.CustomerMetrics{CustomerID: "12346", RecencyDays: 3, Frequency: 7, Monetary: 4310.5},
			R:               4,
			F:               4,
			M:               4,
			Segment:         "444",
		},
		{
			CustomerMetrics: models.CustomerMetrics{CustomerID: "12350", RecencyDays: 310, Frequency: 1, Monetary: 334.4},
			R:               1,
			F:               1,
			M:               1,
			Segment:         "111",
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("parquet")
	assert.ErrorContains(t, err, "parquet")
}

func TestWriteScored_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScored(&buf, FormatCSV, sampleScored()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ScoredHeader, records[0])
	assert.Equal(t, []string{"12346", "3", "7", "4310.50", "4", "4", "4", "444"}, records[1])
	assert.Equal(t, []string{"12350", "310", "1", "334.40", "1", "1", "1", "111"}, records[2])
}

func TestWriteScored_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScored(&buf, FormatJSON, sampleScored()))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "12346", got[0]["customer_id"])
	assert.Equal(t, "444", got[0]["segment"])
	assert.Equal(t, 4310.5, got[0]["monetary"])
}

func TestWriteScored_XLSXNeedsFile(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteScored(&buf, FormatXLSX, sampleScored()))
}

func TestWriteScoredFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rfm.xlsx")
	require.NoError(t, WriteScoredFile(path, FormatXLSX, sampleScored()))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := file.Sheet["RFM"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "CustomerID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "12346", sheet.Rows[1].Cells[0].String())
	seg := sheet.Rows[1].Cells[7].String()
	assert.Equal(t, "444", seg)
	rec, err := sheet.Rows[2].Cells[1].Int()
	require.NoError(t, err)
	assert.Equal(t, 310, rec)
}

func TestWriteScoredFile_CSVCreatesFolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "rfm.csv")
	require.NoError(t, WriteScoredFile(path, FormatCSV, sampleScored()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CustomerID,Recency,Frequency,Monetary,R,F,M,Segment")
}

func sampleReport() Report {
	return Report{
		RunID:   "5f1c2a2e-0000-4000-8000-000000000000",
		AsOf:    "2023-12-09",
		Period:  "01/2023-12/2023",
		Dataset: models.DatasetSummary{Transactions: 2, Products: 3, Customers: 2, TotalQuantity: 20, Revenue: 4645},
		Boundaries: BoundaryTable(models.QuartileBoundaries{
			models.Recency: {P25: 80.75, P50: 156.5, P75: 233.25},
		}),
		Cohorts: []models.CohortSummary{
			{Name: "Best Customers", Expr: `segment == "444"`, Count: 1, Members: []string{"12346"}},
		},
	}
}

func TestWriteReportFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, WriteReportFile(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Report
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, sampleReport(), got)
	assert.NotContains(t, string(data), "incomplete_join")
}

func TestWriteReportFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r := sampleReport()
	r.IncompleteJoin = []string{"99999"}
	require.NoError(t, WriteReportFile(path, r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, r, got)
}
