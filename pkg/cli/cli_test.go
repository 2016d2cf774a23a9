package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retail-analytics/rfm-segments/pkg/config"
	"github.com/retail-analytics/rfm-segments/pkg/csvio"
	"github.com/retail-analytics/rfm-segments/pkg/database"
)

var refDate = time.Date(2023, 12, 9, 0, 0, 0, 0, time.UTC)

// seedStore creates a retail table where customer 12346 is the best and
// 12349 the weakest of four UK customers.
func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retail_data.db")
	db, _, err := database.Open(database.DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE retail (
		InvoiceNo TEXT, StockCode TEXT, Description TEXT, Quantity INTEGER,
		InvoiceDate TEXT, UnitPrice REAL, CustomerID REAL, Country TEXT)`)
	require.NoError(t, err)

	insert := func(invoice string, at time.Time, customer any, country string) {
		_, err := db.Exec(`INSERT INTO retail VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			invoice, "85123A", "WHITE HANGING HEART T-LIGHT HOLDER", 1,
			at.Format("2006-01-02 15:04:05"), 100.0, customer, country)
		require.NoError(t, err)
	}

	customers := []struct {
		id      float64
		daysAgo int
		count   int
	}{
		{12346, 1, 4},
		{12347, 10, 3},
		{12348, 50, 2},
		{12349, 100, 1},
	}
	for _, c := range customers {
		for i := 0; i < c.count; i++ {
			at := refDate.AddDate(0, 0, -(c.daysAgo + i)).Add(9 * time.Hour)
			insert(fmt.Sprintf("%.0f-%d", c.id, i), at, c.id, "United Kingdom")
		}
	}
	insert("late", refDate.AddDate(0, 0, 5), 12346.0, "United Kingdom")
	insert("fr", refDate.AddDate(0, 0, -3), 12680.0, "France")
	insert("anon", refDate.AddDate(0, 0, -3), nil, "United Kingdom")
	return path
}

func testConfig(t *testing.T, dbPath string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Store:    config.StoreConfig{Driver: database.DriverSQLite, DatabaseURL: dbPath, Table: "retail"},
		Source:   config.SourceConfig{Kind: config.SourceDatabase, CSVPath: filepath.Join(dir, "uk.csv"), CSVEncoding: "iso-8859-1"},
		Filter:   config.FilterConfig{Country: "United Kingdom"},
		Analysis: config.AnalysisConfig{Year: 2023, AsOf: "2023-12-09", Workers: 2},
		Output: config.OutputConfig{
			Path:        filepath.Join(dir, "out", "rfm.csv"),
			Format:      "csv",
			CohortsPath: filepath.Join(dir, "out", "report.yaml"),
			TopN:        5,
		},
		Schedule: config.ScheduleConfig{Cron: "0 0 6 * * 1"},
		Log:      config.LogConfig{Level: "error", Format: "json"},
	}
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "extract", "cohorts", "schedule"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, runCmd.Flags().Lookup("cohort"))
	assert.NotNil(t, scheduleCmd.Flags().Lookup("run-now"))
}

func TestRunPipeline(t *testing.T) {
	c := testConfig(t, seedStore(t))

	out, err := runPipeline(context.Background(), c, nil, true)
	require.NoError(t, err)

	require.Len(t, out.Scored, 4)
	segments := map[string]string{}
	for _, s := range out.Scored {
		segments[s.CustomerID] = s.Segment
	}
	assert.Equal(t, map[string]string{"12346": "444", "12347": "333", "12348": "222", "12349": "111"}, segments)

	assert.Equal(t, "2023-12-09", out.Report.AsOf)
	assert.Equal(t, "01/2023-12/2023", out.Report.Period)
	assert.Equal(t, 4, out.Report.Dataset.Customers)
	assert.Equal(t, 10, out.Report.Dataset.Transactions)
	assert.Empty(t, out.Report.IncompleteJoin)

	byName := map[string][]string{}
	for _, s := range out.Report.Cohorts {
		byName[s.Name] = s.Members
	}
	assert.Equal(t, []string{"12346"}, byName["Best Customers"])
	assert.Equal(t, []string{"12349"}, byName["Lost Cheap Customers"])

	assert.FileExists(t, c.Output.Path)
	assert.FileExists(t, c.Output.CohortsPath)

	var buf bytes.Buffer
	printOutcome(&buf, out, c.Output.TopN)
	assert.Contains(t, buf.String(), "Number of customers    : 4")
	assert.Contains(t, buf.String(), "Best Customers: 1")
}

func TestRunPipeline_LastInvoiceAsOf(t *testing.T) {
	c := testConfig(t, seedStore(t))
	c.Analysis.AsOf = "last"
	c.Output.CohortsPath = ""

	out, err := runPipeline(context.Background(), c, []string{"Best Customers"}, true)
	require.NoError(t, err)

	// the late row is the last invoice of the window
	assert.Equal(t, "2023-12-14", out.Report.AsOf)
	require.Len(t, out.Report.Cohorts, 1)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(c.Output.Path), "report.yaml"))
}

func TestRunPipeline_Errors(t *testing.T) {
	c := testConfig(t, seedStore(t))
	c.Analysis.AsOf = "09/12/2023"
	_, err := runPipeline(context.Background(), c, nil, true)
	assert.ErrorContains(t, err, "as_of")

	c = testConfig(t, seedStore(t))
	c.Analysis.Year = 2019
	_, err = runPipeline(context.Background(), c, nil, true)
	assert.Error(t, err, "no invoice in 2019")

	c = testConfig(t, seedStore(t))
	_, err = runPipeline(context.Background(), c, []string{"Champions"}, true)
	assert.ErrorContains(t, err, "Champions")
}

func TestExtractThenRunFromCSV(t *testing.T) {
	dbPath := seedStore(t)
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(fmt.Sprintf(`
store:
  driver: sqlite
  database_url: %s
log:
  level: error
`, dbPath)), 0o644))

	csvPath := filepath.Join(dir, "Retail_in_UK.csv")
	rootCmd.SetArgs([]string{"extract", "--config", cfgFile, "--output", csvPath})
	require.NoError(t, rootCmd.Execute())

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	rows, stats, err := csvio.ReadTransactions(f, csvio.ReadOptions{Country: "United Kingdom"})
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Read)
	assert.Equal(t, 1, stats.SkippedNoUser)
	assert.Len(t, rows, 11)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)
	rootCmd.SetArgs([]string{"run", "--config", cfgFile, "--quiet",
		"--source", "csv", "--csv", csvPath,
		"--format", "json", "--output", filepath.Join(dir, "rfm.json"),
		"--report", filepath.Join(dir, "report.json"),
	})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Reference date 2023-12-09, 4 customers scored")
	assert.FileExists(t, filepath.Join(dir, "rfm.json"))
	assert.FileExists(t, filepath.Join(dir, "report.json"))
}

func TestCohortsCommand(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
log:
  level: error
cohorts:
  - name: Champions
    expr: segment == "444"
  - name: Hibernating
    expr: r <= 2 && f <= 2
`), 0o644))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)
	rootCmd.SetArgs([]string{"cohorts", "--config", cfgFile})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "Champions")
	assert.Contains(t, buf.String(), `r <= 2 && f <= 2`)
}

func TestScheduleCommand_InvalidCron(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
log:
  level: error
schedule:
  cron: every monday
`), 0o644))

	rootCmd.SetArgs([]string{"schedule", "--config", cfgFile})
	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "every monday")
}

func TestNewScheduler_SkipsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	c, job, err := newScheduler("0 0 6 * * 1", zap.NewNop(), func() {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
	})
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	// a second run while the first still holds the output files is skipped
	second := make(chan struct{})
	go func() {
		job.Run()
		close(second)
	}()
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("overlapping run was not skipped")
	}
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	<-done
	job.Run()
	assert.Equal(t, int32(2), calls.Load())
}
