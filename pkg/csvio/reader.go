// Package csvio reads and writes the retail CSV exchanged between the
// extract and run commands.
package csvio

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/retail-analytics/rfm-segments/pkg/database"
	"github.com/retail-analytics/rfm-segments/pkg/models"
)

// DefaultEncoding is the charset of the retail export.
const DefaultEncoding = "iso-8859-1"

// ReadOptions configures ReadTransactions.
type ReadOptions struct {
	Encoding string // defaults to DefaultEncoding
	Country  string // when set and the file has a Country column, other rows are skipped
}

// ReadStats counts what the reader read and skipped.
type ReadStats struct {
	Read            int
	SkippedNoUser   int
	SkippedQuantity int
	SkippedCountry  int
}

var requiredColumns = []string{"InvoiceNo", "StockCode", "Quantity", "UnitPrice", "InvoiceDate", "CustomerID"}

// ReadTransactions parses a retail CSV by header name. Extra columns, such as
// a leading index column, are ignored. Rows without a customer or with a
// non-positive quantity are skipped.
func ReadTransactions(r io.Reader, opts ReadOptions) ([]models.TransactionRow, ReadStats, error) {
	var stats ReadStats
	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, stats, err
	}

	reader := csv.NewReader(enc.NewDecoder().Reader(r))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, eris.Wrap(err, "csv: read header")
	}
	cols := indexColumns(header)
	for _, name := range requiredColumns {
		if _, ok := cols[strings.ToLower(name)]; !ok {
			return nil, stats, eris.Errorf("csv: missing column %q", name)
		}
	}
	countryCol, hasCountry := cols["country"]

	field := func(rec []string, name string) string {
		i := cols[strings.ToLower(name)]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []models.TransactionRow
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, stats, eris.Wrapf(err, "csv: line %d", line)
		}
		stats.Read++

		if opts.Country != "" && hasCountry && countryCol < len(rec) && strings.TrimSpace(rec[countryCol]) != opts.Country {
			stats.SkippedCountry++
			continue
		}
		customer := database.NormalizeCustomerID(field(rec, "CustomerID"))
		if customer == "" {
			stats.SkippedNoUser++
			continue
		}
		qty, err := strconv.Atoi(field(rec, "Quantity"))
		if err != nil {
			return nil, stats, eris.Wrapf(err, "csv: line %d quantity", line)
		}
		if qty <= 0 {
			stats.SkippedQuantity++
			continue
		}
		price, err := strconv.ParseFloat(field(rec, "UnitPrice"), 64)
		if err != nil {
			return nil, stats, eris.Wrapf(err, "csv: line %d unit price", line)
		}
		ts, err := database.ParseInvoiceDate(field(rec, "InvoiceDate"))
		if err != nil {
			return nil, stats, eris.Wrapf(err, "csv: line %d", line)
		}
		out = append(out, models.TransactionRow{
			InvoiceID:        field(rec, "InvoiceNo"),
			CustomerID:       customer,
			StockCode:        field(rec, "StockCode"),
			Quantity:         qty,
			UnitPrice:        price,
			InvoiceTimestamp: ts,
		})
	}
	return out, stats, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if h == "" {
			continue
		}
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: unsupported encoding %q", name)
	}
	return enc, nil
}
