package csvio

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

var retailHeader = []string{"", "InvoiceNo", "StockCode", "Description", "Quantity", "InvoiceDate", "UnitPrice", "CustomerID", "Country"}

// RetailWriter writes extracted retail rows with a leading row index, in the
// layout ReadTransactions expects.
type RetailWriter struct {
	w     *csv.Writer
	enc   io.Writer
	index int
}

// NewRetailWriter writes the header to w, encoded in encodingName.
// Characters the encoding cannot represent are replaced.
func NewRetailWriter(w io.Writer, encodingName string) (*RetailWriter, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	ew := encoding.ReplaceUnsupported(enc.NewEncoder()).Writer(w)
	cw := csv.NewWriter(ew)
	if err := cw.Write(retailHeader); err != nil {
		return nil, eris.Wrap(err, "csv: write header")
	}
	return &RetailWriter{w: cw, enc: ew}, nil
}

// Write appends one row.
func (rw *RetailWriter) Write(r models.RetailRecord) error {
	rec := []string{
		strconv.Itoa(rw.index),
		r.InvoiceNo,
		r.StockCode,
		r.Description,
		strconv.Itoa(r.Quantity),
		r.InvoiceDate.Format("2006-01-02 15:04:05"),
		strconv.FormatFloat(r.UnitPrice, 'f', -1, 64),
		r.CustomerID,
		r.Country,
	}
	if err := rw.w.Write(rec); err != nil {
		return eris.Wrapf(err, "csv: write row %d", rw.index)
	}
	rw.index++
	return nil
}

// Close flushes buffered rows through the encoder. It does not close the
// underlying writer.
func (rw *RetailWriter) Close() error {
	rw.w.Flush()
	if err := rw.w.Error(); err != nil {
		return eris.Wrap(err, "csv: flush")
	}
	if c, ok := rw.enc.(io.Closer); ok {
		return eris.Wrap(c.Close(), "csv: flush encoder")
	}
	return nil
}
