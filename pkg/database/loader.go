package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open connects to the retail store. mariadb:// and mysql:// URLs are turned
// into the MySQL driver format; the DSN actually used is returned.
func Open(driver, dsn string) (*sql.DB, string, error) {
	var db *sql.DB
	var err error
	used := dsn
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, "", eris.Wrap(err, "database: open sqlite")
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, "", eris.Wrap(err, "database: sqlite pragma")
		}
	case DriverMySQL:
		used, err = toMySQLDSN(dsn)
		if err != nil {
			return nil, "", err
		}
		db, err = sql.Open("mysql", used)
		if err != nil {
			return nil, "", eris.Wrap(err, "database: open mysql")
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, "", eris.Wrap(err, "database: open postgres")
		}
	default:
		return nil, "", eris.Errorf("database: unsupported driver %q", driver)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, used, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", eris.Wrap(err, "database: parse dsn")
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", eris.New("database: incomplete dsn (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

// Query selects the rows of one market.
type Query struct {
	Driver  string
	Table   string
	Country string
}

func (q Query) placeholder(n int) string {
	if q.Driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (q Query) validate() error {
	if !tableNameRe.MatchString(q.Table) {
		return eris.Errorf("database: invalid table %q", q.Table)
	}
	if q.Country == "" {
		return eris.New("database: country is required")
	}
	return nil
}

// LoadStats counts what the loader read and skipped.
type LoadStats struct {
	Read          int
	SkippedNoUser int
}

// LoadTransactions reads the purchase lines of q.Country with a positive
// quantity and a customer id.
func LoadTransactions(ctx context.Context, db *sql.DB, q Query) ([]models.TransactionRow, LoadStats, error) {
	var stats LoadStats
	if err := q.validate(); err != nil {
		return nil, stats, err
	}

	stmt := fmt.Sprintf(`
		SELECT InvoiceNo, StockCode, Quantity, UnitPrice, InvoiceDate, CustomerID
		FROM %s
		WHERE Country = %s
		  AND Quantity > 0
		  AND CustomerID IS NOT NULL
	`, q.Table, q.placeholder(1))

	rows, err := db.QueryContext(ctx, stmt, q.Country)
	if err != nil {
		return nil, stats, eris.Wrap(err, "database: query transactions")
	}
	defer rows.Close()

	var out []models.TransactionRow
	for rows.Next() {
		stats.Read++
		var (
			invoice, stock, customer any
			qty                      int
			price                    float64
			invoiceDate              any
		)
		if err := rows.Scan(&invoice, &stock, &qty, &price, &invoiceDate, &customer); err != nil {
			return nil, stats, eris.Wrap(err, "database: scan transaction")
		}
		customerID := NormalizeCustomerID(customer)
		if customerID == "" {
			stats.SkippedNoUser++
			continue
		}
		ts, err := ParseInvoiceDate(invoiceDate)
		if err != nil {
			return nil, stats, eris.Wrapf(err, "database: invoice %s", text(invoice))
		}
		out = append(out, models.TransactionRow{
			InvoiceID:        text(invoice),
			CustomerID:       customerID,
			StockCode:        text(stock),
			Quantity:         qty,
			UnitPrice:        price,
			InvoiceTimestamp: ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, stats, eris.Wrap(err, "database: iterate transactions")
	}
	return out, stats, nil
}

// ExtractRetail streams every column of the q.Country rows with a positive
// quantity to fn, in table order.
func ExtractRetail(ctx context.Context, db *sql.DB, q Query, fn func(models.RetailRecord) error) (int, error) {
	if err := q.validate(); err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf(`
		SELECT InvoiceNo, StockCode, Description, Quantity, InvoiceDate, UnitPrice, CustomerID, Country
		FROM %s
		WHERE Country = %s
		  AND Quantity > 0
	`, q.Table, q.placeholder(1))

	rows, err := db.QueryContext(ctx, stmt, q.Country)
	if err != nil {
		return 0, eris.Wrap(err, "database: query retail")
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			invoice, stock, desc, customer, country any
			qty                                     int
			price                                   float64
			invoiceDate                             any
		)
		if err := rows.Scan(&invoice, &stock, &desc, &qty, &invoiceDate, &price, &customer, &country); err != nil {
			return n, eris.Wrap(err, "database: scan retail")
		}
		ts, err := ParseInvoiceDate(invoiceDate)
		if err != nil {
			return n, eris.Wrapf(err, "database: invoice %s", text(invoice))
		}
		if err := fn(models.RetailRecord{
			InvoiceNo:   text(invoice),
			StockCode:   text(stock),
			Description: text(desc),
			Quantity:    qty,
			InvoiceDate: ts,
			UnitPrice:   price,
			CustomerID:  NormalizeCustomerID(customer),
			Country:     text(country),
		}); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, eris.Wrap(err, "database: iterate retail")
	}
	return n, nil
}

var invoiceDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"01/02/2006 15:04",
}

// ParseInvoiceDate accepts driver times as well as the text layouts the
// retail export uses. The result is always in UTC.
func ParseInvoiceDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case nil:
		return time.Time{}, eris.New("database: null invoice date")
	}
	s := strings.TrimSpace(text(v))
	for _, layout := range invoiceDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("database: unparseable invoice date %q", s)
}

// NormalizeCustomerID renders a customer id read as text, integer or float
// ("12820.0") as its plain digits. Empty means no customer.
func NormalizeCustomerID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	s := strings.TrimSpace(text(v))
	if strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return ""
	}
	if i := strings.IndexByte(s, '.'); i > 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	return s
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
