package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrReadOnly      = errors.New("statement is not read-only")
)

const (
	defaultSampleRows     = 3
	maxSampleValueLength  = 100
	maxResultStringLength = 300
)

// DatabaseOptions controls how the SQL toolkit database is opened.
type DatabaseOptions struct {
	// ReadOnly rejects statements ClassifyStatementRisk cannot prove read-only.
	ReadOnly bool
	// SampleRows is the number of rows appended to each table's schema. Zero means 3.
	SampleRows int
	// SeedURL, when set, is downloaded to the database path if the file does not exist.
	SeedURL string
	// HTTPClient is used for the seed download.
	HTTPClient *http.Client
}

// Database is the SQL handle used by the SQL toolkit and the database introspection API.
type Database struct {
	db         *sql.DB
	readOnly   bool
	sampleRows int
}

// OpenDatabase accepts "sqlite:///path", "sqlite://" DSNs, "file:" DSNs and plain paths.
func OpenDatabase(ctx context.Context, rawURL string, opts DatabaseOptions) (*Database, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dsn, path, err := sqliteDSN(rawURL)
	if err != nil {
		return nil, err
	}
	if path != "" && strings.TrimSpace(opts.SeedURL) != "" {
		if err := downloadIfMissing(ctx, opts.HTTPClient, opts.SeedURL, path); err != nil {
			return nil, fmt.Errorf("seed database: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	sampleRows := opts.SampleRows
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}
	return &Database{db: db, readOnly: opts.ReadOnly, sampleRows: sampleRows}, nil
}

func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *Database) Dialect() string { return "sqlite" }

func (d *Database) ReadOnly() bool { return d != nil && d.readOnly }

func sqliteDSN(raw string) (dsn string, path string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("missing database url")
	}
	switch {
	case strings.HasPrefix(raw, "sqlite:///"):
		p := strings.TrimPrefix(raw, "sqlite:///")
		if p == ":memory:" {
			return ":memory:", "", nil
		}
		// sqlite:////abs/path keeps the leading slash.
		return p, p, nil
	case strings.HasPrefix(raw, "sqlite://"):
		return strings.TrimPrefix(raw, "sqlite://"), "", nil
	case strings.HasPrefix(raw, "file:"):
		p := strings.TrimPrefix(raw, "file:")
		if i := strings.IndexByte(p, '?'); i >= 0 {
			p = p[:i]
		}
		return raw, p, nil
	case strings.Contains(raw, "://"):
		return "", "", fmt.Errorf("unsupported database url %q: only sqlite is supported", raw)
	default:
		return raw, raw, nil
	}
}

func downloadIfMissing(ctx context.Context, hc *http.Client, url string, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// UsableTableNames lists user tables, sorted by name.
func (d *Database) UsableTableNames(ctx context.Context) ([]string, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := d.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// TableInfo returns the CREATE statement and sample rows for each table. Empty names
// means all usable tables.
func (d *Database) TableInfo(ctx context.Context, names []string) (string, error) {
	usable, err := d.UsableTableNames(ctx)
	if err != nil {
		return "", err
	}
	known := make(map[string]struct{}, len(usable))
	for _, n := range usable {
		known[n] = struct{}{}
	}
	if len(names) == 0 {
		names = usable
	}
	var missing []string
	for _, n := range names {
		if _, ok := known[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrTableNotFound, strings.Join(missing, ", "))
	}

	blocks := make([]string, 0, len(names))
	for _, name := range names {
		var ddl string
		if err := d.db.QueryRowContext(ctx, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&ddl); err != nil {
			return "", err
		}
		sample, err := d.sampleRowsText(ctx, name)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, "\n"+strings.TrimSpace(ddl)+"\n\n/*\n"+sample+"*/")
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (d *Database) sampleRowsText(ctx context.Context, table string) (string, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), d.sampleRows))
	if err != nil {
		return "", err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows from %s table:\n", d.sampleRows, table)
	b.WriteString(strings.Join(cols, "\t"))
	b.WriteString("\n")
	for rows.Next() {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return "", err
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = truncate(plainValue(v), maxSampleValueLength)
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteString("\n")
	}
	return b.String(), rows.Err()
}

// Run executes a query and renders rows as a list of tuples, e.g. "[(1, 'AC/DC')]".
// A query without rows renders as "".
func (d *Database) Run(ctx context.Context, query string) (string, error) {
	if d == nil || d.db == nil {
		return "", errors.New("database not initialized")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("missing argument: query")
	}
	if d.readOnly {
		if risk := ClassifyStatementRisk(query); risk != StatementRiskReadonly {
			return "", fmt.Errorf("%w (%s)", ErrReadOnly, risk)
		}
	}
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var tuples []string
	for rows.Next() {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return "", err
		}
		tuples = append(tuples, tupleText(values))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(tuples) == 0 {
		return "", nil
	}
	return "[" + strings.Join(tuples, ", ") + "]", nil
}

// Preview returns up to limit rows of a known table.
func (d *Database) Preview(ctx context.Context, table string, limit int) (string, error) {
	usable, err := d.UsableTableNames(ctx)
	if err != nil {
		return "", err
	}
	found := false
	for _, n := range usable {
		if n == table {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if limit <= 0 {
		limit = 10
	}
	return d.Run(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), limit))
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func tupleText(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = literalValue(v)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// literalValue renders a value the way the result tuples show it: strings quoted,
// NULL as None.
func literalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return quoteString(truncate(x, maxResultStringLength))
	case []byte:
		return "b" + quoteString(truncate(string(x), maxResultStringLength))
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case time.Time:
		return quoteString(x.Format("2006-01-02 15:04:05"))
	default:
		return fmt.Sprint(x)
	}
}

func plainValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case float64:
		return literalValue(x)
	default:
		return fmt.Sprint(x)
	}
}

func quoteString(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
