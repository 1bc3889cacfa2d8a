package dbcap

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" database/sql driver
)

// duckDBHandle is a Handle backed by an embedded DuckDB file or ":memory:".
type duckDBHandle struct {
	db *sql.DB
}

// OpenDuckDB opens a DuckDB database at dsn ("" or ":memory:" for an
// in-process store, or a file path for the sample/full on-disk store).
func OpenDuckDB(dsn string) (Handle, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbcap.OpenDuckDB: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbcap.OpenDuckDB: ping: %w", err)
	}
	return &duckDBHandle{db: db}, nil
}

func (h *duckDBHandle) Execute(ctx context.Context, query string, timeout time.Duration) (ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t0 := time.Now()
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return ExecResult{}, fmt.Errorf("dbcap.duckDBHandle.Execute: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	result.TimingMS = float64(time.Since(t0).Milliseconds())
	if err != nil {
		return ExecResult{}, fmt.Errorf("dbcap.duckDBHandle.Execute: %w", err)
	}
	return result, nil
}

func (h *duckDBHandle) Explain(ctx context.Context, query string) (string, error) {
	rows, err := h.db.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		return "", fmt.Errorf("dbcap.duckDBHandle.Explain: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return "", fmt.Errorf("dbcap.duckDBHandle.Explain: %w", err)
	}
	return renderPlanText(result), nil
}

var duckdbRowsEstimateRe = regexp.MustCompile(`(?i)EC:\s*([0-9]+(?:\.[0-9]+)?)`)

// Cost is best-effort: DuckDB's EXPLAIN output carries an estimated
// cardinality ("EC: <n>") per operator rather than a single plan-wide
// cost figure, so this sums the per-operator estimates it can find.
func (h *duckDBHandle) Cost(ctx context.Context, query string) (float64, error) {
	plan, err := h.Explain(ctx, query)
	if err != nil {
		return 0, err
	}
	matches := duckdbRowsEstimateRe.FindAllStringSubmatch(plan, -1)
	var total float64
	for _, m := range matches {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			total += v
		}
	}
	return total, nil
}

func (h *duckDBHandle) Close() error {
	return h.db.Close()
}

func scanRows(rows *sql.Rows) (ExecResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return ExecResult{}, err
	}
	var out ExecResult
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ExecResult{}, err
		}
		out.Rows = append(out.Rows, Row(vals))
		out.RowCount++
	}
	return out, rows.Err()
}

func renderPlanText(result ExecResult) string {
	var text string
	for _, row := range result.Rows {
		for _, v := range row {
			if s, ok := v.(string); ok {
				text += s + "\n"
			}
		}
	}
	return text
}
