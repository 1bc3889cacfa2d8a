package dbcap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresHandle is a Handle backed by a pgx connection pool.
type postgresHandle struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a pooled connection to dsn, grounded directly on
// the relay package's pgxpool.ParseConfig/NewWithConfig/Ping sequence.
func OpenPostgres(ctx context.Context, dsn string) (Handle, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("dbcap.OpenPostgres: parsing dsn: %w", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dbcap.OpenPostgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbcap.OpenPostgres: ping: %w", err)
	}
	return &postgresHandle{pool: pool}, nil
}

func (h *postgresHandle) Execute(ctx context.Context, sql string, timeout time.Duration) (ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t0 := time.Now()
	rows, err := h.pool.Query(ctx, sql)
	if err != nil {
		return ExecResult{}, fmt.Errorf("dbcap.postgresHandle.Execute: %w", err)
	}
	defer rows.Close()

	var out ExecResult
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return ExecResult{}, fmt.Errorf("dbcap.postgresHandle.Execute: %w", err)
		}
		out.Rows = append(out.Rows, Row(vals))
		out.RowCount++
	}
	if err := rows.Err(); err != nil {
		return ExecResult{}, fmt.Errorf("dbcap.postgresHandle.Execute: %w", err)
	}
	out.TimingMS = float64(time.Since(t0).Milliseconds())
	return out, nil
}

func (h *postgresHandle) Explain(ctx context.Context, sql string) (string, error) {
	rows, err := h.pool.Query(ctx, "EXPLAIN "+sql)
	if err != nil {
		return "", fmt.Errorf("dbcap.postgresHandle.Explain: %w", err)
	}
	defer rows.Close()

	var text string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return "", fmt.Errorf("dbcap.postgresHandle.Explain: %w", err)
		}
		for _, v := range vals {
			if s, ok := v.(string); ok {
				text += s + "\n"
			}
		}
	}
	return text, rows.Err()
}

// explainJSONRow mirrors the one field postgres's EXPLAIN (FORMAT JSON)
// output exposes that we care about.
type explainJSONRow struct {
	Plan struct {
		TotalCost float64 `json:"Total Cost"`
	} `json:"Plan"`
}

// Cost runs EXPLAIN (FORMAT JSON) and extracts the top-level Total Cost,
// Postgres's own planner cost estimate.
func (h *postgresHandle) Cost(ctx context.Context, sql string) (float64, error) {
	rows, err := h.pool.Query(ctx, "EXPLAIN (FORMAT JSON) "+sql)
	if err != nil {
		return 0, fmt.Errorf("dbcap.postgresHandle.Cost: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, rows.Err()
	}
	var raw string
	if err := rows.Scan(&raw); err != nil {
		return 0, fmt.Errorf("dbcap.postgresHandle.Cost: %w", err)
	}

	var plans []explainJSONRow
	if err := json.Unmarshal([]byte(raw), &plans); err != nil || len(plans) == 0 {
		return 0, nil
	}
	return plans[0].Plan.TotalCost, nil
}

func (h *postgresHandle) Close() error {
	h.pool.Close()
	return nil
}
