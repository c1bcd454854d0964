package builtin

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
)

func init() {
	plugin.RegisterFactory("builtin/postgres", func() plugin.Plugin { return &Postgres{} })
}

// Postgres connects to the target DSN and runs a probe query. The
// connection lives for one probe only; monitored databases should not see
// lingering sessions from the worker.
type Postgres struct{}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Schema() check.ParamSchema {
	return check.ParamSchema{Fields: []check.ParamField{
		{Name: "query", Type: check.ParamString, Default: "SELECT 1"},
	}}
}

func (p *Postgres) Run(ctx context.Context, target string, params map[string]any) (any, error) {
	start := time.Now()
	conn, err := pgx.Connect(ctx, target)
	if err != nil {
		return nil, check.Failuref("connect: %v", err)
	}
	defer conn.Close(ctx)
	connectMS := time.Since(start).Milliseconds()

	query := stringParam(params, "query", "SELECT 1")
	qStart := time.Now()
	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, check.Failuref("query: %v", err)
	}
	count := 0
	for rows.Next() {
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, check.Failuref("rows: %v", err)
	}

	return map[string]any{
		"connect_ms": connectMS,
		"query_ms":   time.Since(qStart).Milliseconds(),
		"rows":       count,
	}, nil
}
