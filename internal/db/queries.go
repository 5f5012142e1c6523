package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

// QueryError carries a PostgreSQL error raised by a tenant query.
type QueryError struct {
	Err *pgconn.PgError
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %s (SQLSTATE %s)", e.Err.Message, e.Err.Code)
}

func (e *QueryError) Unwrap() error { return e.Err }

// HTTPStatus is 400 for errors the query author caused (syntax, undefined
// objects, bad data, read-only violations) and 502 otherwise.
func (e *QueryError) HTTPStatus() int {
	if len(e.Err.Code) < 2 {
		return http.StatusBadGateway
	}
	switch e.Err.Code[:2] {
	case "22", "25", "42":
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

type tabularResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// RunQuery executes req.Query in a read-only transaction with the caller's
// tenant and user exposed as app.tenant_id and app.user_id, for row-level
// security policies. The result is encoded as {columns, rows}.
func (db *DB) RunQuery(ctx context.Context, req models.QueryRequest) (json.RawMessage, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`SELECT set_config('app.tenant_id', $1, true), set_config('app.user_id', $2, true)`,
		strconv.FormatInt(req.TenantID, 10),
		strconv.FormatInt(req.UserID, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("setting query scope: %w", err)
	}

	// The extended protocol rejects multi-statement strings, so a query
	// cannot end the read-only transaction and continue outside it.
	rows, err := tx.Query(ctx, req.Query, pgx.QueryExecModeDescribeExec)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := tabularResult{
		Columns: make([]string, len(fields)),
		Rows:    [][]any{},
	}
	for i, f := range fields {
		result.Columns[i] = f.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		for i := range values {
			values[i] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err)
	}

	return json.Marshal(result)
}

func wrapQueryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &QueryError{Err: pgErr}
	}
	return fmt.Errorf("executing query: %w", err)
}
