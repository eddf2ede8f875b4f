package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/medistock/device/internal/observability"
)

// PostgresBackend implements the backend contract directly against a shared
// Postgres database, for deployments that skip the REST layer.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend creates a Postgres backend from a connection string
func NewPostgresBackend(databaseURL string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	return &PostgresBackend{db: db}, nil
}

// Close releases the connection pool
func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

// Select returns rows of a table, optionally filtered by field equality
func (b *PostgresBackend) Select(ctx context.Context, table string, filters map[string]string) ([]map[string]any, error) {
	query := fmt.Sprintf(`SELECT * FROM %s`, pq.QuoteIdentifier(table))

	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	args := make([]any, 0, len(fields))
	var clauses []string
	for i, field := range fields {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(field), i+1))
		args = append(args, filters[field])
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("select "+table, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetByID returns one row, or ErrNotFound
func (b *PostgresBackend) GetByID(ctx context.Context, table, id string) (map[string]any, error) {
	records, err := b.Select(ctx, table, map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Upsert inserts or replaces a row keyed by its id
func (b *PostgresBackend) Upsert(ctx context.Context, table string, record map[string]any) error {
	ctx, span := observability.StartRemoteSpan(ctx, "upsert", table)
	defer span.End()

	columns := make([]string, 0, len(record))
	for column := range record {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		quoted[i] = pq.QuoteIdentifier(column)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = driverValue(record[column])
		if column != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s`,
		pq.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	if len(updates) == 0 {
		query = fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING`,
			pq.QuoteIdentifier(table),
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "),
		)
	}

	_, err := b.db.ExecContext(ctx, query, args...)
	if err := classify("upsert "+table, err); err != nil {
		observability.RecordError(span, err)
		return err
	}
	observability.SetSuccess(span)
	return nil
}

// Update modifies an existing row by id
func (b *PostgresBackend) Update(ctx context.Context, table, id string, record map[string]any) error {
	columns := make([]string, 0, len(record))
	for column := range record {
		if column != "id" {
			columns = append(columns, column)
		}
	}
	sort.Strings(columns)
	if len(columns) == 0 {
		return nil
	}

	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, column := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(column), i+1)
		args = append(args, driverValue(record[column]))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`,
		pq.QuoteIdentifier(table), strings.Join(assignments, ", "), len(columns)+1)

	_, err := b.db.ExecContext(ctx, query, args...)
	return classify("update "+table, err)
}

// Delete removes a row by id. Deleting an absent row is not an error.
func (b *PostgresBackend) Delete(ctx context.Context, table, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pq.QuoteIdentifier(table))
	_, err := b.db.ExecContext(ctx, query, id)
	return classify("delete "+table, err)
}

// Ping checks database reachability
func (b *PostgresBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return &TransientError{Op: "ping", Err: err}
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(columns))
		for i, column := range columns {
			switch v := values[i].(type) {
			case []byte:
				record[column] = string(v)
			default:
				record[column] = v
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// driverValue lowers nested JSON values to something lib/pq can bind
func driverValue(value any) any {
	switch value.(type) {
	case map[string]any, []any:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		return string(encoded)
	default:
		return value
	}
}

// classify sorts Postgres failures into the retry taxonomy: connection and
// resource errors are transient, constraint violations are not
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		switch class {
		case "08", "53", "57", "58":
			return &TransientError{Op: op, Err: err}
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}
	// Non-Postgres errors are transport-level
	return &TransientError{Op: op, Err: err}
}
