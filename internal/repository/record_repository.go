package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// RecordRepository stores the local copy of every synchronized table. Rows
// are kept as the raw JSON snapshot received from (or queued for) the remote,
// plus the columns the engine filters on.
type RecordRepository struct {
	db DBTX
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *RecordRepository) WithTx(tx *sql.Tx) *RecordRepository {
	return &RecordRepository{db: tx}
}

// Upsert inserts or replaces a record. The record must carry an "id" field.
func (r *RecordRepository) Upsert(ctx context.Context, table string, record map[string]any) error {
	if err := validTable(table); err != nil {
		return err
	}
	id, ok := stringField(record, "id")
	if !ok {
		return fmt.Errorf("record for %s has no id", table)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s/%s: %w", table, id, err)
	}

	siteID, _ := stringField(record, "site_id")
	clientID, _ := stringField(record, "client_id")
	updatedAt := int64Field(record, "updated_at")

	query := fmt.Sprintf(`
		INSERT INTO %s (id, site_id, client_id, updated_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			site_id = excluded.site_id,
			client_id = excluded.client_id,
			updated_at = excluded.updated_at,
			data = excluded.data`, table)

	_, err = r.db.ExecContext(ctx, query, id, nullString(siteID), nullString(clientID), updatedAt, string(data))
	return err
}

// Get retrieves a record by id, or nil when absent
func (r *RecordRepository) Get(ctx context.Context, table, id string) (map[string]any, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	var data string
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, table), id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(table, id, data)
}

// List returns every record of a table
func (r *RecordRepository) List(ctx context.Context, table string) ([]map[string]any, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, data FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		record, err := decodeRecord(table, id, data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Patch applies a partial update to an existing record; fields not named in
// fields keep their stored value. Missing records are ignored.
func (r *RecordRepository) Patch(ctx context.Context, table, id string, fields map[string]any) error {
	if err := validTable(table); err != nil {
		return err
	}
	record, err := r.Get(ctx, table, id)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	for key, value := range fields {
		record[key] = value
	}
	return r.Upsert(ctx, table, record)
}

// Delete removes a record by id
func (r *RecordRepository) Delete(ctx context.Context, table, id string) error {
	if err := validTable(table); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	return err
}

// Count returns the number of records in a table
func (r *RecordRepository) Count(ctx context.Context, table string) (int, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	var count int
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count)
	return count, err
}

func decodeRecord(table, id, data string) (map[string]any, error) {
	var record map[string]any
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("decode record %s/%s: %w", table, id, err)
	}
	return record, nil
}

func stringField(record map[string]any, key string) (string, bool) {
	value, ok := record[key].(string)
	return value, ok && value != ""
}

func int64Field(record map[string]any, key string) any {
	switch v := record[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return nil
	}
}
