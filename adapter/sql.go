package adapter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/hostauth/host"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type sqlAdapter struct {
	app    *host.App
	db     *sql.DB
	config Config
	logger zerolog.Logger
}

func (a *sqlAdapter) Config() Config {
	return a.config
}

func (a *sqlAdapter) table(model string) (string, error) {
	if !a.app.HasCollection(model) {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return host.TableName(model), nil
}

func (a *sqlAdapter) trace(model, op string, start time.Time, err error) {
	if !a.config.EnableDebugLogs {
		return
	}
	ev := a.logger.Debug().Str("model", model).Str("op", op).Dur("took", time.Since(start))
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("adapter operation")
}

func (a *sqlAdapter) Create(ctx context.Context, model string, data Record) (out Record, err error) {
	defer func(start time.Time) { a.trace(model, "create", start, err) }(time.Now())

	table, err := a.table(model)
	if err != nil {
		return nil, err
	}

	payload, err := encodeDocument(data)
	if err != nil {
		return nil, err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var id any
	switch a.config.IDType {
	case IDTypeText:
		text := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (id, data) VALUES (?, ?)`, text, payload); err != nil {
			return nil, writeError("insert", model, err)
		}
		id = text
	default:
		res, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (data) VALUES (?)`, payload)
		if err != nil {
			return nil, writeError("insert", model, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET id = ? WHERE seq = ?`, strconv.FormatInt(seq, 10), seq); err != nil {
			return nil, fmt.Errorf("assign id %s: %w", model, err)
		}
		id = seq
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out, err = decodeDocument(payload)
	if err != nil {
		return nil, err
	}
	out["id"] = id
	return out, nil
}

func (a *sqlAdapter) FindOne(ctx context.Context, model string, where []Where) (out Record, err error) {
	defer func(start time.Time) { a.trace(model, "findOne", start, err) }(time.Now())

	records, err := a.find(ctx, model, where, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0].record, nil
}

func (a *sqlAdapter) FindMany(ctx context.Context, model string, where []Where, opts FindOptions) (out []Record, err error) {
	defer func(start time.Time) { a.trace(model, "findMany", start, err) }(time.Now())

	rows, err := a.find(ctx, model, where, opts)
	if err != nil {
		return nil, err
	}
	out = make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record)
	}
	return out, nil
}

func (a *sqlAdapter) Count(ctx context.Context, model string, where []Where) (n int64, err error) {
	defer func(start time.Time) { a.trace(model, "count", start, err) }(time.Now())

	table, err := a.table(model)
	if err != nil {
		return 0, err
	}
	clause, args, err := buildWhere(where)
	if err != nil {
		return 0, err
	}
	err = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+clause, args...).Scan(&n)
	return n, err
}

func (a *sqlAdapter) Update(ctx context.Context, model string, where []Where, patch Record) (out Record, err error) {
	defer func(start time.Time) { a.trace(model, "update", start, err) }(time.Now())

	rows, err := a.find(ctx, model, where, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	updated, err := a.apply(ctx, model, rows, patch)
	if err != nil {
		return nil, err
	}
	return updated[0], nil
}

func (a *sqlAdapter) UpdateMany(ctx context.Context, model string, where []Where, patch Record) (n int64, err error) {
	defer func(start time.Time) { a.trace(model, "updateMany", start, err) }(time.Now())

	rows, err := a.find(ctx, model, where, FindOptions{})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	updated, err := a.apply(ctx, model, rows, patch)
	if err != nil {
		return 0, err
	}
	return int64(len(updated)), nil
}

func (a *sqlAdapter) Delete(ctx context.Context, model string, where []Where) (n int64, err error) {
	defer func(start time.Time) { a.trace(model, "delete", start, err) }(time.Now())

	table, err := a.table(model)
	if err != nil {
		return 0, err
	}
	clause, args, err := buildWhere(where)
	if err != nil {
		return 0, err
	}
	res, err := a.db.ExecContext(ctx, `DELETE FROM `+table+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", model, err)
	}
	return res.RowsAffected()
}

// writeError marks unique constraint failures with ErrConflict.
func writeError(op, model string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%s %s: %w: %w", op, model, ErrConflict, err)
	}
	return fmt.Errorf("%s %s: %w", op, model, err)
}

type storedRow struct {
	seq    int64
	record Record
}

func (a *sqlAdapter) find(ctx context.Context, model string, where []Where, opts FindOptions) ([]storedRow, error) {
	table, err := a.table(model)
	if err != nil {
		return nil, err
	}
	clause, args, err := buildWhere(where)
	if err != nil {
		return nil, err
	}
	order, err := buildOrder(opts.SortBy)
	if err != nil {
		return nil, err
	}

	query := `SELECT seq, id, data FROM ` + table + clause + order
	switch {
	case opts.Limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	case opts.Offset > 0:
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", model, err)
	}
	defer rows.Close()

	var out []storedRow
	for rows.Next() {
		var (
			seq  int64
			id   sql.NullString
			data string
		)
		if err := rows.Scan(&seq, &id, &data); err != nil {
			return nil, err
		}
		rec, err := decodeDocument([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", model, id.String, err)
		}
		rec["id"] = a.surfaceID(id.String)
		out = append(out, storedRow{seq: seq, record: rec})
	}
	return out, rows.Err()
}

func (a *sqlAdapter) apply(ctx context.Context, model string, rows []storedRow, patch Record) ([]Record, error) {
	table := host.TableName(model)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		id := row.record["id"]
		merged := make(Record, len(row.record)+len(patch))
		for k, v := range row.record {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}

		payload, err := encodeDocument(merged)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET data = ? WHERE seq = ?`, payload, row.seq); err != nil {
			return nil, writeError("update", model, err)
		}

		rec, err := decodeDocument(payload)
		if err != nil {
			return nil, err
		}
		rec["id"] = id
		out = append(out, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *sqlAdapter) surfaceID(raw string) any {
	if a.config.IDType == IDTypeNumber {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	return raw
}

func encodeDocument(data Record) ([]byte, error) {
	doc := make(map[string]any, len(data))
	for k, v := range data {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return payload, nil
}

func decodeDocument(payload []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("empty document")
	}
	out := make(Record, len(doc)+1)
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeValue(t[k])
		}
		return t
	default:
		return v
	}
}
