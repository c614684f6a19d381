package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowgraph/pkg/schema"
)

// LibSQLStore implements Store using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db    *sql.DB
	codec *Codec
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/flowgraph.db".
// A nil codec uses NewCodec(nil).
func NewLibSQLStore(dbPath string, codec *Codec) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so QueryRow is used for all of them.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	if codec == nil {
		codec = NewCodec(nil)
	}
	return &LibSQLStore{db: db, codec: codec}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Definitions ---

func (s *LibSQLStore) GetDefinition(ctx context.Context, id string) (*schema.WorkflowType, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM definitions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("definition", id)
	}
	if err != nil {
		return nil, storeErr("get definition", err)
	}
	return decodeDefinition(body)
}

func (s *LibSQLStore) SaveDefinition(ctx context.Context, def *schema.WorkflowType) error {
	if def.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "definition id is required")
	}
	body, err := json.Marshal(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeSerialization, "marshal definition").WithCause(err)
	}
	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO definitions (id, name, definition, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, definition=excluded.definition, updated_at=excluded.updated_at`,
		def.ID, nullStr(def.Name), string(body), now, now,
	)
	if err != nil {
		return storeErr("save definition", err)
	}
	return nil
}

func (s *LibSQLStore) ListDefinitions(ctx context.Context) ([]*schema.WorkflowType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM definitions ORDER BY id`)
	if err != nil {
		return nil, storeErr("list definitions", err)
	}
	defer rows.Close()

	var out []*schema.WorkflowType
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, storeErr("scan definition", err)
		}
		def, err := decodeDefinition(body)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteDefinition(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete definition", err)
	}
	return checkRowsAffected(res, "definition", id)
}

// --- Instances ---

func (s *LibSQLStore) LoadInstance(ctx context.Context, id string) (*schema.WorkflowInstance, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM instances WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("instance", id)
	}
	if err != nil {
		return nil, storeErr("load instance", err)
	}
	return s.codec.Unmarshal([]byte(doc))
}

// SaveInstance upserts the instance document and rewrites its bookmarks in
// one transaction.
func (s *LibSQLStore) SaveInstance(ctx context.Context, inst *schema.WorkflowInstance) error {
	if inst.CorrelationID == "" {
		return schema.NewError(schema.ErrCodeValidation, "instance correlation id is required")
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	inst.UpdatedAt = time.Now().UTC()

	doc, err := s.codec.Marshal(inst)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO instances (id, definition_id, status, document, faulted_activity_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, document=excluded.document,
		   faulted_activity_id=excluded.faulted_activity_id, updated_at=excluded.updated_at`,
		inst.CorrelationID, inst.DefinitionID, string(inst.Status), string(doc),
		nullStr(inst.FaultedActivityID), inst.CreatedAt.UnixNano(), inst.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return storeErr("upsert instance", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE instance_id = ?`, inst.CorrelationID); err != nil {
		return storeErr("clear bookmarks", err)
	}
	for activityID, b := range inst.Bookmarks {
		var due any
		if b.DueAt != nil {
			due = b.DueAt.UnixNano()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bookmarks (instance_id, activity_id, signal_key, due_at) VALUES (?, ?, ?, ?)`,
			inst.CorrelationID, activityID, b.SignalKey, due,
		); err != nil {
			return storeErr("insert bookmark", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit instance", err)
	}
	return nil
}

func (s *LibSQLStore) DeleteInstance(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM bookmarks WHERE instance_id = ?`,
		`DELETE FROM events WHERE instance_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return storeErr("delete instance", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete instance", err)
	}
	if err := checkRowsAffected(res, "instance", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*schema.WorkflowInstance, error) {
	var where []string
	var args []any

	if filter.DefinitionID != "" {
		where = append(where, "i.definition_id = ?")
		args = append(args, filter.DefinitionID)
	}
	if filter.Status != "" {
		where = append(where, "i.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SignalKey != "" || filter.DueBefore != nil {
		var cond []string
		if filter.SignalKey != "" {
			cond = append(cond, "b.signal_key = ?")
			args = append(args, filter.SignalKey)
		}
		if filter.DueBefore != nil {
			cond = append(cond, "b.due_at IS NOT NULL AND b.due_at <= ?")
			args = append(args, filter.DueBefore.UnixNano())
		}
		where = append(where, "EXISTS (SELECT 1 FROM bookmarks b WHERE b.instance_id = i.id AND "+
			strings.Join(cond, " AND ")+")")
	}

	query := "SELECT i.id, i.document FROM instances i"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.created_at, i.id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list instances", err)
	}
	defer rows.Close()

	// An undecodable document is skipped so one bad row cannot hide the rest.
	var out []*schema.WorkflowInstance
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, storeErr("scan instance", err)
		}
		inst, err := s.codec.Unmarshal([]byte(doc))
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable instance", "instance", id, "error", err)
			continue
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// --- Events ---

// AppendEvent assigns the next per-instance sequence number inside the
// insert transaction.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE instance_id = ?`, event.InstanceID,
	).Scan(&seq); err != nil {
		return storeErr("next sequence", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (instance_id, activity_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.InstanceID, nullStr(event.ActivityID), event.Type, nullRaw(event.Payload),
		event.Timestamp.UnixNano(), seq,
	)
	if err != nil {
		return storeErr("insert event", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit event", err)
	}
	event.Sequence = seq
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// GetEvents returns events with sequence > since, ordered by sequence.
func (s *LibSQLStore) GetEvents(ctx context.Context, instanceID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, activity_id, event_type, payload, timestamp, sequence
		 FROM events WHERE instance_id = ? AND sequence > ? ORDER BY sequence`,
		instanceID, since,
	)
	if err != nil {
		return nil, storeErr("get events", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		var activityID, payload sql.NullString
		var ts int64
		if err := rows.Scan(&e.ID, &e.InstanceID, &activityID, &e.Type, &payload, &ts, &e.Sequence); err != nil {
			return nil, storeErr("scan event", err)
		}
		e.ActivityID = activityID.String
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Helpers ---

func decodeDefinition(body string) (*schema.WorkflowType, error) {
	var def schema.WorkflowType
	if err := json.Unmarshal([]byte(body), &def); err != nil {
		return nil, schema.NewError(schema.ErrCodeSerialization, "unmarshal definition").WithCause(err)
	}
	return &def, nil
}

func storeErr(op string, err error) error {
	return schema.NewError(schema.ErrCodeStore, op).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return notFound(resource, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}
