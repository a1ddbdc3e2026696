package driver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/agenthands/unison/internal/core/model"
)

// SQLiteStore is an embedded Store used for local inspection and tests.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func OpenSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database '%s': %w", path, err)
	}
	// Every connection to ":memory:" gets its own database.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logger.Info("opened sqlite store", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetEntity(ctx context.Context, guid string, asOfTime *time.Time) (*model.EntityInstance, error) {
	query := `SELECT is_proxy, body FROM entities WHERE guid = ?`
	args := []interface{}{guid}
	if asOfTime != nil {
		query += ` AND create_time <= ?`
		args = append(args, asOfTime.UnixMilli())
	}

	var (
		isProxy int
		body    string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&isProxy, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundError("get entity", guid)
	}
	if err != nil {
		return nil, model.StoreUnavailableError("get entity", err)
	}
	if isProxy != 0 {
		return nil, model.ProxyOnlyError("get entity", guid)
	}

	var e model.EntityInstance
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return nil, fmt.Errorf("failed to decode entity %s: %w", guid, err)
	}
	return &e, nil
}

func (s *SQLiteStore) GetRelationshipsForEntity(ctx context.Context, q RelationshipQuery) (RelationshipPage, error) {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}

	var (
		where = []string{"(end1_guid = ? OR end2_guid = ?)"}
		args  = []interface{}{q.EntityGUID, q.EntityGUID}
	)
	if q.TypeGUID != "" {
		where = append(where, "type_guid = ?")
		args = append(args, q.TypeGUID)
	}
	if q.TypeName != "" {
		where = append(where, "type_name = ?")
		args = append(args, q.TypeName)
	}
	if len(q.Statuses) > 0 {
		marks := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if q.AsOfTime != nil {
		where = append(where, "create_time <= ?")
		args = append(args, q.AsOfTime.UnixMilli())
	}
	args = append(args, q.PageSize+1, q.From)

	query := `SELECT guid, body FROM relationships WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY guid LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return RelationshipPage{}, model.StoreUnavailableError("get relationships", err)
	}
	defer rows.Close()

	page := RelationshipPage{}
	for rows.Next() {
		if len(page.Relationships) == q.PageSize {
			page.More = true
			break
		}
		var guid, body string
		if err := rows.Scan(&guid, &body); err != nil {
			return RelationshipPage{}, fmt.Errorf("failed to scan relationship: %w", err)
		}
		var r model.RelationshipInstance
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return RelationshipPage{}, fmt.Errorf("failed to decode relationship %s: %w", guid, err)
		}
		page.Relationships = append(page.Relationships, &r)
	}
	if err := rows.Err(); err != nil {
		return RelationshipPage{}, model.StoreUnavailableError("get relationships", err)
	}
	return page, nil
}

// Load inserts or replaces every record of f in one transaction. Records
// without a GUID get a fresh one.
func (s *SQLiteStore) Load(ctx context.Context, f *Fixture) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const upsertEntity = `INSERT OR REPLACE INTO entities (guid, type_name, status, is_proxy, create_time, body)
		VALUES (?, ?, ?, ?, ?, ?)`
	const upsertRelationship = `INSERT OR REPLACE INTO relationships
		(guid, type_guid, type_name, status, end1_guid, end2_guid, create_time, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for _, p := range f.Proxies {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode proxy %s: %w", p.GUID, err)
		}
		if _, err := tx.ExecContext(ctx, upsertEntity, p.GUID, p.TypeName, string(model.StatusActive), 1, 0, string(body)); err != nil {
			return fmt.Errorf("failed to save proxy %s: %w", p.GUID, err)
		}
	}

	for _, e := range f.Entities {
		if e.GUID == "" {
			e.GUID = uuid.New().String()
		}
		if e.Status == "" {
			e.Status = model.StatusActive
		}
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entity %s: %w", e.GUID, err)
		}
		if _, err := tx.ExecContext(ctx, upsertEntity, e.GUID, e.TypeName, string(e.Status), 0, e.CreateTime.UnixMilli(), string(body)); err != nil {
			return fmt.Errorf("failed to save entity %s: %w", e.GUID, err)
		}
	}

	for _, r := range f.Relationships {
		if r.GUID == "" {
			r.GUID = uuid.New().String()
		}
		if r.Status == "" {
			r.Status = model.StatusActive
		}
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode relationship %s: %w", r.GUID, err)
		}
		if _, err := tx.ExecContext(ctx, upsertRelationship,
			r.GUID, r.TypeGUID, r.TypeName, string(r.Status), r.End1.GUID, r.End2.GUID,
			r.CreateTime.UnixMilli(), string(body)); err != nil {
			return fmt.Errorf("failed to save relationship %s: %w", r.GUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fixture: %w", err)
	}

	s.logger.Info("fixture loaded",
		zap.Int("entities", len(f.Entities)),
		zap.Int("proxies", len(f.Proxies)),
		zap.Int("relationships", len(f.Relationships)))
	return nil
}
