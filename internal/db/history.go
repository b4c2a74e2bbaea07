package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tphummel/rackline/internal/models"
)

const historyColumns = `id, entity_type, entity_id, server_id, action, from_status, to_status,
	actor_id, duration_seconds, comment, metadata, created_at`

// DefaultHistoryLimit caps ListHistory when the filter does not set a limit.
const DefaultHistoryLimit = 100

// AppendHistory inserts e and sets e.ID to the assigned sequence number.
func (s *Store) AppendHistory(ctx context.Context, e *models.HistoryEntry) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO history (entity_type, entity_id, server_id, action, from_status, to_status,
			actor_id, duration_seconds, comment, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.EntityType), e.EntityID, nullString(e.ServerID), string(e.Action), e.FromStatus, e.ToStatus,
		nullInt(e.ActorID), nullInt(e.DurationSeconds), e.Comment, string(meta), formatTime(e.CreatedAt),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListHistory returns entries matching f, newest first.
func (s *Store) ListHistory(ctx context.Context, f models.HistoryFilter) ([]*models.HistoryEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(f.EntityType))
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.ServerID != "" {
		where = append(where, "server_id = ?")
		args = append(args, f.ServerID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(f.Until))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `SELECT ` + historyColumns + ` FROM history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ServerStatusHistory returns the status transitions of a server in the
// order they happened.
func (s *Store) ServerStatusHistory(ctx context.Context, serverID string) ([]*models.HistoryEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM history
		WHERE entity_type = ? AND entity_id = ? AND from_status <> '' AND to_status <> ''
		ORDER BY id`, string(models.EntityServer), serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanHistory(row scanner) (*models.HistoryEntry, error) {
	var (
		e               models.HistoryEntry
		serverID        sql.NullString
		actor, duration sql.NullInt64
		meta, createdAt string
	)
	if err := row.Scan(
		&e.ID, &e.EntityType, &e.EntityID, &serverID, &e.Action, &e.FromStatus, &e.ToStatus,
		&actor, &duration, &e.Comment, &meta, &createdAt,
	); err != nil {
		return nil, err
	}
	e.ServerID = stringPtr(serverID)
	e.ActorID = int64Ptr(actor)
	e.DurationSeconds = int64Ptr(duration)
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = t
	return &e, nil
}
