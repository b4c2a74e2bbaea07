package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tphummel/rackline/internal/models"
)

const serverColumns = `id, serial_number, apk_serial_number, ip_address, hostname, mac_address,
	status, assigned_to_id, assigned_at, batch_id, lease_active, notes,
	status_changed_at, completed_at, archived_at, archived_by_id, created_at, updated_at`

// ServerFilter narrows ListServers. Zero values mean "any".
type ServerFilter struct {
	Status  models.ServerStatus
	BatchID string
	Search  string
	// Unclustered keeps only servers outside every active cluster.
	Unclustered bool
}

// CreateServer inserts a new server record.
func (s *Store) CreateServer(ctx context.Context, m *models.Server) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO servers (`+serverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SerialNumber, m.APKSerialNumber, m.IPAddress, m.Hostname, m.MACAddress,
		string(m.Status), nullInt(m.AssignedToID), nullTime(m.AssignedAt), nullString(m.BatchID),
		m.LeaseActive, m.Notes,
		formatTime(m.StatusChangedAt), nullTime(m.CompletedAt), nullTime(m.ArchivedAt),
		nullInt(m.ArchivedByID), formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	return err
}

// GetServer returns the server with the given ID, or sql.ErrNoRows.
func (s *Store) GetServer(ctx context.Context, id string) (*models.Server, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	return scanServer(row)
}

// ListServers returns servers matching f, oldest first.
func (s *Store) ListServers(ctx context.Context, f ServerFilter) ([]*models.Server, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.Search != "" {
		where = append(where, "(serial_number LIKE ? OR apk_serial_number LIKE ? OR hostname LIKE ? OR ip_address LIKE ?)")
		p := "%" + f.Search + "%"
		args = append(args, p, p, p, p)
	}
	if f.Unclustered {
		where = append(where, `id NOT IN (
			SELECT cs.server_id FROM cluster_servers cs JOIN clusters c ON c.id = cs.cluster_id
			WHERE c.status <> ?)`)
		args = append(args, string(models.ClusterDeployed))
	}
	query := `SELECT ` + serverColumns + ` FROM servers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	return s.queryServers(ctx, query, args...)
}

// ListServersByBatch returns the members of a batch.
func (s *Store) ListServersByBatch(ctx context.Context, batchID string) ([]*models.Server, error) {
	return s.ListServers(ctx, ServerFilter{BatchID: batchID})
}

// UpdateServer replaces all mutable fields for the server with m.ID.
// Returns sql.ErrNoRows if no such server exists.
func (s *Store) UpdateServer(ctx context.Context, m *models.Server) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE servers
		SET serial_number=?, apk_serial_number=?, ip_address=?, hostname=?, mac_address=?,
			status=?, assigned_to_id=?, assigned_at=?, batch_id=?, lease_active=?, notes=?,
			status_changed_at=?, completed_at=?, archived_at=?, archived_by_id=?, updated_at=?
		WHERE id=?`,
		m.SerialNumber, m.APKSerialNumber, m.IPAddress, m.Hostname, m.MACAddress,
		string(m.Status), nullInt(m.AssignedToID), nullTime(m.AssignedAt), nullString(m.BatchID),
		m.LeaseActive, m.Notes,
		formatTime(m.StatusChangedAt), nullTime(m.CompletedAt), nullTime(m.ArchivedAt),
		nullInt(m.ArchivedByID), formatTime(m.UpdatedAt),
		m.ID,
	))
}

// DeleteServer removes the server row. Callers detach references first.
func (s *Store) DeleteServer(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id))
}

// FindServerByIdentifier returns the first server other than excludeID whose
// column matches value. column must be one of the identifier columns.
func (s *Store) FindServerByIdentifier(ctx context.Context, column, value, excludeID string) (*models.Server, error) {
	switch column {
	case "serial_number", "apk_serial_number", "ip_address", "mac_address":
	default:
		return nil, sql.ErrNoRows
	}
	row := s.q.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE `+column+` = ? AND id <> ? LIMIT 1`,
		value, excludeID)
	return scanServer(row)
}

// SerialInUse reports whether any server carries serial as either its
// manufacturer or its internal serial number.
func (s *Store) SerialInUse(ctx context.Context, serial string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM servers WHERE serial_number = ? OR apk_serial_number = ?`,
		serial, serial).Scan(&n)
	return n > 0, err
}

// IdentifierCollision is a value shared by more than one server.
type IdentifierCollision struct {
	Field     string   `json:"field"`
	Value     string   `json:"value"`
	ServerIDs []string `json:"server_ids"`
}

// FindIdentifierCollisions lists identifier values carried by more than one
// server, including serials that appear as one server's manufacturer serial
// and another's internal serial.
func (s *Store) FindIdentifierCollisions(ctx context.Context) ([]IdentifierCollision, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT field, value, GROUP_CONCAT(id) FROM (
			SELECT 'serial' AS field, serial_number AS value, id FROM servers WHERE serial_number <> ''
			UNION ALL
			SELECT 'serial', apk_serial_number, id FROM servers WHERE apk_serial_number <> ''
			UNION ALL
			SELECT 'ip_address', ip_address, id FROM servers WHERE ip_address <> ''
			UNION ALL
			SELECT 'mac_address', mac_address, id FROM servers WHERE mac_address <> ''
		)
		GROUP BY field, value
		HAVING COUNT(DISTINCT id) > 1
		ORDER BY field, value`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IdentifierCollision
	for rows.Next() {
		var c IdentifierCollision
		var ids string
		if err := rows.Scan(&c.Field, &c.Value, &ids); err != nil {
			return nil, err
		}
		c.ServerIDs = strings.Split(ids, ",")
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountServersByStatus returns the number of servers in each status.
func (s *Store) CountServersByStatus(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx, `SELECT status, COUNT(*) FROM servers GROUP BY status`)
}

// ClearServerBatch detaches every server from batchID.
func (s *Store) ClearServerBatch(ctx context.Context, batchID string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE servers SET batch_id = NULL WHERE batch_id = ?`, batchID)
	return err
}

func (s *Store) countBy(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		counts[k] = n
	}
	return counts, rows.Err()
}

func (s *Store) queryServers(ctx context.Context, query string, args ...any) ([]*models.Server, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		m, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, m)
	}
	return servers, rows.Err()
}

func scanServer(row scanner) (*models.Server, error) {
	var (
		m                                            models.Server
		assignedTo, archivedBy                       sql.NullInt64
		assignedAt, batchID, completedAt, archivedAt sql.NullString
		statusChangedAt, createdAt, updatedAt        string
	)
	if err := row.Scan(
		&m.ID, &m.SerialNumber, &m.APKSerialNumber, &m.IPAddress, &m.Hostname, &m.MACAddress,
		&m.Status, &assignedTo, &assignedAt, &batchID, &m.LeaseActive, &m.Notes,
		&statusChangedAt, &completedAt, &archivedAt, &archivedBy, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	var p timeParser
	m.AssignedToID = int64Ptr(assignedTo)
	m.AssignedAt = p.null("assigned_at", assignedAt)
	m.BatchID = stringPtr(batchID)
	m.StatusChangedAt = p.at("status_changed_at", statusChangedAt)
	m.CompletedAt = p.null("completed_at", completedAt)
	m.ArchivedAt = p.null("archived_at", archivedAt)
	m.ArchivedByID = int64Ptr(archivedBy)
	m.CreatedAt = p.at("created_at", createdAt)
	m.UpdatedAt = p.at("updated_at", updatedAt)
	if p.err != nil {
		return nil, p.err
	}
	return &m, nil
}
