package db

import (
	"context"
	"database/sql"

	"github.com/tphummel/rackline/internal/models"
)

const rackColumns = `id, name, location, total_units, status, notes, created_at, updated_at`

const unitColumns = `id, rack_id, unit_number, server_id,
	hostname, mgmt_ip_address, mgmt_mac_address, data_ip_address, data_mac_address, notes,
	placed_at, placed_by_id, installed_at, installed_by_id`

// CreateRack inserts a rack row. Units are inserted separately with
// CreateRackUnit.
func (s *Store) CreateRack(ctx context.Context, r *models.Rack) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO racks (`+rackColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Location, r.TotalUnits, string(r.Status), r.Notes,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	return err
}

// GetRack returns the rack with the given ID without its units.
func (s *Store) GetRack(ctx context.Context, id string) (*models.Rack, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+rackColumns+` FROM racks WHERE id = ?`, id)
	return scanRack(row)
}

// ListRacks returns all racks ordered by name.
func (s *Store) ListRacks(ctx context.Context) ([]*models.Rack, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+rackColumns+` FROM racks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Rack
	for rows.Next() {
		r, err := scanRack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRack replaces the mutable fields of r.
func (s *Store) UpdateRack(ctx context.Context, r *models.Rack) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE racks SET name=?, location=?, status=?, notes=?, updated_at=? WHERE id=?`,
		r.Name, r.Location, string(r.Status), r.Notes, formatTime(r.UpdatedAt), r.ID,
	))
}

// DeleteRack removes the rack and, by cascade, its units.
func (s *Store) DeleteRack(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM racks WHERE id = ?`, id))
}

// CreateRackUnit inserts one unit row.
func (s *Store) CreateRackUnit(ctx context.Context, u *models.RackUnit) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO rack_units (`+unitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.RackID, u.UnitNumber, nullString(u.ServerID),
		u.Hostname, u.MgmtIPAddress, u.MgmtMACAddress, u.DataIPAddress, u.DataMACAddress, u.Notes,
		nullTime(u.PlacedAt), nullInt(u.PlacedByID), nullTime(u.InstalledAt), nullInt(u.InstalledByID),
	)
	return err
}

// GetRackUnit returns the unit at (rackID, unitNumber), or sql.ErrNoRows.
func (s *Store) GetRackUnit(ctx context.Context, rackID string, unitNumber int) (*models.RackUnit, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM rack_units WHERE rack_id = ? AND unit_number = ?`,
		rackID, unitNumber)
	return scanUnit(row)
}

// GetUnitByServer returns the unit currently holding serverID, or
// sql.ErrNoRows when the server is not placed.
func (s *Store) GetUnitByServer(ctx context.Context, serverID string) (*models.RackUnit, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM rack_units WHERE server_id = ?`, serverID)
	return scanUnit(row)
}

// ListRackUnits returns the units of a rack ordered by unit number.
func (s *Store) ListRackUnits(ctx context.Context, rackID string) ([]models.RackUnit, error) {
	return s.queryUnits(ctx, `SELECT `+unitColumns+` FROM rack_units WHERE rack_id = ? ORDER BY unit_number`, rackID)
}

// ListFreeUnits returns the empty units of a rack.
func (s *Store) ListFreeUnits(ctx context.Context, rackID string) ([]models.RackUnit, error) {
	return s.queryUnits(ctx,
		`SELECT `+unitColumns+` FROM rack_units WHERE rack_id = ? AND server_id IS NULL ORDER BY unit_number`,
		rackID)
}

// UpdateRackUnit writes the occupancy and unit data of u.
func (s *Store) UpdateRackUnit(ctx context.Context, u *models.RackUnit) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE rack_units
		SET server_id=?, hostname=?, mgmt_ip_address=?, mgmt_mac_address=?, data_ip_address=?,
			data_mac_address=?, notes=?, placed_at=?, placed_by_id=?, installed_at=?, installed_by_id=?
		WHERE id=?`,
		nullString(u.ServerID), u.Hostname, u.MgmtIPAddress, u.MgmtMACAddress, u.DataIPAddress,
		u.DataMACAddress, u.Notes, nullTime(u.PlacedAt), nullInt(u.PlacedByID),
		nullTime(u.InstalledAt), nullInt(u.InstalledByID),
		u.ID,
	))
}

// ClearUnitsForServer empties any unit holding serverID.
func (s *Store) ClearUnitsForServer(ctx context.Context, serverID string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE rack_units
		SET server_id=NULL, hostname='', mgmt_ip_address='', mgmt_mac_address='', data_ip_address='',
			data_mac_address='', notes='', placed_at=NULL, placed_by_id=NULL, installed_at=NULL, installed_by_id=NULL
		WHERE server_id = ?`, serverID)
	return err
}

// CountOccupiedUnits returns the number of occupied units per rack name.
func (s *Store) CountOccupiedUnits(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx, `
		SELECT r.name, COUNT(u.server_id)
		FROM racks r LEFT JOIN rack_units u ON u.rack_id = r.id
		GROUP BY r.id`)
}

// ListRackServers returns the servers placed in a rack.
func (s *Store) ListRackServers(ctx context.Context, rackID string) ([]*models.Server, error) {
	return s.queryServers(ctx, `
		SELECT `+prefixed("s", serverColumns)+`
		FROM servers s JOIN rack_units u ON u.server_id = s.id
		WHERE u.rack_id = ?
		ORDER BY u.unit_number`, rackID)
}

func (s *Store) queryUnits(ctx context.Context, query string, args ...any) ([]models.RackUnit, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RackUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func scanRack(row scanner) (*models.Rack, error) {
	var r models.Rack
	var createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.Name, &r.Location, &r.TotalUnits, &r.Status, &r.Notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var p timeParser
	r.CreatedAt = p.at("created_at", createdAt)
	r.UpdatedAt = p.at("updated_at", updatedAt)
	if p.err != nil {
		return nil, p.err
	}
	return &r, nil
}

func scanUnit(row scanner) (*models.RackUnit, error) {
	var (
		u                     models.RackUnit
		serverID              sql.NullString
		placedAt, installedAt sql.NullString
		placedBy, installedBy sql.NullInt64
	)
	if err := row.Scan(
		&u.ID, &u.RackID, &u.UnitNumber, &serverID,
		&u.Hostname, &u.MgmtIPAddress, &u.MgmtMACAddress, &u.DataIPAddress, &u.DataMACAddress, &u.Notes,
		&placedAt, &placedBy, &installedAt, &installedBy,
	); err != nil {
		return nil, err
	}
	var p timeParser
	u.ServerID = stringPtr(serverID)
	u.PlacedAt = p.null("placed_at", placedAt)
	u.PlacedByID = int64Ptr(placedBy)
	u.InstalledAt = p.null("installed_at", installedAt)
	u.InstalledByID = int64Ptr(installedBy)
	if p.err != nil {
		return nil, p.err
	}
	u.State = u.DeriveState()
	return &u, nil
}
