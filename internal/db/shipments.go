package db

import (
	"context"
	"database/sql"

	"github.com/tphummel/rackline/internal/models"
)

const shipmentColumns = `id, name, destination_city, status, expected_count,
	shipped_at, delivered_at, accepted_at, notes, created_at, updated_at`

// CreateShipment inserts a new shipment.
func (s *Store) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO shipments (`+shipmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.Name, sh.DestinationCity, string(sh.Status), sh.ExpectedCount,
		nullTime(sh.ShippedAt), nullTime(sh.DeliveredAt), nullTime(sh.AcceptedAt),
		sh.Notes, formatTime(sh.CreatedAt), formatTime(sh.UpdatedAt),
	)
	return err
}

// GetShipment returns the shipment with the given ID, or sql.ErrNoRows.
func (s *Store) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = ?`, id)
	return scanShipment(row)
}

// ListShipments returns all shipments, newest first.
func (s *Store) ListShipments(ctx context.Context) ([]*models.Shipment, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+shipmentColumns+` FROM shipments ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// UpdateShipment replaces the mutable fields of sh.
func (s *Store) UpdateShipment(ctx context.Context, sh *models.Shipment) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE shipments
		SET name=?, destination_city=?, status=?, expected_count=?, shipped_at=?, delivered_at=?,
			accepted_at=?, notes=?, updated_at=?
		WHERE id=?`,
		sh.Name, sh.DestinationCity, string(sh.Status), sh.ExpectedCount,
		nullTime(sh.ShippedAt), nullTime(sh.DeliveredAt), nullTime(sh.AcceptedAt),
		sh.Notes, formatTime(sh.UpdatedAt), sh.ID,
	))
}

// DeleteShipment removes the shipment row.
func (s *Store) DeleteShipment(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM shipments WHERE id = ?`, id))
}

// CountShipmentClusters returns the number of clusters attached to a
// shipment.
func (s *Store) CountShipmentClusters(ctx context.Context, shipmentID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM clusters WHERE shipment_id = ?`, shipmentID).Scan(&n)
	return n, err
}

func scanShipment(row scanner) (*models.Shipment, error) {
	var (
		sh                                 models.Shipment
		shippedAt, deliveredAt, acceptedAt sql.NullString
		createdAt, updatedAt               string
	)
	if err := row.Scan(
		&sh.ID, &sh.Name, &sh.DestinationCity, &sh.Status, &sh.ExpectedCount,
		&shippedAt, &deliveredAt, &acceptedAt, &sh.Notes, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	var p timeParser
	sh.ShippedAt = p.null("shipped_at", shippedAt)
	sh.DeliveredAt = p.null("delivered_at", deliveredAt)
	sh.AcceptedAt = p.null("accepted_at", acceptedAt)
	sh.CreatedAt = p.at("created_at", createdAt)
	sh.UpdatedAt = p.at("updated_at", updatedAt)
	if p.err != nil {
		return nil, p.err
	}
	return &sh, nil
}
