package db

import (
	"context"
	"database/sql"

	"github.com/tphummel/rackline/internal/models"
)

const clusterColumns = `id, name, description, status, shipment_id, expected_count,
	next_order_number, notes, created_at, updated_at`

const memberColumns = `id, cluster_id, server_id, role, cluster_hostname, cluster_ip_address,
	order_number, added_at, added_by_id`

// CreateCluster inserts a new cluster.
func (s *Store) CreateCluster(ctx context.Context, c *models.Cluster) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO clusters (`+clusterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, string(c.Status), nullString(c.ShipmentID), c.ExpectedCount,
		c.NextOrderNumber, c.Notes, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	return err
}

// GetCluster returns the cluster with the given ID without its members.
func (s *Store) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = ?`, id)
	return scanCluster(row)
}

// ListClusters returns clusters, optionally only those of one shipment.
func (s *Store) ListClusters(ctx context.Context, shipmentID string) ([]*models.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM clusters`
	var args []any
	if shipmentID != "" {
		query += ` WHERE shipment_id = ?`
		args = append(args, shipmentID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCluster replaces the mutable fields of c, including the order
// counter.
func (s *Store) UpdateCluster(ctx context.Context, c *models.Cluster) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE clusters
		SET name=?, description=?, status=?, shipment_id=?, expected_count=?, next_order_number=?, notes=?, updated_at=?
		WHERE id=?`,
		c.Name, c.Description, string(c.Status), nullString(c.ShipmentID), c.ExpectedCount,
		c.NextOrderNumber, c.Notes, formatTime(c.UpdatedAt), c.ID,
	))
}

// DeleteCluster removes the cluster and, by cascade, its memberships.
func (s *Store) DeleteCluster(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM clusters WHERE id = ?`, id))
}

// AddClusterMember inserts a membership row.
func (s *Store) AddClusterMember(ctx context.Context, m *models.ClusterServer) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO cluster_servers (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ClusterID, m.ServerID, string(m.Role), m.ClusterHostname, m.ClusterIPAddress,
		m.OrderNumber, formatTime(m.AddedAt), nullInt(m.AddedByID),
	)
	return err
}

// GetClusterMember returns the membership of serverID in clusterID.
func (s *Store) GetClusterMember(ctx context.Context, clusterID, serverID string) (*models.ClusterServer, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM cluster_servers WHERE cluster_id = ? AND server_id = ?`,
		clusterID, serverID)
	return scanMember(row)
}

// UpdateClusterMember writes role, hostname and IP of m.
func (s *Store) UpdateClusterMember(ctx context.Context, m *models.ClusterServer) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE cluster_servers SET role=?, cluster_hostname=?, cluster_ip_address=? WHERE id=?`,
		string(m.Role), m.ClusterHostname, m.ClusterIPAddress, m.ID,
	))
}

// RemoveClusterMember deletes a membership. Returns sql.ErrNoRows when the
// server was not a member.
func (s *Store) RemoveClusterMember(ctx context.Context, clusterID, serverID string) error {
	return expectOne(s.q.ExecContext(ctx,
		`DELETE FROM cluster_servers WHERE cluster_id = ? AND server_id = ?`, clusterID, serverID))
}

// RemoveServerMemberships deletes every membership of serverID.
func (s *Store) RemoveServerMemberships(ctx context.Context, serverID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM cluster_servers WHERE server_id = ?`, serverID)
	return err
}

// ListClusterMembers returns the members of a cluster by order number.
func (s *Store) ListClusterMembers(ctx context.Context, clusterID string) ([]models.ClusterServer, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM cluster_servers WHERE cluster_id = ? ORDER BY order_number`, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ClusterServer
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListClusterServers returns the server rows of a cluster's members.
func (s *Store) ListClusterServers(ctx context.Context, clusterID string) ([]*models.Server, error) {
	return s.queryServers(ctx, `
		SELECT `+prefixed("s", serverColumns)+`
		FROM servers s JOIN cluster_servers m ON m.server_id = s.id
		WHERE m.cluster_id = ?
		ORDER BY m.order_number`, clusterID)
}

// ActiveClusterOf returns the id of the active cluster serverID belongs to,
// or sql.ErrNoRows. Deployed clusters do not count.
func (s *Store) ActiveClusterOf(ctx context.Context, serverID string) (string, error) {
	var id string
	err := s.q.QueryRowContext(ctx, `
		SELECT c.id FROM clusters c JOIN cluster_servers m ON m.cluster_id = c.id
		WHERE m.server_id = ? AND c.status <> ?
		LIMIT 1`, serverID, string(models.ClusterDeployed)).Scan(&id)
	return id, err
}

func scanCluster(row scanner) (*models.Cluster, error) {
	var (
		c                    models.Cluster
		shipmentID           sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Status, &shipmentID, &c.ExpectedCount,
		&c.NextOrderNumber, &c.Notes, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	var p timeParser
	c.ShipmentID = stringPtr(shipmentID)
	c.CreatedAt = p.at("created_at", createdAt)
	c.UpdatedAt = p.at("updated_at", updatedAt)
	if p.err != nil {
		return nil, p.err
	}
	return &c, nil
}

func scanMember(row scanner) (*models.ClusterServer, error) {
	var (
		m       models.ClusterServer
		addedAt string
		addedBy sql.NullInt64
	)
	if err := row.Scan(
		&m.ID, &m.ClusterID, &m.ServerID, &m.Role, &m.ClusterHostname, &m.ClusterIPAddress,
		&m.OrderNumber, &addedAt, &addedBy,
	); err != nil {
		return nil, err
	}
	t, err := parseTime("added_at", addedAt)
	if err != nil {
		return nil, err
	}
	m.AddedAt = t
	m.AddedByID = int64Ptr(addedBy)
	return &m, nil
}
