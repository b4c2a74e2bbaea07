package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
)

func unitKey(rackID string, unitNumber int) string {
	return fmt.Sprintf("%s/%d", rackID, unitNumber)
}

// loadUnit returns the unit at (rackID, unitNumber) after checking the rack
// exists, so a missing rack and a missing unit report differently.
func loadUnit(ctx context.Context, tx *db.Store, rackID string, unitNumber int) (*models.Rack, *models.RackUnit, error) {
	rack, err := tx.GetRack(ctx, rackID)
	if err != nil {
		return nil, nil, notFound(err, "rack", rackID)
	}
	unit, err := tx.GetRackUnit(ctx, rackID, unitNumber)
	if err != nil {
		return nil, nil, notFound(err, "rack unit", unitKey(rackID, unitNumber))
	}
	return rack, unit, nil
}

func validateUnitData(d *models.UnitData) error {
	for _, f := range []struct {
		name string
		val  *string
		norm func(string) (string, error)
	}{
		{"mgmt_ip_address", &d.MgmtIPAddress, normalizeIP},
		{"data_ip_address", &d.DataIPAddress, normalizeIP},
		{"mgmt_mac_address", &d.MgmtMACAddress, normalizeMAC},
		{"data_mac_address", &d.DataMACAddress, normalizeMAC},
	} {
		v, err := f.norm(*f.val)
		if err != nil {
			return err
		}
		*f.val = v
	}
	return nil
}

func placementEntry(action models.HistoryAction, rackID string, unitNumber int, serverID string, actor int64) *models.HistoryEntry {
	e := entityEntry(models.EntityRack, rackID, action, serverID, actor)
	e.Metadata = map[string]any{"unit_number": unitNumber}
	return e
}

// PlaceInUnit seats a server in an empty unit. The server must not occupy
// any other unit; its status is not changed.
func (s *Service) PlaceInUnit(ctx context.Context, rackID string, unitNumber int, serverID string, data models.UnitData, actor int64) (*models.RackUnit, error) {
	if err := validateUnitData(&data); err != nil {
		return nil, err
	}
	var unit *models.RackUnit
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		rack, u, err := loadUnit(ctx, tx, rackID, unitNumber)
		if err != nil {
			return err
		}
		unit = u
		if rack.Status == models.RackDecommissioned {
			return fmt.Errorf("%w: rack %s is decommissioned", ErrPreconditionFailed, rackID)
		}
		if unit.ServerID != nil {
			return fmt.Errorf("%w: unit %s holds server %s", ErrUnitOccupied, unitKey(rackID, unitNumber), *unit.ServerID)
		}
		srv, err := tx.GetServer(ctx, serverID)
		if err != nil {
			return notFound(err, "server", serverID)
		}
		if srv.Status == models.ServerArchived {
			return fmt.Errorf("%w: server %s is archived", ErrPreconditionFailed, serverID)
		}
		if other, err := tx.GetUnitByServer(ctx, serverID); err == nil {
			return fmt.Errorf("%w: server %s is in unit %s", ErrServerAlreadyPlaced, serverID, unitKey(other.RackID, other.UnitNumber))
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		unit.ServerID = &srv.ID
		unit.UnitData = data
		unit.PlacedAt = timePtr(l.now)
		unit.PlacedByID = actorPtr(actor)
		unit.InstalledAt = nil
		unit.InstalledByID = nil
		if err := tx.UpdateRackUnit(ctx, unit); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: server %s", ErrServerAlreadyPlaced, serverID)
			}
			return err
		}
		unit.State = unit.DeriveState()
		l.add(placementEntry(models.ActionPlaced, rackID, unitNumber, serverID, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// TakeUnitToWork marks a PLACED unit installed and takes its server to
// work. Both changes commit together or not at all.
func (s *Service) TakeUnitToWork(ctx context.Context, rackID string, unitNumber int, actor int64) (*models.RackUnit, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var unit *models.RackUnit
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		_, u, err := loadUnit(ctx, tx, rackID, unitNumber)
		if err != nil {
			return err
		}
		unit = u
		if state := unit.DeriveState(); state != models.UnitPlaced {
			return fmt.Errorf("%w: unit %s is %s, expected PLACED", ErrInvalidTransition, unitKey(rackID, unitNumber), state)
		}
		unit.InstalledAt = timePtr(l.now)
		unit.InstalledByID = actorPtr(actor)
		if err := tx.UpdateRackUnit(ctx, unit); err != nil {
			return err
		}
		srv, err := tx.GetServer(ctx, *unit.ServerID)
		if err != nil {
			return notFound(err, "server", *unit.ServerID)
		}
		if err := takeServer(ctx, tx, l, srv, actor); err != nil {
			return err
		}
		unit.State = unit.DeriveState()
		l.add(placementEntry(models.ActionInstalled, rackID, unitNumber, srv.ID, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// RemoveFromUnit empties a unit. Removing from an empty unit is a no-op.
func (s *Service) RemoveFromUnit(ctx context.Context, rackID string, unitNumber int, actor int64) (*models.RackUnit, error) {
	var unit *models.RackUnit
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		_, u, err := loadUnit(ctx, tx, rackID, unitNumber)
		if err != nil {
			return err
		}
		unit = u
		if unit.ServerID == nil {
			return nil
		}
		serverID := *unit.ServerID
		e := placementEntry(models.ActionRemovedFromRack, rackID, unitNumber, serverID, actor)
		e.Metadata["state"] = string(unit.DeriveState())
		if err := tx.ClearUnitsForServer(ctx, serverID); err != nil {
			return err
		}
		*unit = models.RackUnit{ID: unit.ID, RackID: unit.RackID, UnitNumber: unit.UnitNumber}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	unit.State = unit.DeriveState()
	return unit, nil
}

// MoveServer vacates one unit and places its server in another, carrying
// the unit data and install state.
func (s *Service) MoveServer(ctx context.Context, fromRack string, fromUnit int, toRack string, toUnit int, actor int64) (*models.RackUnit, error) {
	if fromRack == toRack && fromUnit == toUnit {
		return nil, fmt.Errorf("%w: source and target unit are the same", ErrValidation)
	}
	var dst *models.RackUnit
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		_, src, err := loadUnit(ctx, tx, fromRack, fromUnit)
		if err != nil {
			return err
		}
		rack, target, err := loadUnit(ctx, tx, toRack, toUnit)
		if err != nil {
			return err
		}
		if src.ServerID == nil {
			return fmt.Errorf("%w: unit %s is empty", ErrPreconditionFailed, unitKey(fromRack, fromUnit))
		}
		if target.ServerID != nil {
			return fmt.Errorf("%w: unit %s holds server %s", ErrUnitOccupied, unitKey(toRack, toUnit), *target.ServerID)
		}
		if rack.Status == models.RackDecommissioned {
			return fmt.Errorf("%w: rack %s is decommissioned", ErrPreconditionFailed, toRack)
		}
		serverID := *src.ServerID
		if err := tx.ClearUnitsForServer(ctx, serverID); err != nil {
			return err
		}
		moved := *src
		moved.ID = target.ID
		moved.RackID = target.RackID
		moved.UnitNumber = target.UnitNumber
		if err := tx.UpdateRackUnit(ctx, &moved); err != nil {
			return err
		}
		moved.State = moved.DeriveState()
		dst = &moved

		e := entityEntry(models.EntityRack, toRack, models.ActionMoved, serverID, actor)
		e.Metadata = map[string]any{
			"from_rack_id":     fromRack,
			"from_unit_number": fromUnit,
			"to_rack_id":       toRack,
			"to_unit_number":   toUnit,
		}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// ClusterServerInput updates a membership's role and cluster network data.
type ClusterServerInput struct {
	Role             models.ServerRole `json:"role"`
	ClusterHostname  string            `json:"cluster_hostname"`
	ClusterIPAddress string            `json:"cluster_ip_address"`
}

// AddServersToCluster adds each server to the cluster with the given role.
// Items are applied one by one: a server that is unknown, archived or
// already in an active cluster is rejected while the rest are added.
func (s *Service) AddServersToCluster(ctx context.Context, clusterID string, serverIDs []string, role models.ServerRole, actor int64) (*BatchResult, error) {
	if role == "" {
		role = "WORKER"
	}
	if !models.ValidServerRoles[role] {
		return nil, fmt.Errorf("%w: invalid role %q", ErrValidation, role)
	}
	c, err := s.db.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, notFound(err, "cluster", clusterID)
	}
	if !c.Status.IsActive() {
		return nil, fmt.Errorf("%w: cluster %s is %s", ErrPreconditionFailed, clusterID, c.Status)
	}

	res := &BatchResult{Added: []string{}, Rejected: []Rejection{}}
	for _, sid := range serverIDs {
		err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
			return addClusterMember(ctx, tx, l, clusterID, sid, role, actor)
		})
		if err != nil {
			res.reject(sid, err)
			continue
		}
		res.Added = append(res.Added, sid)
	}
	return res, nil
}

func addClusterMember(ctx context.Context, tx *db.Store, l *ledger, clusterID, serverID string, role models.ServerRole, actor int64) error {
	c, err := tx.GetCluster(ctx, clusterID)
	if err != nil {
		return notFound(err, "cluster", clusterID)
	}
	srv, err := tx.GetServer(ctx, serverID)
	if err != nil {
		return notFound(err, "server", serverID)
	}
	if srv.Status == models.ServerArchived {
		return fmt.Errorf("%w: server %s is archived", ErrPreconditionFailed, serverID)
	}
	if other, err := tx.ActiveClusterOf(ctx, serverID); err == nil {
		return fmt.Errorf("%w: server %s is in cluster %s", ErrServerAlreadyInCluster, serverID, other)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	m := &models.ClusterServer{
		ID:          uuid.NewString(),
		ClusterID:   clusterID,
		ServerID:    serverID,
		Role:        role,
		OrderNumber: c.NextOrderNumber,
		AddedAt:     l.now,
		AddedByID:   actorPtr(actor),
	}
	c.NextOrderNumber++
	c.UpdatedAt = l.now
	if err := tx.UpdateCluster(ctx, c); err != nil {
		return err
	}
	if err := tx.AddClusterMember(ctx, m); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: server %s", ErrServerAlreadyInCluster, serverID)
		}
		return err
	}
	e := entityEntry(models.EntityCluster, clusterID, models.ActionAddedToCluster, serverID, actor)
	e.Metadata = map[string]any{"role": string(role), "order_number": m.OrderNumber}
	l.add(e)
	return nil
}

// RemoveServerFromCluster drops a membership. Removing a non-member is a
// no-op; only an unknown cluster is an error.
func (s *Service) RemoveServerFromCluster(ctx context.Context, clusterID, serverID string, actor int64) error {
	return s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		if _, err := tx.GetCluster(ctx, clusterID); err != nil {
			return notFound(err, "cluster", clusterID)
		}
		err := tx.RemoveClusterMember(ctx, clusterID, serverID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		l.add(entityEntry(models.EntityCluster, clusterID, models.ActionRemovedFromCluster, serverID, actor))
		return nil
	})
}

// UpdateClusterServer changes the role and cluster network data of one
// membership.
func (s *Service) UpdateClusterServer(ctx context.Context, clusterID, serverID string, in ClusterServerInput, actor int64) (*models.ClusterServer, error) {
	if in.Role != "" && !models.ValidServerRoles[in.Role] {
		return nil, fmt.Errorf("%w: invalid role %q", ErrValidation, in.Role)
	}
	ip, err := normalizeIP(in.ClusterIPAddress)
	if err != nil {
		return nil, err
	}
	var m *models.ClusterServer
	err = s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		m, err = tx.GetClusterMember(ctx, clusterID, serverID)
		if err != nil {
			return notFound(err, "cluster member", clusterID+"/"+serverID)
		}
		if in.Role != "" {
			m.Role = in.Role
		}
		m.ClusterHostname = in.ClusterHostname
		m.ClusterIPAddress = ip
		if err := tx.UpdateClusterMember(ctx, m); err != nil {
			return err
		}
		e := entityEntry(models.EntityCluster, clusterID, models.ActionUpdated, serverID, actor)
		e.Metadata = map[string]any{"role": string(m.Role), "cluster_hostname": m.ClusterHostname, "cluster_ip_address": ip}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
