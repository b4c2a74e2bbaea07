package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
)

const (
	DefaultRackUnits             = 42
	MaxRackUnits                 = 100
	DefaultClusterExpectedCount  = 10
	DefaultShipmentExpectedCount = 80
)

func statusEntry(kind models.EntityType, id string, from, to string, actor int64) *models.HistoryEntry {
	e := entityEntry(kind, id, models.ActionStatusChanged, "", actor)
	e.FromStatus = from
	e.ToStatus = to
	return e
}

// RackInput is the create/update payload of a rack. TotalUnits is only
// read on create.
type RackInput struct {
	Name       string            `json:"name"`
	Location   string            `json:"location"`
	TotalUnits int               `json:"total_units"`
	Status     models.RackStatus `json:"status"`
	Notes      string            `json:"notes"`
}

// CreateRack creates a rack and its units 1..TotalUnits.
func (s *Service) CreateRack(ctx context.Context, in RackInput, actor int64) (*models.Rack, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.TotalUnits == 0 {
		in.TotalUnits = DefaultRackUnits
	}
	if in.TotalUnits < 1 || in.TotalUnits > MaxRackUnits {
		return nil, fmt.Errorf("%w: total_units must be between 1 and %d", ErrValidation, MaxRackUnits)
	}
	if in.Status == "" {
		in.Status = models.RackActive
	}
	if !models.ValidRackStatuses[in.Status] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, in.Status)
	}

	rack := &models.Rack{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Location:   in.Location,
		TotalUnits: in.TotalUnits,
		Status:     in.Status,
		Notes:      in.Notes,
	}
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		rack.CreatedAt = l.now
		rack.UpdatedAt = l.now
		if err := tx.CreateRack(ctx, rack); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: rack name %q already exists", ErrDuplicateIdentifier, rack.Name)
			}
			return err
		}
		rack.Units = make([]models.RackUnit, 0, rack.TotalUnits)
		for n := 1; n <= rack.TotalUnits; n++ {
			u := models.RackUnit{ID: uuid.NewString(), RackID: rack.ID, UnitNumber: n, State: models.UnitEmpty}
			if err := tx.CreateRackUnit(ctx, &u); err != nil {
				return err
			}
			rack.Units = append(rack.Units, u)
		}
		e := entityEntry(models.EntityRack, rack.ID, models.ActionCreated, "", actor)
		e.Metadata = map[string]any{"name": rack.Name, "total_units": rack.TotalUnits}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rack, nil
}

// GetRack returns a rack with its units.
func (s *Service) GetRack(ctx context.Context, id string) (*models.Rack, error) {
	rack, err := s.db.GetRack(ctx, id)
	if err != nil {
		return nil, notFound(err, "rack", id)
	}
	if rack.Units, err = s.db.ListRackUnits(ctx, id); err != nil {
		return nil, err
	}
	return rack, nil
}

// ListRacks returns every rack without units.
func (s *Service) ListRacks(ctx context.Context) ([]*models.Rack, error) {
	return s.db.ListRacks(ctx)
}

// ListFreeUnits returns the empty units of a rack.
func (s *Service) ListFreeUnits(ctx context.Context, rackID string) ([]models.RackUnit, error) {
	if _, err := s.db.GetRack(ctx, rackID); err != nil {
		return nil, notFound(err, "rack", rackID)
	}
	return s.db.ListFreeUnits(ctx, rackID)
}

// UpdateRack changes the name, location, status and notes of a rack.
func (s *Service) UpdateRack(ctx context.Context, id string, in RackInput, actor int64) (*models.Rack, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.Status != "" && !models.ValidRackStatuses[in.Status] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, in.Status)
	}
	var rack *models.Rack
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if rack, err = tx.GetRack(ctx, id); err != nil {
			return notFound(err, "rack", id)
		}
		if in.Status != "" && in.Status != rack.Status {
			l.add(statusEntry(models.EntityRack, id, string(rack.Status), string(in.Status), actor))
			rack.Status = in.Status
		}
		rack.Name = in.Name
		rack.Location = in.Location
		rack.Notes = in.Notes
		rack.UpdatedAt = l.now
		if err := tx.UpdateRack(ctx, rack); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: rack name %q already exists", ErrDuplicateIdentifier, rack.Name)
			}
			return err
		}
		l.add(entityEntry(models.EntityRack, id, models.ActionUpdated, "", actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rack, nil
}

// DeleteRack removes an empty rack.
func (s *Service) DeleteRack(ctx context.Context, id string, actor int64) error {
	return s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		rack, err := tx.GetRack(ctx, id)
		if err != nil {
			return notFound(err, "rack", id)
		}
		servers, err := tx.ListRackServers(ctx, id)
		if err != nil {
			return err
		}
		if len(servers) > 0 {
			return fmt.Errorf("%w: rack %s has %d occupied units", ErrPreconditionFailed, id, len(servers))
		}
		if err := tx.DeleteRack(ctx, id); err != nil {
			return notFound(err, "rack", id)
		}
		e := entityEntry(models.EntityRack, id, models.ActionDeleted, "", actor)
		e.Metadata = map[string]any{"name": rack.Name}
		l.add(e)
		return nil
	})
}

// ClusterInput is the create/update payload of a cluster.
type ClusterInput struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	ExpectedCount int    `json:"expected_count"`
	Notes         string `json:"notes"`
}

func (in *ClusterInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.ExpectedCount < 0 {
		return fmt.Errorf("%w: expected_count must not be negative", ErrValidation)
	}
	if in.ExpectedCount == 0 {
		in.ExpectedCount = DefaultClusterExpectedCount
	}
	return nil
}

// CreateCluster creates an empty FORMING cluster.
func (s *Service) CreateCluster(ctx context.Context, in ClusterInput, actor int64) (*models.Cluster, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	c := &models.Cluster{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Description:     in.Description,
		Status:          models.ClusterForming,
		ExpectedCount:   in.ExpectedCount,
		NextOrderNumber: 1,
		Notes:           in.Notes,
	}
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		c.CreatedAt = l.now
		c.UpdatedAt = l.now
		if err := tx.CreateCluster(ctx, c); err != nil {
			return err
		}
		e := entityEntry(models.EntityCluster, c.ID, models.ActionCreated, "", actor)
		e.ToStatus = string(c.Status)
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCluster returns a cluster with its members.
func (s *Service) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	c, err := s.db.GetCluster(ctx, id)
	if err != nil {
		return nil, notFound(err, "cluster", id)
	}
	if c.Servers, err = s.db.ListClusterMembers(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

// ListClusters returns clusters, optionally only those of one shipment.
func (s *Service) ListClusters(ctx context.Context, shipmentID string) ([]*models.Cluster, error) {
	return s.db.ListClusters(ctx, shipmentID)
}

// UpdateCluster changes the descriptive fields of a cluster.
func (s *Service) UpdateCluster(ctx context.Context, id string, in ClusterInput, actor int64) (*models.Cluster, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var c *models.Cluster
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if c, err = tx.GetCluster(ctx, id); err != nil {
			return notFound(err, "cluster", id)
		}
		c.Name = in.Name
		c.Description = in.Description
		c.ExpectedCount = in.ExpectedCount
		c.Notes = in.Notes
		c.UpdatedAt = l.now
		if err := tx.UpdateCluster(ctx, c); err != nil {
			return err
		}
		l.add(entityEntry(models.EntityCluster, id, models.ActionUpdated, "", actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SetClusterStatus moves a cluster along FORMING, READY, SHIPPED,
// DEPLOYED. READY may step back to FORMING.
func (s *Service) SetClusterStatus(ctx context.Context, id string, target models.ClusterStatus, actor int64) (*models.Cluster, error) {
	var c *models.Cluster
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if c, err = tx.GetCluster(ctx, id); err != nil {
			return notFound(err, "cluster", id)
		}
		if !models.CanTransitionCluster(c.Status, target) {
			return fmt.Errorf("%w: cluster %s -> %s", ErrInvalidTransition, c.Status, target)
		}
		l.add(statusEntry(models.EntityCluster, id, string(c.Status), string(target), actor))
		c.Status = target
		c.UpdatedAt = l.now
		return tx.UpdateCluster(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AssignClusterToShipment attaches a cluster to a shipment, or detaches it
// when shipmentID is nil.
func (s *Service) AssignClusterToShipment(ctx context.Context, id string, shipmentID *string, actor int64) (*models.Cluster, error) {
	var c *models.Cluster
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if c, err = tx.GetCluster(ctx, id); err != nil {
			return notFound(err, "cluster", id)
		}
		meta := map[string]any{}
		if c.ShipmentID != nil {
			meta["from_shipment_id"] = *c.ShipmentID
		}
		if shipmentID != nil {
			if _, err := tx.GetShipment(ctx, *shipmentID); err != nil {
				return notFound(err, "shipment", *shipmentID)
			}
			meta["to_shipment_id"] = *shipmentID
		}
		c.ShipmentID = shipmentID
		c.UpdatedAt = l.now
		if err := tx.UpdateCluster(ctx, c); err != nil {
			return err
		}
		e := entityEntry(models.EntityCluster, id, models.ActionUpdated, "", actor)
		e.Metadata = meta
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCluster removes a cluster and its memberships.
func (s *Service) DeleteCluster(ctx context.Context, id string, actor int64) error {
	return s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		c, err := tx.GetCluster(ctx, id)
		if err != nil {
			return notFound(err, "cluster", id)
		}
		if err := tx.DeleteCluster(ctx, id); err != nil {
			return notFound(err, "cluster", id)
		}
		e := entityEntry(models.EntityCluster, id, models.ActionDeleted, "", actor)
		e.Metadata = map[string]any{"name": c.Name}
		l.add(e)
		return nil
	})
}

// ShipmentInput is the create/update payload of a shipment.
type ShipmentInput struct {
	Name            string `json:"name"`
	DestinationCity string `json:"destination_city"`
	ExpectedCount   int    `json:"expected_count"`
	Notes           string `json:"notes"`
}

func (in *ShipmentInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.ExpectedCount < 0 {
		return fmt.Errorf("%w: expected_count must not be negative", ErrValidation)
	}
	if in.ExpectedCount == 0 {
		in.ExpectedCount = DefaultShipmentExpectedCount
	}
	return nil
}

// CreateShipment creates a FORMING shipment.
func (s *Service) CreateShipment(ctx context.Context, in ShipmentInput, actor int64) (*models.Shipment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	sh := &models.Shipment{
		ID:              uuid.NewString(),
		Name:            in.Name,
		DestinationCity: in.DestinationCity,
		Status:          models.ShipmentForming,
		ExpectedCount:   in.ExpectedCount,
		Notes:           in.Notes,
	}
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		sh.CreatedAt = l.now
		sh.UpdatedAt = l.now
		if err := tx.CreateShipment(ctx, sh); err != nil {
			return err
		}
		e := entityEntry(models.EntityShipment, sh.ID, models.ActionCreated, "", actor)
		e.ToStatus = string(sh.Status)
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sh, nil
}

// GetShipment returns one shipment.
func (s *Service) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	sh, err := s.db.GetShipment(ctx, id)
	if err != nil {
		return nil, notFound(err, "shipment", id)
	}
	return sh, nil
}

// ListShipments returns every shipment.
func (s *Service) ListShipments(ctx context.Context) ([]*models.Shipment, error) {
	return s.db.ListShipments(ctx)
}

// UpdateShipment changes the descriptive fields of a shipment.
func (s *Service) UpdateShipment(ctx context.Context, id string, in ShipmentInput, actor int64) (*models.Shipment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var sh *models.Shipment
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if sh, err = tx.GetShipment(ctx, id); err != nil {
			return notFound(err, "shipment", id)
		}
		sh.Name = in.Name
		sh.DestinationCity = in.DestinationCity
		sh.ExpectedCount = in.ExpectedCount
		sh.Notes = in.Notes
		sh.UpdatedAt = l.now
		if err := tx.UpdateShipment(ctx, sh); err != nil {
			return err
		}
		l.add(entityEntry(models.EntityShipment, id, models.ActionUpdated, "", actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sh, nil
}

// SetShipmentStatus moves a shipment along its delivery states. SHIPPED,
// DELIVERED and ACCEPTED stamp the matching timestamp.
func (s *Service) SetShipmentStatus(ctx context.Context, id string, target models.ShipmentStatus, actor int64) (*models.Shipment, error) {
	var sh *models.Shipment
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if sh, err = tx.GetShipment(ctx, id); err != nil {
			return notFound(err, "shipment", id)
		}
		if !models.CanTransitionShipment(sh.Status, target) {
			return fmt.Errorf("%w: shipment %s -> %s", ErrInvalidTransition, sh.Status, target)
		}
		l.add(statusEntry(models.EntityShipment, id, string(sh.Status), string(target), actor))
		switch target {
		case models.ShipmentShipped:
			sh.ShippedAt = timePtr(l.now)
		case models.ShipmentDelivered:
			sh.DeliveredAt = timePtr(l.now)
		case models.ShipmentAccepted:
			sh.AcceptedAt = timePtr(l.now)
		}
		sh.Status = target
		sh.UpdatedAt = l.now
		return tx.UpdateShipment(ctx, sh)
	})
	if err != nil {
		return nil, err
	}
	return sh, nil
}

// DeleteShipment removes a shipment that has no clusters attached.
func (s *Service) DeleteShipment(ctx context.Context, id string, actor int64) error {
	return s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		sh, err := tx.GetShipment(ctx, id)
		if err != nil {
			return notFound(err, "shipment", id)
		}
		n, err := tx.CountShipmentClusters(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: shipment %s has %d clusters attached", ErrPreconditionFailed, id, n)
		}
		if err := tx.DeleteShipment(ctx, id); err != nil {
			return notFound(err, "shipment", id)
		}
		e := entityEntry(models.EntityShipment, id, models.ActionDeleted, "", actor)
		e.Metadata = map[string]any{"name": sh.Name}
		l.add(e)
		return nil
	})
}

// BatchInput is the create/update payload of a batch.
type BatchInput struct {
	Title         string             `json:"title"`
	Status        models.BatchStatus `json:"status"`
	ExpectedCount int                `json:"expected_count"`
	Notes         string             `json:"notes"`
}

func (in *BatchInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.ExpectedCount < 0 {
		return fmt.Errorf("%w: expected_count must not be negative", ErrValidation)
	}
	if in.Status != "" && !models.ValidBatchStatuses[in.Status] {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, in.Status)
	}
	return nil
}

// CreateBatch creates an ACTIVE batch.
func (s *Service) CreateBatch(ctx context.Context, in BatchInput, actor int64) (*models.Batch, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	b := &models.Batch{
		ID:            uuid.NewString(),
		Title:         in.Title,
		Status:        models.BatchActive,
		ExpectedCount: in.ExpectedCount,
		Notes:         in.Notes,
	}
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		b.CreatedAt = l.now
		b.UpdatedAt = l.now
		if err := tx.CreateBatch(ctx, b); err != nil {
			return err
		}
		l.add(entityEntry(models.EntityBatch, b.ID, models.ActionCreated, "", actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBatch returns one batch.
func (s *Service) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	b, err := s.db.GetBatch(ctx, id)
	if err != nil {
		return nil, notFound(err, "batch", id)
	}
	return b, nil
}

// ListBatches returns every batch.
func (s *Service) ListBatches(ctx context.Context) ([]*models.Batch, error) {
	return s.db.ListBatches(ctx)
}

// UpdateBatch changes a batch's title, status, expected count and notes.
func (s *Service) UpdateBatch(ctx context.Context, id string, in BatchInput, actor int64) (*models.Batch, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var b *models.Batch
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if b, err = tx.GetBatch(ctx, id); err != nil {
			return notFound(err, "batch", id)
		}
		if in.Status != "" && in.Status != b.Status {
			l.add(statusEntry(models.EntityBatch, id, string(b.Status), string(in.Status), actor))
			b.Status = in.Status
		}
		b.Title = in.Title
		b.ExpectedCount = in.ExpectedCount
		b.Notes = in.Notes
		b.UpdatedAt = l.now
		if err := tx.UpdateBatch(ctx, b); err != nil {
			return err
		}
		l.add(entityEntry(models.EntityBatch, id, models.ActionUpdated, "", actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBatch removes a batch. Its servers stay and lose their batch.
func (s *Service) DeleteBatch(ctx context.Context, id string, actor int64) error {
	return s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		b, err := tx.GetBatch(ctx, id)
		if err != nil {
			return notFound(err, "batch", id)
		}
		members, err := tx.ListServersByBatch(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.ClearServerBatch(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteBatch(ctx, id); err != nil {
			return notFound(err, "batch", id)
		}
		e := entityEntry(models.EntityBatch, id, models.ActionDeleted, "", actor)
		e.Metadata = map[string]any{"title": b.Title, "detached_servers": len(members)}
		l.add(e)
		return nil
	})
}
