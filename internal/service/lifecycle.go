package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
)

// GetServer returns one server.
func (s *Service) GetServer(ctx context.Context, id string) (*models.Server, error) {
	srv, err := s.db.GetServer(ctx, id)
	if err != nil {
		return nil, notFound(err, "server", id)
	}
	return srv, nil
}

// ListServers returns servers matching f.
func (s *Service) ListServers(ctx context.Context, f db.ServerFilter) ([]*models.Server, error) {
	if f.Status != "" && !models.ValidServerStatuses[f.Status] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, f.Status)
	}
	return s.db.ListServers(ctx, f)
}

// shift moves srv to status to and returns the history entry describing
// the move. The entry's duration is measured before StatusChangedAt is
// reset.
func shift(srv *models.Server, action models.HistoryAction, to models.ServerStatus, actor int64, now time.Time) *models.HistoryEntry {
	e := serverEntry(srv, action, srv.Status, to, actor, now)
	srv.Status = to
	srv.StatusChangedAt = now
	srv.UpdatedAt = now
	return e
}

func requireActor(actor int64) error {
	if actor <= 0 {
		return fmt.Errorf("%w: actor is required", ErrValidation)
	}
	return nil
}

// takeServer is the NEW to IN_WORK move shared by Take and TakeUnitToWork.
func takeServer(ctx context.Context, tx *db.Store, l *ledger, srv *models.Server, actor int64) error {
	if srv.Status != models.ServerNew {
		return fmt.Errorf("%w: cannot take server %s in status %s", ErrInvalidTransition, srv.ID, srv.Status)
	}
	e := shift(srv, models.ActionTaken, models.ServerInWork, actor, l.now)
	srv.AssignedToID = actorPtr(actor)
	srv.AssignedAt = timePtr(l.now)
	if err := tx.UpdateServer(ctx, srv); err != nil {
		return err
	}
	l.add(e)
	return nil
}

// Take assigns a NEW server to actor and moves it to IN_WORK.
func (s *Service) Take(ctx context.Context, id string, actor int64) (*models.Server, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var srv *models.Server
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if srv, err = tx.GetServer(ctx, id); err != nil {
			return notFound(err, "server", id)
		}
		return takeServer(ctx, tx, l, srv, actor)
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Release returns an IN_WORK server to NEW and clears its assignee.
func (s *Service) Release(ctx context.Context, id string, actor int64) (*models.Server, error) {
	var srv *models.Server
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if srv, err = tx.GetServer(ctx, id); err != nil {
			return notFound(err, "server", id)
		}
		if srv.Status != models.ServerInWork {
			return fmt.Errorf("%w: cannot release server %s in status %s", ErrInvalidTransition, id, srv.Status)
		}
		e := shift(srv, models.ActionReleased, models.ServerNew, actor, l.now)
		srv.AssignedToID = nil
		srv.AssignedAt = nil
		if err := tx.UpdateServer(ctx, srv); err != nil {
			return err
		}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// SetStatus applies one of the table-driven moves: IN_WORK to DONE or
// DEFECT, and DEFECT back to IN_WORK.
func (s *Service) SetStatus(ctx context.Context, id string, target models.ServerStatus, actor int64, notes string) (*models.Server, error) {
	if !models.ValidServerStatuses[target] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, target)
	}
	if target == models.ServerInWork {
		if err := requireActor(actor); err != nil {
			return nil, err
		}
	}
	var srv *models.Server
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if srv, err = tx.GetServer(ctx, id); err != nil {
			return notFound(err, "server", id)
		}
		if !models.CanSetServerStatus(srv.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, srv.Status, target)
		}
		e := shift(srv, models.ActionStatusChanged, target, actor, l.now)
		e.Comment = strings.TrimSpace(notes)
		switch target {
		case models.ServerInWork:
			srv.AssignedToID = actorPtr(actor)
			srv.AssignedAt = timePtr(l.now)
		default:
			srv.AssignedToID = nil
			srv.AssignedAt = nil
		}
		if target == models.ServerDone {
			srv.CompletedAt = timePtr(l.now)
		}
		if err := tx.UpdateServer(ctx, srv); err != nil {
			return err
		}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Archive moves a DONE server with an internal serial to ARCHIVED. The
// rack unit binding is left in place.
func (s *Service) Archive(ctx context.Context, id string, actor int64) (*models.Server, error) {
	var srv *models.Server
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if srv, err = tx.GetServer(ctx, id); err != nil {
			return notFound(err, "server", id)
		}
		if srv.Status != models.ServerDone {
			return fmt.Errorf("%w: server %s is %s, archive requires DONE", ErrPreconditionFailed, id, srv.Status)
		}
		if srv.APKSerialNumber == "" {
			return fmt.Errorf("%w: server %s has no apk_serial_number", ErrPreconditionFailed, id)
		}
		e := shift(srv, models.ActionArchived, models.ServerArchived, actor, l.now)
		srv.ArchivedAt = timePtr(l.now)
		srv.ArchivedByID = actorPtr(actor)
		if err := tx.UpdateServer(ctx, srv); err != nil {
			return err
		}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Unarchive returns an ARCHIVED server to DONE.
func (s *Service) Unarchive(ctx context.Context, id string, actor int64) (*models.Server, error) {
	var srv *models.Server
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if srv, err = tx.GetServer(ctx, id); err != nil {
			return notFound(err, "server", id)
		}
		if srv.Status != models.ServerArchived {
			return fmt.Errorf("%w: server %s is not archived", ErrInvalidTransition, id)
		}
		e := shift(srv, models.ActionUnarchived, models.ServerDone, actor, l.now)
		srv.ArchivedAt = nil
		srv.ArchivedByID = nil
		if err := tx.UpdateServer(ctx, srv); err != nil {
			return err
		}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// DeleteServer removes a server permanently. It is vacated from its rack
// unit, dropped from every cluster and unlinked from its defect records.
// Its checklist goes with it, attachments included.
// Callers are responsible for checking privilege.
func (s *Service) DeleteServer(ctx context.Context, id string, actor int64) error {
	var files []models.ChecklistFile
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		srv, err := tx.GetServer(ctx, id)
		if err != nil {
			return notFound(err, "server", id)
		}
		if files, err = tx.ListChecklistFiles(ctx, id); err != nil {
			return err
		}
		meta := map[string]any{
			"serial_number":     srv.SerialNumber,
			"apk_serial_number": srv.APKSerialNumber,
			"status":            string(srv.Status),
		}
		if unit, err := tx.GetUnitByServer(ctx, id); err == nil {
			meta["rack_id"] = unit.RackID
			meta["unit_number"] = unit.UnitNumber
		}
		if err := tx.ClearUnitsForServer(ctx, id); err != nil {
			return err
		}
		if err := tx.RemoveServerMemberships(ctx, id); err != nil {
			return err
		}
		if err := tx.DetachDefectsFromServer(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteServer(ctx, id); err != nil {
			return notFound(err, "server", id)
		}
		e := serverEntry(srv, models.ActionDeleted, "", "", actor, l.now)
		e.Metadata = meta
		l.add(e)
		return nil
	})
	if err != nil {
		return err
	}
	for _, f := range files {
		s.dropAttachment(ctx, f.FileRef)
	}
	return nil
}

// UpdateNotes replaces the free-text notes of a server.
func (s *Service) UpdateNotes(ctx context.Context, id, notes string, actor int64) (*models.Server, error) {
	var srv *models.Server
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if srv, err = tx.GetServer(ctx, id); err != nil {
			return notFound(err, "server", id)
		}
		srv.Notes = notes
		srv.UpdatedAt = l.now
		if err := tx.UpdateServer(ctx, srv); err != nil {
			return err
		}
		e := serverEntry(srv, models.ActionNoteAdded, "", "", actor, l.now)
		e.Comment = notes
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// AssignToBatch moves each listed server into the batch. Items are applied
// independently; unknown servers are rejected.
func (s *Service) AssignToBatch(ctx context.Context, batchID string, serverIDs []string, actor int64) (*BatchResult, error) {
	if _, err := s.db.GetBatch(ctx, batchID); err != nil {
		return nil, notFound(err, "batch", batchID)
	}
	res := &BatchResult{Added: []string{}, Rejected: []Rejection{}}
	for _, sid := range serverIDs {
		err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
			srv, err := tx.GetServer(ctx, sid)
			if err != nil {
				return notFound(err, "server", sid)
			}
			if srv.BatchID != nil && *srv.BatchID == batchID {
				return nil
			}
			srv.BatchID = &batchID
			srv.UpdatedAt = l.now
			if err := tx.UpdateServer(ctx, srv); err != nil {
				return err
			}
			e := serverEntry(srv, models.ActionBatchAssigned, "", "", actor, l.now)
			e.Metadata = map[string]any{"batch_id": batchID}
			l.add(e)
			return nil
		})
		if err != nil {
			res.reject(sid, err)
			continue
		}
		res.Added = append(res.Added, sid)
	}
	return res, nil
}

// RemoveFromBatch detaches a server from its batch. It is a no-op for a
// server without a batch.
func (s *Service) RemoveFromBatch(ctx context.Context, id string, actor int64) (*models.Server, error) {
	var srv *models.Server
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if srv, err = tx.GetServer(ctx, id); err != nil {
			return notFound(err, "server", id)
		}
		if srv.BatchID == nil {
			return nil
		}
		prev := *srv.BatchID
		srv.BatchID = nil
		srv.UpdatedAt = l.now
		if err := tx.UpdateServer(ctx, srv); err != nil {
			return err
		}
		e := serverEntry(srv, models.ActionBatchRemoved, "", "", actor, l.now)
		e.Metadata = map[string]any{"batch_id": prev}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}
