package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/stats"
)

// record appends entries to the history ledger. The primary change has
// already committed, so failures are logged and counted, never returned.
func (s *Service) record(ctx context.Context, entries ...*models.HistoryEntry) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range entries {
		if err := s.db.AppendHistory(ctx, e); err != nil {
			s.log.Error("history append failed",
				"entity_type", e.EntityType,
				"entity_id", e.EntityID,
				"action", e.Action,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.HistoryFailed(e.EntityType)
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.HistoryAppended(e.EntityType, e.FromStatus != "" && e.ToStatus != "")
		}
		if s.publisher != nil {
			if err := s.publisher.PublishEntry(ctx, e); err != nil {
				s.log.Warn("history publish failed", "id", e.ID, "error", err)
			}
		}
	}
}

// serverEntry builds a history entry about srv. When from is set the entry
// is a transition and carries the time spent in from.
func serverEntry(srv *models.Server, action models.HistoryAction, from, to models.ServerStatus, actor int64, now time.Time) *models.HistoryEntry {
	id := srv.ID
	e := &models.HistoryEntry{
		EntityType: models.EntityServer,
		EntityID:   srv.ID,
		ServerID:   &id,
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(to),
		ActorID:    actorPtr(actor),
	}
	if from != "" && to != "" {
		d := int64(now.Sub(srv.StatusChangedAt) / time.Second)
		if d < 0 {
			d = 0
		}
		e.DurationSeconds = &d
	}
	return e
}

// entityEntry builds a history entry about a non-server entity. serverID
// may be empty.
func entityEntry(kind models.EntityType, id string, action models.HistoryAction, serverID string, actor int64) *models.HistoryEntry {
	e := &models.HistoryEntry{
		EntityType: kind,
		EntityID:   id,
		Action:     action,
		ActorID:    actorPtr(actor),
	}
	if serverID != "" {
		e.ServerID = &serverID
	}
	return e
}

// ListHistory returns ledger entries matching f, newest first.
func (s *Service) ListHistory(ctx context.Context, f models.HistoryFilter) ([]*models.HistoryEntry, error) {
	if f.EntityType != "" && !models.ValidEntityTypes[f.EntityType] {
		return nil, fmt.Errorf("%w: invalid entity_type %q", ErrValidation, f.EntityType)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidation)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Until.After(f.Since) {
		return nil, fmt.Errorf("%w: until must be after since", ErrValidation)
	}
	return s.db.ListHistory(ctx, f)
}

// TimeInStatus returns the seconds a server has spent in each status,
// including the still-open interval of its current status.
func (s *Service) TimeInStatus(ctx context.Context, serverID string) (map[string]int64, error) {
	srv, err := s.db.GetServer(ctx, serverID)
	if err != nil {
		return nil, notFound(err, "server", serverID)
	}
	transitions, err := s.db.ServerStatusHistory(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return stats.TimeInStatus(transitions, srv.Status, srv.StatusChangedAt, s.now()), nil
}
