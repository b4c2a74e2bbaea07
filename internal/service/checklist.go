package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/stats"
)

const (
	defaultChecklistMinutes = 30
	checklistSortStep       = 10
)

// ChecklistTemplateInput creates or edits a checklist template. Nil fields
// keep their current value on update and take the default on create.
type ChecklistTemplateInput struct {
	Title            *string                `json:"title,omitempty"`
	Description      *string                `json:"description,omitempty"`
	GroupCode        *models.ChecklistGroup `json:"group_code,omitempty"`
	SortOrder        *int                   `json:"sort_order,omitempty"`
	IsRequired       *bool                  `json:"is_required,omitempty"`
	RequiresFile     *bool                  `json:"requires_file,omitempty"`
	EstimatedMinutes *int                   `json:"estimated_minutes,omitempty"`
	FileCode         *string                `json:"file_code,omitempty"`
	IsActive         *bool                  `json:"is_active,omitempty"`
}

func (in ChecklistTemplateInput) apply(t *models.ChecklistTemplate) error {
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.GroupCode != nil {
		if !models.ValidChecklistGroups[*in.GroupCode] {
			return fmt.Errorf("%w: invalid group_code %q", ErrValidation, *in.GroupCode)
		}
		t.GroupCode = *in.GroupCode
	}
	if in.SortOrder != nil {
		if *in.SortOrder < 0 {
			return fmt.Errorf("%w: sort_order must not be negative", ErrValidation)
		}
		t.SortOrder = *in.SortOrder
	}
	if in.IsRequired != nil {
		t.IsRequired = *in.IsRequired
	}
	if in.RequiresFile != nil {
		t.RequiresFile = *in.RequiresFile
	}
	if in.EstimatedMinutes != nil {
		if *in.EstimatedMinutes < 0 {
			return fmt.Errorf("%w: estimated_minutes must not be negative", ErrValidation)
		}
		t.EstimatedMinutes = *in.EstimatedMinutes
	}
	if in.FileCode != nil {
		t.FileCode = strings.TrimSpace(*in.FileCode)
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	return nil
}

// ServerChecklist is the checklist of one server in template order.
type ServerChecklist struct {
	ServerID string                  `json:"server_id"`
	Items    []*models.ChecklistItem `json:"items"`
	Stats    stats.ChecklistStats    `json:"stats"`
}

// ListChecklistTemplates returns templates in sort order.
func (s *Service) ListChecklistTemplates(ctx context.Context, includeInactive bool) ([]*models.ChecklistTemplate, error) {
	return s.db.ListChecklistTemplates(ctx, includeInactive)
}

// CreateChecklistTemplate adds a template. Without an explicit sort order it
// goes after the last one. Servers already in intake pick it up the next
// time an item for it is toggled.
func (s *Service) CreateChecklistTemplate(ctx context.Context, in ChecklistTemplateInput) (*models.ChecklistTemplate, error) {
	t := &models.ChecklistTemplate{
		ID:               uuid.NewString(),
		GroupCode:        models.GroupTesting,
		IsRequired:       true,
		EstimatedMinutes: defaultChecklistMinutes,
		IsActive:         true,
	}
	if err := in.apply(t); err != nil {
		return nil, err
	}
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		if in.SortOrder == nil {
			last, err := tx.MaxChecklistSortOrder(ctx)
			if err != nil {
				return err
			}
			t.SortOrder = last + checklistSortStep
		}
		t.CreatedAt = l.now
		t.UpdatedAt = l.now
		return tx.CreateChecklistTemplate(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateChecklistTemplate edits a template. Setting is_active restores a
// deactivated one.
func (s *Service) UpdateChecklistTemplate(ctx context.Context, id string, in ChecklistTemplateInput) (*models.ChecklistTemplate, error) {
	var t *models.ChecklistTemplate
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if t, err = tx.GetChecklistTemplate(ctx, id); err != nil {
			return notFound(err, "checklist template", id)
		}
		if err := in.apply(t); err != nil {
			return err
		}
		t.UpdatedAt = l.now
		return tx.UpdateChecklistTemplate(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteChecklistTemplate deactivates a template, or removes it when hard is
// set. A template some server already carries cannot be removed.
func (s *Service) DeleteChecklistTemplate(ctx context.Context, id string, hard bool) error {
	return s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		t, err := tx.GetChecklistTemplate(ctx, id)
		if err != nil {
			return notFound(err, "checklist template", id)
		}
		if !hard {
			t.IsActive = false
			t.UpdatedAt = l.now
			return tx.UpdateChecklistTemplate(ctx, t)
		}
		n, err := tx.CountChecklistUsage(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: checklist template %s is used by %d servers", ErrPreconditionFailed, id, n)
		}
		return tx.DeleteChecklistTemplate(ctx, id)
	})
}

// ReorderChecklistTemplates renumbers the listed templates in steps of ten.
// Templates not listed keep their order.
func (s *Service) ReorderChecklistTemplates(ctx context.Context, ids []string) ([]*models.ChecklistTemplate, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: template_ids must not be empty", ErrValidation)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate template id %s", ErrValidation, id)
		}
		seen[id] = true
	}
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		for i, id := range ids {
			if err := tx.SetChecklistSortOrder(ctx, id, (i+1)*checklistSortStep, l.now); err != nil {
				return notFound(err, "checklist template", id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.db.ListChecklistTemplates(ctx, true)
}

// GetServerChecklist returns one item per active template, in template
// order. Templates added after intake show as pending items without an ID.
func (s *Service) GetServerChecklist(ctx context.Context, serverID string) (*ServerChecklist, error) {
	if _, err := s.db.GetServer(ctx, serverID); err != nil {
		return nil, notFound(err, "server", serverID)
	}
	templates, err := s.db.ListChecklistTemplates(ctx, false)
	if err != nil {
		return nil, err
	}
	items, err := s.db.ListChecklistItems(ctx, serverID)
	if err != nil {
		return nil, err
	}
	files, err := s.db.ListChecklistFiles(ctx, serverID)
	if err != nil {
		return nil, err
	}

	byTemplate := make(map[string]*models.ChecklistItem, len(items))
	for _, it := range items {
		byTemplate[it.TemplateID] = it
	}
	byItem := make(map[string][]models.ChecklistFile)
	for _, f := range files {
		byItem[f.ItemID] = append(byItem[f.ItemID], f)
	}

	out := &ServerChecklist{ServerID: serverID, Items: make([]*models.ChecklistItem, 0, len(templates))}
	for _, t := range templates {
		it, ok := byTemplate[t.ID]
		if !ok {
			it = &models.ChecklistItem{ServerID: serverID, TemplateID: t.ID}
		}
		it.Template = t
		it.Files = byItem[it.ID]
		out.Items = append(out.Items, it)
	}
	out.Stats = stats.ForChecklist(out.Items)
	return out, nil
}

// checklistItem loads the server's item for a template, creating it when
// the template was added after intake.
func checklistItem(ctx context.Context, tx *db.Store, srv *models.Server, t *models.ChecklistTemplate, l *ledger) (*models.ChecklistItem, error) {
	it, err := tx.GetChecklistItem(ctx, srv.ID, t.ID)
	if err == nil {
		return it, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	it = &models.ChecklistItem{
		ID:         uuid.NewString(),
		ServerID:   srv.ID,
		TemplateID: t.ID,
		CreatedAt:  l.now,
	}
	if err := tx.CreateChecklistItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// checklistTarget loads the server and template an item operation works on.
// Archived servers are read-only.
func checklistTarget(ctx context.Context, tx *db.Store, serverID, templateID string) (*models.Server, *models.ChecklistTemplate, error) {
	srv, err := tx.GetServer(ctx, serverID)
	if err != nil {
		return nil, nil, notFound(err, "server", serverID)
	}
	if srv.Status == models.ServerArchived {
		return nil, nil, fmt.Errorf("%w: server %s is archived", ErrPreconditionFailed, serverID)
	}
	t, err := tx.GetChecklistTemplate(ctx, templateID)
	if err != nil {
		return nil, nil, notFound(err, "checklist template", templateID)
	}
	return srv, t, nil
}

func checklistEntry(srv *models.Server, t *models.ChecklistTemplate, action models.HistoryAction, actor int64, now time.Time) *models.HistoryEntry {
	e := serverEntry(srv, action, "", "", actor, now)
	e.Metadata = map[string]any{"template_id": t.ID, "title": t.Title}
	return e
}

// ChecklistToggle sets the completion state of one item. Nil Notes keeps
// the current notes.
type ChecklistToggle struct {
	Completed bool    `json:"completed"`
	Notes     *string `json:"notes,omitempty"`
}

// ToggleChecklistItem completes or reopens the server's item for a
// template. Only a change of state is recorded in history. Completing an
// item whose template requires a file needs at least one attached file.
func (s *Service) ToggleChecklistItem(ctx context.Context, serverID, templateID string, in ChecklistToggle, actor int64) (*models.ChecklistItem, error) {
	var it *models.ChecklistItem
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		srv, t, err := checklistTarget(ctx, tx, serverID, templateID)
		if err != nil {
			return err
		}
		if it, err = checklistItem(ctx, tx, srv, t, l); err != nil {
			return err
		}
		if in.Completed && !it.Completed && t.RequiresFile {
			n, err := tx.CountChecklistFiles(ctx, it.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %q requires an attached file", ErrPreconditionFailed, t.Title)
			}
		}
		if in.Notes != nil {
			it.Notes = *in.Notes
		}
		changed := in.Completed != it.Completed
		it.Completed = in.Completed
		if changed && in.Completed {
			it.CompletedAt = timePtr(l.now)
			it.CompletedByID = actorPtr(actor)
		} else if !in.Completed {
			it.CompletedAt = nil
			it.CompletedByID = nil
		}
		if err := tx.UpdateChecklistItem(ctx, it); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		action := models.ActionChecklistReopened
		if in.Completed {
			action = models.ActionChecklistCompleted
		}
		e := checklistEntry(srv, t, action, actor, l.now)
		e.Comment = it.Notes
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

// AddChecklistFile stores an attachment as evidence for the server's item
// of a template.
func (s *Service) AddChecklistFile(ctx context.Context, serverID, templateID, name, contentType string, data []byte, actor int64) (*models.ChecklistFile, error) {
	if err := s.requireAttachments(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if _, _, err := checklistTarget(ctx, s.db.Store, serverID, templateID); err != nil {
		return nil, err
	}
	ref, err := s.attachments.Put(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	f := &models.ChecklistFile{
		ID:           uuid.NewString(),
		FileRef:      ref,
		FileName:     name,
		ContentType:  contentType,
		SizeBytes:    int64(len(data)),
		UploadedByID: actorPtr(actor),
	}
	err = s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		srv, t, err := checklistTarget(ctx, tx, serverID, templateID)
		if err != nil {
			return err
		}
		it, err := checklistItem(ctx, tx, srv, t, l)
		if err != nil {
			return err
		}
		f.ItemID = it.ID
		f.UploadedAt = l.now
		if err := tx.AddChecklistFile(ctx, f); err != nil {
			return err
		}
		e := checklistEntry(srv, t, models.ActionFileUploaded, actor, l.now)
		e.Metadata["file_id"] = f.ID
		e.Metadata["file_name"] = f.FileName
		e.Metadata["size_bytes"] = f.SizeBytes
		l.add(e)
		return nil
	})
	if err != nil {
		s.dropAttachment(ctx, ref)
		return nil, err
	}
	return f, nil
}

// GetChecklistFile returns checklist attachment metadata and bytes.
func (s *Service) GetChecklistFile(ctx context.Context, serverID, fileID string) (*models.ChecklistFile, []byte, error) {
	if err := s.requireAttachments(); err != nil {
		return nil, nil, err
	}
	f, err := s.db.GetChecklistFile(ctx, serverID, fileID)
	if err != nil {
		return nil, nil, notFound(err, "file", fileID)
	}
	data, err := s.attachments.Get(ctx, f.FileRef)
	if err != nil {
		return nil, nil, fmt.Errorf("load attachment %s: %w", fileID, err)
	}
	return f, data, nil
}

// DeleteChecklistFile unlinks a checklist attachment. Removing the last file
// of a completed item whose template requires one reopens the item.
func (s *Service) DeleteChecklistFile(ctx context.Context, serverID, fileID string, actor int64) error {
	var ref string
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		srv, err := tx.GetServer(ctx, serverID)
		if err != nil {
			return notFound(err, "server", serverID)
		}
		f, err := tx.GetChecklistFile(ctx, serverID, fileID)
		if err != nil {
			return notFound(err, "file", fileID)
		}
		it, err := tx.GetChecklistItemByID(ctx, f.ItemID)
		if err != nil {
			return err
		}
		t, err := tx.GetChecklistTemplate(ctx, it.TemplateID)
		if err != nil {
			return err
		}
		if err := tx.DeleteChecklistFile(ctx, fileID); err != nil {
			return notFound(err, "file", fileID)
		}
		ref = f.FileRef
		e := checklistEntry(srv, t, models.ActionFileDeleted, actor, l.now)
		e.Metadata["file_id"] = fileID
		e.Metadata["file_name"] = f.FileName
		l.add(e)

		if !it.Completed || !t.RequiresFile {
			return nil
		}
		n, err := tx.CountChecklistFiles(ctx, it.ID)
		if err != nil || n > 0 {
			return err
		}
		it.Completed = false
		it.CompletedAt = nil
		it.CompletedByID = nil
		if err := tx.UpdateChecklistItem(ctx, it); err != nil {
			return err
		}
		l.add(checklistEntry(srv, t, models.ActionChecklistReopened, actor, l.now))
		return nil
	})
	if err != nil {
		return err
	}
	s.dropAttachment(ctx, ref)
	return nil
}
