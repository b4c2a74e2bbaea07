package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tphummel/rackline/internal/models"
)

const templateColumns = `id, title, description, group_code, sort_order, is_required, requires_file,
	estimated_minutes, file_code, is_active, created_at, updated_at`

const itemColumns = `id, server_id, template_id, completed, completed_at, completed_by_id, notes, created_at`

const checklistFileColumns = `id, item_id, file_ref, file_name, content_type, size_bytes, uploaded_by_id, uploaded_at`

// CreateChecklistTemplate inserts a template.
func (s *Store) CreateChecklistTemplate(ctx context.Context, t *models.ChecklistTemplate) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO checklist_templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.GroupCode), t.SortOrder, t.IsRequired, t.RequiresFile,
		t.EstimatedMinutes, t.FileCode, t.IsActive, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	return err
}

// GetChecklistTemplate returns the template with the given ID, or sql.ErrNoRows.
func (s *Store) GetChecklistTemplate(ctx context.Context, id string) (*models.ChecklistTemplate, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM checklist_templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// ListChecklistTemplates returns templates in sort order. Inactive ones are
// included only when asked for.
func (s *Store) ListChecklistTemplates(ctx context.Context, includeInactive bool) ([]*models.ChecklistTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM checklist_templates`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ChecklistTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateChecklistTemplate replaces the mutable fields of t.
func (s *Store) UpdateChecklistTemplate(ctx context.Context, t *models.ChecklistTemplate) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE checklist_templates
		SET title=?, description=?, group_code=?, sort_order=?, is_required=?, requires_file=?,
			estimated_minutes=?, file_code=?, is_active=?, updated_at=?
		WHERE id=?`,
		t.Title, t.Description, string(t.GroupCode), t.SortOrder, t.IsRequired, t.RequiresFile,
		t.EstimatedMinutes, t.FileCode, t.IsActive, formatTime(t.UpdatedAt), t.ID,
	))
}

// SetChecklistSortOrder moves one template.
func (s *Store) SetChecklistSortOrder(ctx context.Context, id string, order int, now time.Time) error {
	return expectOne(s.q.ExecContext(ctx,
		`UPDATE checklist_templates SET sort_order = ?, updated_at = ? WHERE id = ?`,
		order, formatTime(now), id))
}

// MaxChecklistSortOrder returns the highest sort order in use, or 0.
func (s *Store) MaxChecklistSortOrder(ctx context.Context) (int, error) {
	var n sql.NullInt64
	err := s.q.QueryRowContext(ctx, `SELECT MAX(sort_order) FROM checklist_templates`).Scan(&n)
	return int(n.Int64), err
}

// CountChecklistUsage returns how many servers carry an item for the template.
func (s *Store) CountChecklistUsage(ctx context.Context, templateID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM server_checklists WHERE template_id = ?`, templateID).Scan(&n)
	return n, err
}

// DeleteChecklistTemplate removes an unused template.
func (s *Store) DeleteChecklistTemplate(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM checklist_templates WHERE id = ?`, id))
}

// InitServerChecklist creates a pending item for every active template the
// server does not have yet.
func (s *Store) InitServerChecklist(ctx context.Context, serverID string, now time.Time) error {
	templates, err := s.ListChecklistTemplates(ctx, false)
	if err != nil {
		return err
	}
	for _, t := range templates {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO server_checklists (id, server_id, template_id, completed, notes, created_at)
			VALUES (?, ?, ?, 0, '', ?)
			ON CONFLICT (server_id, template_id) DO NOTHING`,
			uuid.NewString(), serverID, t.ID, formatTime(now),
		); err != nil {
			return err
		}
	}
	return nil
}

// CreateChecklistItem inserts one item.
func (s *Store) CreateChecklistItem(ctx context.Context, it *models.ChecklistItem) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO server_checklists (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.ServerID, it.TemplateID, it.Completed, nullTime(it.CompletedAt),
		nullInt(it.CompletedByID), it.Notes, formatTime(it.CreatedAt),
	)
	return err
}

// GetChecklistItem returns the item of serverID for templateID, or
// sql.ErrNoRows.
func (s *Store) GetChecklistItem(ctx context.Context, serverID, templateID string) (*models.ChecklistItem, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM server_checklists WHERE server_id = ? AND template_id = ?`,
		serverID, templateID)
	return scanItem(row)
}

// GetChecklistItemByID returns one item, or sql.ErrNoRows.
func (s *Store) GetChecklistItemByID(ctx context.Context, id string) (*models.ChecklistItem, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM server_checklists WHERE id = ?`, id)
	return scanItem(row)
}

// ListChecklistItems returns every item of a server.
func (s *Store) ListChecklistItems(ctx context.Context, serverID string) ([]*models.ChecklistItem, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM server_checklists WHERE server_id = ?`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ChecklistItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateChecklistItem stores the completion state and notes of it.
func (s *Store) UpdateChecklistItem(ctx context.Context, it *models.ChecklistItem) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE server_checklists SET completed=?, completed_at=?, completed_by_id=?, notes=? WHERE id=?`,
		it.Completed, nullTime(it.CompletedAt), nullInt(it.CompletedByID), it.Notes, it.ID,
	))
}

// AddChecklistFile inserts attachment metadata for an item.
func (s *Store) AddChecklistFile(ctx context.Context, f *models.ChecklistFile) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO checklist_files (`+checklistFileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ItemID, f.FileRef, f.FileName, f.ContentType, f.SizeBytes,
		nullInt(f.UploadedByID), formatTime(f.UploadedAt),
	)
	return err
}

// GetChecklistFile returns a file attached to one of the server's items.
func (s *Store) GetChecklistFile(ctx context.Context, serverID, fileID string) (*models.ChecklistFile, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+prefixed("f", checklistFileColumns)+`
		FROM checklist_files f JOIN server_checklists i ON i.id = f.item_id
		WHERE i.server_id = ? AND f.id = ?`, serverID, fileID)
	return scanChecklistFile(row)
}

// ListChecklistFiles returns the files of every item of a server, oldest
// first.
func (s *Store) ListChecklistFiles(ctx context.Context, serverID string) ([]models.ChecklistFile, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+prefixed("f", checklistFileColumns)+`
		FROM checklist_files f JOIN server_checklists i ON i.id = f.item_id
		WHERE i.server_id = ? ORDER BY f.uploaded_at, f.id`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChecklistFile
	for rows.Next() {
		f, err := scanChecklistFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// CountChecklistFiles returns the number of files attached to an item.
func (s *Store) CountChecklistFiles(ctx context.Context, itemID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM checklist_files WHERE item_id = ?`, itemID).Scan(&n)
	return n, err
}

// DeleteChecklistFile removes attachment metadata.
func (s *Store) DeleteChecklistFile(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM checklist_files WHERE id = ?`, id))
}

func scanTemplate(row scanner) (*models.ChecklistTemplate, error) {
	var (
		t                    models.ChecklistTemplate
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.GroupCode, &t.SortOrder, &t.IsRequired, &t.RequiresFile,
		&t.EstimatedMinutes, &t.FileCode, &t.IsActive, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	var p timeParser
	t.CreatedAt = p.at("created_at", createdAt)
	t.UpdatedAt = p.at("updated_at", updatedAt)
	return &t, p.err
}

func scanItem(row scanner) (*models.ChecklistItem, error) {
	var (
		it          models.ChecklistItem
		completedAt sql.NullString
		completedBy sql.NullInt64
		createdAt   string
	)
	if err := row.Scan(
		&it.ID, &it.ServerID, &it.TemplateID, &it.Completed, &completedAt, &completedBy, &it.Notes, &createdAt,
	); err != nil {
		return nil, err
	}
	var p timeParser
	it.CompletedAt = p.null("completed_at", completedAt)
	it.CreatedAt = p.at("created_at", createdAt)
	it.CompletedByID = int64Ptr(completedBy)
	return &it, p.err
}

func scanChecklistFile(row scanner) (*models.ChecklistFile, error) {
	var (
		f          models.ChecklistFile
		uploadedBy sql.NullInt64
		uploadedAt string
	)
	if err := row.Scan(&f.ID, &f.ItemID, &f.FileRef, &f.FileName, &f.ContentType, &f.SizeBytes, &uploadedBy, &uploadedAt); err != nil {
		return nil, err
	}
	t, err := parseTime("uploaded_at", uploadedAt)
	if err != nil {
		return nil, err
	}
	f.UploadedAt = t
	f.UploadedByID = int64Ptr(uploadedBy)
	return &f, nil
}
