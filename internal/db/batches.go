package db

import (
	"context"

	"github.com/tphummel/rackline/internal/models"
)

const batchColumns = `id, title, status, expected_count, notes, created_at, updated_at`

// CreateBatch inserts a new batch.
func (s *Store) CreateBatch(ctx context.Context, b *models.Batch) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO batches (`+batchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, string(b.Status), b.ExpectedCount, b.Notes,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	return err
}

// GetBatch returns the batch with the given ID, or sql.ErrNoRows.
func (s *Store) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	return scanBatch(row)
}

// ListBatches returns all batches, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]*models.Batch, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBatch replaces the mutable fields of b.
func (s *Store) UpdateBatch(ctx context.Context, b *models.Batch) error {
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE batches SET title=?, status=?, expected_count=?, notes=?, updated_at=? WHERE id=?`,
		b.Title, string(b.Status), b.ExpectedCount, b.Notes, formatTime(b.UpdatedAt), b.ID,
	))
}

// DeleteBatch removes the batch row. Callers detach member servers first.
func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, id))
}

func scanBatch(row scanner) (*models.Batch, error) {
	var b models.Batch
	var createdAt, updatedAt string
	if err := row.Scan(&b.ID, &b.Title, &b.Status, &b.ExpectedCount, &b.Notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var p timeParser
	b.CreatedAt = p.at("created_at", createdAt)
	b.UpdatedAt = p.at("updated_at", updatedAt)
	if p.err != nil {
		return nil, p.err
	}
	return &b, nil
}
