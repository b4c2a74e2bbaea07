package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tphummel/rackline/internal/models"
)

const defectColumns = `id, server_id, server_serial, status, repair_part_type, problem_description,
	defect_part_serial_yadro, defect_part_serial_manuf, replacement_part_serial_yadro, replacement_part_serial_manuf,
	is_repeated_defect, repeated_defect_reason, repeated_defect_date, repeat_candidate_of,
	yadro_ticket_number, sent_to_yadro_at, returned_from_yadro_at, substitute_server_serial,
	resolution, resolved_at, total_downtime_minutes, detected_at, detected_by_id, notes,
	created_at, updated_at`

const fileColumns = `id, defect_id, file_ref, file_name, content_type, size_bytes, uploaded_by_id, uploaded_at`

// DefectFilter narrows ListDefects. Zero values mean "any".
type DefectFilter struct {
	Status         models.DefectStatus
	ServerID       string
	RepairPartType models.RepairPartType
	OpenOnly       bool
}

func defectArgs(d *models.DefectRecord) []any {
	return []any{
		nullString(d.ServerID), d.ServerSerial, string(d.Status), string(d.RepairPartType), d.ProblemDescription,
		d.DefectPartSerialYadro, d.DefectPartSerialManuf, d.ReplacementPartSerialYadro, d.ReplacementPartSerialManuf,
		d.IsRepeatedDefect, d.RepeatedDefectReason, nullTime(d.RepeatedDefectDate), nullString(d.RepeatCandidateOf),
		d.YadroTicketNumber, nullTime(d.SentToYadroAt), nullTime(d.ReturnedFromYadroAt), d.SubstituteServerSerial,
		d.Resolution, nullTime(d.ResolvedAt), nullInt(d.TotalDowntimeMinutes), formatTime(d.DetectedAt),
		nullInt(d.DetectedByID), d.Notes,
	}
}

// CreateDefect inserts a new defect record.
func (s *Store) CreateDefect(ctx context.Context, d *models.DefectRecord) error {
	args := append([]any{d.ID}, defectArgs(d)...)
	args = append(args, formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO defect_records (`+defectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	return err
}

// GetDefect returns the defect record with the given ID without its files.
func (s *Store) GetDefect(ctx context.Context, id string) (*models.DefectRecord, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+defectColumns+` FROM defect_records WHERE id = ?`, id)
	return scanDefect(row)
}

// ListDefects returns defect records matching f, newest first.
func (s *Store) ListDefects(ctx context.Context, f DefectFilter) ([]*models.DefectRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ServerID != "" {
		where = append(where, "server_id = ?")
		args = append(args, f.ServerID)
	}
	if f.RepairPartType != "" {
		where = append(where, "repair_part_type = ?")
		args = append(args, string(f.RepairPartType))
	}
	if f.OpenOnly {
		where = append(where, "status NOT IN (?, ?)")
		args = append(args, string(models.DefectResolved), string(models.DefectClosed))
	}
	query := `SELECT ` + defectColumns + ` FROM defect_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY detected_at DESC, id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DefectRecord
	for rows.Next() {
		d, err := scanDefect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LatestClosedDefect returns the most recently resolved or closed record for
// the same server and part type, or sql.ErrNoRows.
func (s *Store) LatestClosedDefect(ctx context.Context, serverID string, part models.RepairPartType) (*models.DefectRecord, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+defectColumns+` FROM defect_records
		WHERE server_id = ? AND repair_part_type = ? AND status IN (?, ?)
		ORDER BY COALESCE(resolved_at, updated_at) DESC
		LIMIT 1`,
		serverID, string(part), string(models.DefectResolved), string(models.DefectClosed))
	return scanDefect(row)
}

// UpdateDefect replaces all mutable fields of d.
func (s *Store) UpdateDefect(ctx context.Context, d *models.DefectRecord) error {
	args := append(defectArgs(d), formatTime(d.UpdatedAt), d.ID)
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE defect_records
		SET server_id=?, server_serial=?, status=?, repair_part_type=?, problem_description=?,
			defect_part_serial_yadro=?, defect_part_serial_manuf=?, replacement_part_serial_yadro=?, replacement_part_serial_manuf=?,
			is_repeated_defect=?, repeated_defect_reason=?, repeated_defect_date=?, repeat_candidate_of=?,
			yadro_ticket_number=?, sent_to_yadro_at=?, returned_from_yadro_at=?, substitute_server_serial=?,
			resolution=?, resolved_at=?, total_downtime_minutes=?, detected_at=?, detected_by_id=?, notes=?,
			updated_at=?
		WHERE id=?`, args...))
}

// DeleteDefect removes a defect record and, by cascade, its file rows.
func (s *Store) DeleteDefect(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM defect_records WHERE id = ?`, id))
}

// DetachDefectsFromServer clears the server reference of every record of
// serverID. ServerSerial keeps the display value.
func (s *Store) DetachDefectsFromServer(ctx context.Context, serverID string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE defect_records SET server_id = NULL WHERE server_id = ?`, serverID)
	return err
}

// CountOpenDefectsByStatus returns the number of unresolved records per
// status.
func (s *Store) CountOpenDefectsByStatus(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx, `
		SELECT status, COUNT(*) FROM defect_records
		WHERE status NOT IN (?, ?)
		GROUP BY status`, string(models.DefectResolved), string(models.DefectClosed))
}

// AddDefectFile inserts attachment metadata.
func (s *Store) AddDefectFile(ctx context.Context, f *models.DefectFile) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO defect_files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.DefectID, f.FileRef, f.FileName, f.ContentType, f.SizeBytes,
		nullInt(f.UploadedByID), formatTime(f.UploadedAt),
	)
	return err
}

// GetDefectFile returns one attachment of a defect.
func (s *Store) GetDefectFile(ctx context.Context, defectID, fileID string) (*models.DefectFile, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM defect_files WHERE defect_id = ? AND id = ?`, defectID, fileID)
	return scanFile(row)
}

// ListDefectFiles returns the attachments of a defect, oldest first.
func (s *Store) ListDefectFiles(ctx context.Context, defectID string) ([]models.DefectFile, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM defect_files WHERE defect_id = ? ORDER BY uploaded_at, id`, defectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DefectFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// DeleteDefectFile removes attachment metadata.
func (s *Store) DeleteDefectFile(ctx context.Context, defectID, fileID string) error {
	return expectOne(s.q.ExecContext(ctx,
		`DELETE FROM defect_files WHERE defect_id = ? AND id = ?`, defectID, fileID))
}

func scanDefect(row scanner) (*models.DefectRecord, error) {
	var (
		d                                          models.DefectRecord
		serverID, repeatCandidate                  sql.NullString
		repeatedAt, sentAt, returnedAt, resolvedAt sql.NullString
		downtime, detectedBy                       sql.NullInt64
		detectedAt, createdAt, updatedAt           string
	)
	if err := row.Scan(
		&d.ID, &serverID, &d.ServerSerial, &d.Status, &d.RepairPartType, &d.ProblemDescription,
		&d.DefectPartSerialYadro, &d.DefectPartSerialManuf, &d.ReplacementPartSerialYadro, &d.ReplacementPartSerialManuf,
		&d.IsRepeatedDefect, &d.RepeatedDefectReason, &repeatedAt, &repeatCandidate,
		&d.YadroTicketNumber, &sentAt, &returnedAt, &d.SubstituteServerSerial,
		&d.Resolution, &resolvedAt, &downtime, &detectedAt, &detectedBy, &d.Notes,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	var p timeParser
	d.ServerID = stringPtr(serverID)
	d.RepeatCandidateOf = stringPtr(repeatCandidate)
	d.RepeatedDefectDate = p.null("repeated_defect_date", repeatedAt)
	d.SentToYadroAt = p.null("sent_to_yadro_at", sentAt)
	d.ReturnedFromYadroAt = p.null("returned_from_yadro_at", returnedAt)
	d.ResolvedAt = p.null("resolved_at", resolvedAt)
	d.TotalDowntimeMinutes = int64Ptr(downtime)
	d.DetectedByID = int64Ptr(detectedBy)
	d.DetectedAt = p.at("detected_at", detectedAt)
	d.CreatedAt = p.at("created_at", createdAt)
	d.UpdatedAt = p.at("updated_at", updatedAt)
	if p.err != nil {
		return nil, p.err
	}
	return &d, nil
}

func scanFile(row scanner) (*models.DefectFile, error) {
	var (
		f          models.DefectFile
		uploadedBy sql.NullInt64
		uploadedAt string
	)
	if err := row.Scan(&f.ID, &f.DefectID, &f.FileRef, &f.FileName, &f.ContentType, &f.SizeBytes, &uploadedBy, &uploadedAt); err != nil {
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
