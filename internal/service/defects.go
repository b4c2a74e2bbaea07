package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
)

// DefectInput opens a defect record. ServerID links a registered server;
// without it ServerSerial alone identifies the unit.
type DefectInput struct {
	ServerID              *string               `json:"server_id,omitempty"`
	ServerSerial          string                `json:"server_serial"`
	RepairPartType        models.RepairPartType `json:"repair_part_type"`
	ProblemDescription    string                `json:"problem_description"`
	DefectPartSerialYadro string                `json:"defect_part_serial_yadro"`
	DefectPartSerialManuf string                `json:"defect_part_serial_manuf"`
	DetectedAt            *time.Time            `json:"detected_at,omitempty"`
	Notes                 string                `json:"notes"`
}

// DefectUpdate replaces the descriptive fields of a defect record.
type DefectUpdate struct {
	ProblemDescription         string `json:"problem_description"`
	DefectPartSerialYadro      string `json:"defect_part_serial_yadro"`
	DefectPartSerialManuf      string `json:"defect_part_serial_manuf"`
	ReplacementPartSerialYadro string `json:"replacement_part_serial_yadro"`
	ReplacementPartSerialManuf string `json:"replacement_part_serial_manuf"`
	YadroTicketNumber          string `json:"yadro_ticket_number"`
	Notes                      string `json:"notes"`
}

// YadroShipment describes a record sent out for vendor repair.
type YadroShipment struct {
	SubstituteServerSerial string `json:"substitute_server_serial"`
	TicketNumber           string `json:"yadro_ticket_number"`
	Notes                  string `json:"notes"`
}

// YadroReturn describes a record back from vendor repair.
type YadroReturn struct {
	ReplacementPartSerialYadro string `json:"replacement_part_serial_yadro"`
	ReplacementPartSerialManuf string `json:"replacement_part_serial_manuf"`
	Notes                      string `json:"notes"`
}

func defectEntry(d *models.DefectRecord, action models.HistoryAction, actor int64) *models.HistoryEntry {
	var serverID string
	if d.ServerID != nil {
		serverID = *d.ServerID
	}
	e := entityEntry(models.EntityDefect, d.ID, action, serverID, actor)
	e.Metadata = map[string]any{}
	if d.ServerSerial != "" {
		e.Metadata["server_serial"] = d.ServerSerial
	}
	return e
}

func appendNote(notes, label, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return notes
	}
	line := fmt.Sprintf("[%s] %s", label, text)
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

// moveDefect checks the transition table and stamps the side data of the
// target status.
func moveDefect(d *models.DefectRecord, target models.DefectStatus, action models.HistoryAction, actor int64, now time.Time) (*models.HistoryEntry, error) {
	if !models.CanTransitionDefect(d.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidDefectTransition, d.Status, target)
	}
	e := defectEntry(d, action, actor)
	e.FromStatus = string(d.Status)
	e.ToStatus = string(target)
	switch target {
	case models.DefectSentToYadro:
		d.SentToYadroAt = timePtr(now)
		d.ReturnedFromYadroAt = nil
	case models.DefectReturned:
		d.ReturnedFromYadroAt = timePtr(now)
	case models.DefectResolved:
		d.ResolvedAt = timePtr(now)
		mins := int64(math.Round(now.Sub(d.DetectedAt).Minutes()))
		if mins < 0 {
			mins = 0
		}
		d.TotalDowntimeMinutes = &mins
	case models.DefectRepeated:
		d.IsRepeatedDefect = true
		d.RepeatedDefectDate = timePtr(now)
	}
	d.Status = target
	d.UpdatedAt = now
	return e, nil
}

// changeDefect loads a record, applies fn and writes it back in one
// transaction.
func (s *Service) changeDefect(ctx context.Context, id string, fn func(d *models.DefectRecord, l *ledger) error) (*models.DefectRecord, error) {
	var d *models.DefectRecord
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		if d, err = tx.GetDefect(ctx, id); err != nil {
			return notFound(err, "defect", id)
		}
		if err := fn(d, l); err != nil {
			return err
		}
		return tx.UpdateDefect(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDefect opens a NEW defect record. When an earlier record for the
// same server and part type was resolved, the new one is marked as a
// repeat candidate; flagging it as repeated stays manual.
func (s *Service) CreateDefect(ctx context.Context, in DefectInput, actor int64) (*models.DefectRecord, error) {
	if !models.ValidRepairPartTypes[in.RepairPartType] {
		return nil, fmt.Errorf("%w: invalid repair_part_type %q", ErrValidation, in.RepairPartType)
	}
	in.ServerSerial = strings.TrimSpace(in.ServerSerial)
	if in.ServerID == nil && in.ServerSerial == "" {
		return nil, fmt.Errorf("%w: server_id or server_serial is required", ErrValidation)
	}

	d := &models.DefectRecord{
		ID:                    uuid.NewString(),
		ServerID:              in.ServerID,
		ServerSerial:          in.ServerSerial,
		Status:                models.DefectNew,
		RepairPartType:        in.RepairPartType,
		ProblemDescription:    in.ProblemDescription,
		DefectPartSerialYadro: in.DefectPartSerialYadro,
		DefectPartSerialManuf: in.DefectPartSerialManuf,
		DetectedByID:          actorPtr(actor),
		Notes:                 in.Notes,
	}
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		d.DetectedAt = l.now
		if in.DetectedAt != nil {
			d.DetectedAt = in.DetectedAt.UTC()
		}
		d.CreatedAt = l.now
		d.UpdatedAt = l.now
		if d.ServerID != nil {
			srv, err := tx.GetServer(ctx, *d.ServerID)
			if err != nil {
				return notFound(err, "server", *d.ServerID)
			}
			if d.ServerSerial == "" {
				d.ServerSerial = srv.APKSerialNumber
				if d.ServerSerial == "" {
					d.ServerSerial = srv.SerialNumber
				}
			}
			prev, err := tx.LatestClosedDefect(ctx, srv.ID, d.RepairPartType)
			switch {
			case err == nil:
				d.RepeatCandidateOf = &prev.ID
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}
		if err := tx.CreateDefect(ctx, d); err != nil {
			return err
		}
		e := defectEntry(d, models.ActionCreated, actor)
		e.ToStatus = string(d.Status)
		e.Comment = d.ProblemDescription
		if d.RepeatCandidateOf != nil {
			e.Metadata["repeat_candidate_of"] = *d.RepeatCandidateOf
		}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDefect returns a defect record with its files.
func (s *Service) GetDefect(ctx context.Context, id string) (*models.DefectRecord, error) {
	d, err := s.db.GetDefect(ctx, id)
	if err != nil {
		return nil, notFound(err, "defect", id)
	}
	if d.Files, err = s.db.ListDefectFiles(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDefects returns defect records matching f.
func (s *Service) ListDefects(ctx context.Context, f db.DefectFilter) ([]*models.DefectRecord, error) {
	if f.Status != "" && !models.ValidDefectStatuses[f.Status] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, f.Status)
	}
	if f.RepairPartType != "" && !models.ValidRepairPartTypes[f.RepairPartType] {
		return nil, fmt.Errorf("%w: invalid repair_part_type %q", ErrValidation, f.RepairPartType)
	}
	return s.db.ListDefects(ctx, f)
}

// UpdateDefect replaces the descriptive fields of a record. The status is
// not touched.
func (s *Service) UpdateDefect(ctx context.Context, id string, in DefectUpdate, actor int64) (*models.DefectRecord, error) {
	return s.changeDefect(ctx, id, func(d *models.DefectRecord, l *ledger) error {
		if d.Status == models.DefectClosed {
			return fmt.Errorf("%w: defect %s is closed", ErrPreconditionFailed, id)
		}
		d.ProblemDescription = in.ProblemDescription
		d.DefectPartSerialYadro = in.DefectPartSerialYadro
		d.DefectPartSerialManuf = in.DefectPartSerialManuf
		d.ReplacementPartSerialYadro = in.ReplacementPartSerialYadro
		d.ReplacementPartSerialManuf = in.ReplacementPartSerialManuf
		d.YadroTicketNumber = in.YadroTicketNumber
		d.Notes = in.Notes
		d.UpdatedAt = l.now
		l.add(defectEntry(d, models.ActionUpdated, actor))
		return nil
	})
}

// SetDefectStatus applies a table-checked status change.
func (s *Service) SetDefectStatus(ctx context.Context, id string, target models.DefectStatus, actor int64, notes string) (*models.DefectRecord, error) {
	if !models.ValidDefectStatuses[target] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, target)
	}
	return s.changeDefect(ctx, id, func(d *models.DefectRecord, l *ledger) error {
		e, err := moveDefect(d, target, models.ActionStatusChanged, actor, l.now)
		if err != nil {
			return err
		}
		e.Comment = strings.TrimSpace(notes)
		d.Notes = appendNote(d.Notes, string(target), notes)
		l.add(e)
		return nil
	})
}

// SendToYadro hands a record to the vendor. A substitute server serial is
// informational and does not touch any server.
func (s *Service) SendToYadro(ctx context.Context, id string, in YadroShipment, actor int64) (*models.DefectRecord, error) {
	return s.changeDefect(ctx, id, func(d *models.DefectRecord, l *ledger) error {
		e, err := moveDefect(d, models.DefectSentToYadro, models.ActionSentToYadro, actor, l.now)
		if err != nil {
			return err
		}
		if sub := strings.TrimSpace(in.SubstituteServerSerial); sub != "" {
			d.SubstituteServerSerial = sub
		}
		if t := strings.TrimSpace(in.TicketNumber); t != "" {
			d.YadroTicketNumber = t
		}
		d.Notes = appendNote(d.Notes, "SENT_TO_YADRO", in.Notes)
		e.Comment = strings.TrimSpace(in.Notes)
		e.Metadata["substitute_server_serial"] = d.SubstituteServerSerial
		e.Metadata["yadro_ticket_number"] = d.YadroTicketNumber
		l.add(e)
		return nil
	})
}

// ReturnFromYadro records the vendor's return of a SENT_TO_YADRO record.
func (s *Service) ReturnFromYadro(ctx context.Context, id string, in YadroReturn, actor int64) (*models.DefectRecord, error) {
	return s.changeDefect(ctx, id, func(d *models.DefectRecord, l *ledger) error {
		if d.Status != models.DefectSentToYadro {
			return fmt.Errorf("%w: defect %s is %s, expected SENT_TO_YADRO", ErrInvalidDefectTransition, id, d.Status)
		}
		e, err := moveDefect(d, models.DefectReturned, models.ActionReturnedFromYadro, actor, l.now)
		if err != nil {
			return err
		}
		if v := strings.TrimSpace(in.ReplacementPartSerialYadro); v != "" {
			d.ReplacementPartSerialYadro = v
		}
		if v := strings.TrimSpace(in.ReplacementPartSerialManuf); v != "" {
			d.ReplacementPartSerialManuf = v
		}
		d.Notes = appendNote(d.Notes, "RETURNED", in.Notes)
		e.Comment = strings.TrimSpace(in.Notes)
		l.add(e)
		return nil
	})
}

// Resolve closes out the repair with a resolution text and records the
// downtime since detection.
func (s *Service) Resolve(ctx context.Context, id, resolution string, actor int64) (*models.DefectRecord, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, fmt.Errorf("%w: resolution is required", ErrValidation)
	}
	return s.changeDefect(ctx, id, func(d *models.DefectRecord, l *ledger) error {
		e, err := moveDefect(d, models.DefectResolved, models.ActionResolved, actor, l.now)
		if err != nil {
			return err
		}
		d.Resolution = resolution
		e.Comment = resolution
		e.Metadata["total_downtime_minutes"] = *d.TotalDowntimeMinutes
		l.add(e)
		return nil
	})
}

// MarkRepeated flags a recurrence. It is legal from every status except
// CLOSED.
func (s *Service) MarkRepeated(ctx context.Context, id, reason string, actor int64) (*models.DefectRecord, error) {
	return s.changeDefect(ctx, id, func(d *models.DefectRecord, l *ledger) error {
		e, err := moveDefect(d, models.DefectRepeated, models.ActionMarkedRepeated, actor, l.now)
		if err != nil {
			return err
		}
		d.RepeatedDefectReason = strings.TrimSpace(reason)
		e.Comment = d.RepeatedDefectReason
		l.add(e)
		return nil
	})
}

// CloseDefect is the administrative terminal move.
func (s *Service) CloseDefect(ctx context.Context, id, notes string, actor int64) (*models.DefectRecord, error) {
	return s.changeDefect(ctx, id, func(d *models.DefectRecord, l *ledger) error {
		e, err := moveDefect(d, models.DefectClosed, models.ActionClosed, actor, l.now)
		if err != nil {
			return err
		}
		d.Notes = appendNote(d.Notes, "CLOSED", notes)
		e.Comment = strings.TrimSpace(notes)
		l.add(e)
		return nil
	})
}

// DeleteDefect removes a record and its attachments. Callers are
// responsible for checking privilege.
func (s *Service) DeleteDefect(ctx context.Context, id string, actor int64) error {
	var files []models.DefectFile
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		d, err := tx.GetDefect(ctx, id)
		if err != nil {
			return notFound(err, "defect", id)
		}
		if files, err = tx.ListDefectFiles(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteDefect(ctx, id); err != nil {
			return notFound(err, "defect", id)
		}
		e := defectEntry(d, models.ActionDeleted, actor)
		e.FromStatus = string(d.Status)
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

func (s *Service) dropAttachment(ctx context.Context, ref string) {
	if s.attachments == nil {
		return
	}
	if err := s.attachments.Delete(context.WithoutCancel(ctx), ref); err != nil {
		s.log.Warn("attachment delete failed", "file_ref", ref, "error", err)
	}
}

func (s *Service) requireAttachments() error {
	if s.attachments == nil {
		return fmt.Errorf("%w: attachment store is not configured", ErrPreconditionFailed)
	}
	return nil
}

// AddFile stores an attachment and links it to a defect record.
func (s *Service) AddFile(ctx context.Context, defectID, name, contentType string, data []byte, actor int64) (*models.DefectFile, error) {
	if err := s.requireAttachments(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if _, err := s.db.GetDefect(ctx, defectID); err != nil {
		return nil, notFound(err, "defect", defectID)
	}
	ref, err := s.attachments.Put(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	f := &models.DefectFile{
		ID:           uuid.NewString(),
		DefectID:     defectID,
		FileRef:      ref,
		FileName:     name,
		ContentType:  contentType,
		SizeBytes:    int64(len(data)),
		UploadedByID: actorPtr(actor),
	}
	err = s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		d, err := tx.GetDefect(ctx, defectID)
		if err != nil {
			return notFound(err, "defect", defectID)
		}
		f.UploadedAt = l.now
		if err := tx.AddDefectFile(ctx, f); err != nil {
			return err
		}
		e := defectEntry(d, models.ActionFileUploaded, actor)
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

// GetFile returns attachment metadata and bytes.
func (s *Service) GetFile(ctx context.Context, defectID, fileID string) (*models.DefectFile, []byte, error) {
	if err := s.requireAttachments(); err != nil {
		return nil, nil, err
	}
	f, err := s.db.GetDefectFile(ctx, defectID, fileID)
	if err != nil {
		return nil, nil, notFound(err, "file", fileID)
	}
	data, err := s.attachments.Get(ctx, f.FileRef)
	if err != nil {
		return nil, nil, fmt.Errorf("load attachment %s: %w", fileID, err)
	}
	return f, data, nil
}

// DeleteFile unlinks an attachment and drops its bytes.
func (s *Service) DeleteFile(ctx context.Context, defectID, fileID string, actor int64) error {
	var ref string
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		d, err := tx.GetDefect(ctx, defectID)
		if err != nil {
			return notFound(err, "defect", defectID)
		}
		f, err := tx.GetDefectFile(ctx, defectID, fileID)
		if err != nil {
			return notFound(err, "file", fileID)
		}
		if err := tx.DeleteDefectFile(ctx, defectID, fileID); err != nil {
			return notFound(err, "file", fileID)
		}
		ref = f.FileRef
		e := defectEntry(d, models.ActionFileDeleted, actor)
		e.Metadata["file_id"] = fileID
		e.Metadata["file_name"] = f.FileName
		l.add(e)
		return nil
	})
	if err != nil {
		return err
	}
	s.dropAttachment(ctx, ref)
	return nil
}
