package service

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrInvalidDefectTransition = errors.New("invalid defect transition")
	ErrUnitOccupied            = errors.New("unit occupied")
	ErrServerAlreadyPlaced     = errors.New("server already placed")
	ErrServerAlreadyInCluster  = errors.New("server already in cluster")
	ErrPreconditionFailed      = errors.New("precondition failed")
	ErrDuplicateIdentifier     = errors.New("duplicate identifier")
	ErrValidation              = errors.New("validation failed")
)

// Code returns the machine-readable kind of err, as carried in API error
// bodies and batch rejections. Unknown errors map to INTERNAL.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrInvalidDefectTransition):
		return "INVALID_DEFECT_TRANSITION"
	case errors.Is(err, ErrUnitOccupied):
		return "UNIT_OCCUPIED"
	case errors.Is(err, ErrServerAlreadyPlaced):
		return "SERVER_ALREADY_PLACED"
	case errors.Is(err, ErrServerAlreadyInCluster):
		return "SERVER_ALREADY_IN_CLUSTER"
	case errors.Is(err, ErrPreconditionFailed):
		return "PRECONDITION_FAILED"
	case errors.Is(err, ErrDuplicateIdentifier):
		return "DUPLICATE_IDENTIFIER"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	default:
		return "INTERNAL"
	}
}

// notFound translates sql.ErrNoRows into ErrNotFound naming the missing
// entity. Other errors pass through.
func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}

// Rejection is one failed item of a batch operation.
type Rejection struct {
	ServerID string `json:"server_id"`
	Code     string `json:"code"`
	Reason   string `json:"reason"`
}

// BatchResult reports a per-item batch operation. Items are applied
// independently; a non-empty Rejected list is a partial success, not an
// error.
type BatchResult struct {
	Added    []string    `json:"added"`
	Rejected []Rejection `json:"rejected"`
}

func (r *BatchResult) reject(serverID string, err error) {
	r.Rejected = append(r.Rejected, Rejection{ServerID: serverID, Code: Code(err), Reason: err.Error()})
}

// Partial reports whether some items were rejected.
func (r *BatchResult) Partial() bool {
	return len(r.Rejected) > 0
}
