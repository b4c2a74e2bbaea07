package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
)

// ServerInput is the intake data for a new server.
type ServerInput struct {
	SerialNumber    string  `json:"serial_number"`
	APKSerialNumber string  `json:"apk_serial_number"`
	IPAddress       string  `json:"ip_address"`
	MACAddress      string  `json:"mac_address"`
	Hostname        string  `json:"hostname"`
	BatchID         *string `json:"batch_id,omitempty"`
	Notes           string  `json:"notes"`
}

// NetworkInput replaces the network identity of a server.
type NetworkInput struct {
	IPAddress  string `json:"ip_address"`
	MACAddress string `json:"mac_address"`
	Hostname   string `json:"hostname"`
}

func normalizeIP(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return "", fmt.Errorf("%w: invalid ip_address %q", ErrValidation, s)
	}
	return ip.String(), nil
}

func normalizeMAC(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	mac, err := net.ParseMAC(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid mac_address %q", ErrValidation, s)
	}
	return mac.String(), nil
}

// checkSerial fails when value is carried by another server as either its
// manufacturer or its internal serial.
func checkSerial(ctx context.Context, tx *db.Store, value, excludeID string) error {
	if value == "" {
		return nil
	}
	for _, col := range []string{"serial_number", "apk_serial_number"} {
		other, err := tx.FindServerByIdentifier(ctx, col, value, excludeID)
		if err == nil {
			return fmt.Errorf("%w: serial %q is used by server %s", ErrDuplicateIdentifier, value, other.ID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}
	return nil
}

func checkNetwork(ctx context.Context, tx *db.Store, column, value, excludeID string) error {
	if value == "" {
		return nil
	}
	other, err := tx.FindServerByIdentifier(ctx, column, value, excludeID)
	if err == nil {
		return fmt.Errorf("%w: %s %q is used by server %s", ErrDuplicateIdentifier, column, value, other.ID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// uniqueErr maps a constraint violation that slipped past the explicit
// checks onto ErrDuplicateIdentifier.
func uniqueErr(err error) error {
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateIdentifier, err)
	}
	return err
}

// IsSerialUnique reports whether no server carries serial.
func (s *Service) IsSerialUnique(ctx context.Context, serial string) (bool, error) {
	used, err := s.db.SerialInUse(ctx, strings.TrimSpace(serial))
	if err != nil {
		return false, err
	}
	return !used, nil
}

// CreateServer registers a new server in status NEW.
func (s *Service) CreateServer(ctx context.Context, in ServerInput, actor int64) (*models.Server, error) {
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	in.APKSerialNumber = strings.TrimSpace(in.APKSerialNumber)
	if in.SerialNumber == "" && in.APKSerialNumber == "" {
		return nil, fmt.Errorf("%w: serial_number or apk_serial_number is required", ErrValidation)
	}
	if in.SerialNumber != "" && in.SerialNumber == in.APKSerialNumber {
		return nil, fmt.Errorf("%w: serial_number and apk_serial_number must differ", ErrValidation)
	}
	ip, err := normalizeIP(in.IPAddress)
	if err != nil {
		return nil, err
	}
	mac, err := normalizeMAC(in.MACAddress)
	if err != nil {
		return nil, err
	}

	srv := &models.Server{
		ID:              uuid.NewString(),
		SerialNumber:    in.SerialNumber,
		APKSerialNumber: in.APKSerialNumber,
		IPAddress:       ip,
		MACAddress:      mac,
		Hostname:        strings.TrimSpace(in.Hostname),
		Status:          models.ServerNew,
		BatchID:         in.BatchID,
		Notes:           in.Notes,
	}
	// Lease data is kept apart from the caller's values: only the latter
	// may fail intake on a collision.
	var lease models.Server
	leased := false
	if srv.IPAddress == "" && srv.SerialNumber != "" {
		lease = *srv
		leased = s.applyLease(ctx, &lease)
	}

	err = s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		if err := checkSerial(ctx, tx, srv.SerialNumber, srv.ID); err != nil {
			return err
		}
		if err := checkSerial(ctx, tx, srv.APKSerialNumber, srv.ID); err != nil {
			return err
		}
		if err := checkNetwork(ctx, tx, "ip_address", srv.IPAddress, srv.ID); err != nil {
			return err
		}
		if err := checkNetwork(ctx, tx, "mac_address", srv.MACAddress, srv.ID); err != nil {
			return err
		}
		if leased {
			s.adoptLease(ctx, tx, srv, &lease)
		}
		if srv.BatchID != nil {
			if _, err := tx.GetBatch(ctx, *srv.BatchID); err != nil {
				return notFound(err, "batch", *srv.BatchID)
			}
		}
		srv.StatusChangedAt = l.now
		srv.CreatedAt = l.now
		srv.UpdatedAt = l.now
		if err := tx.CreateServer(ctx, srv); err != nil {
			return uniqueErr(err)
		}
		if err := tx.InitServerChecklist(ctx, srv.ID, l.now); err != nil {
			return err
		}
		e := serverEntry(srv, models.ActionCreated, "", models.ServerNew, actor, l.now)
		if srv.BatchID != nil {
			e.Metadata = map[string]any{"batch_id": *srv.BatchID}
		}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// applyLease fills empty network fields of srv from discovery. Any failure
// leaves srv unchanged.
func (s *Service) applyLease(ctx context.Context, srv *models.Server) bool {
	if s.discovery == nil || srv.SerialNumber == "" {
		return false
	}
	lease, err := s.discovery.FindInDHCP(ctx, srv.SerialNumber)
	if err != nil {
		s.log.Warn("dhcp lookup failed", "serial", srv.SerialNumber, "error", err)
		return false
	}
	if !lease.Found {
		return false
	}
	changed := srv.LeaseActive != lease.Active
	srv.LeaseActive = lease.Active
	if srv.IPAddress == "" {
		if ip, err := normalizeIP(lease.IPAddress); err == nil && ip != "" {
			srv.IPAddress = ip
			changed = true
		}
	}
	if srv.MACAddress == "" {
		if mac, err := normalizeMAC(lease.MACAddress); err == nil && mac != "" {
			srv.MACAddress = mac
			changed = true
		}
	}
	if srv.Hostname == "" && lease.Hostname != "" {
		srv.Hostname = lease.Hostname
		changed = true
	}
	return changed
}

// adoptLease copies the lease fields into the empty network fields of dst.
// An IP or MAC already held by another server is dropped with a warning.
func (s *Service) adoptLease(ctx context.Context, tx *db.Store, dst, lease *models.Server) {
	dst.LeaseActive = lease.LeaseActive
	if dst.IPAddress == "" && lease.IPAddress != "" {
		if err := checkNetwork(ctx, tx, "ip_address", lease.IPAddress, dst.ID); err == nil {
			dst.IPAddress = lease.IPAddress
		} else {
			s.log.Warn("lease ip not applied", "server_id", dst.ID, "error", err)
		}
	}
	if dst.MACAddress == "" && lease.MACAddress != "" {
		if err := checkNetwork(ctx, tx, "mac_address", lease.MACAddress, dst.ID); err == nil {
			dst.MACAddress = lease.MACAddress
		} else {
			s.log.Warn("lease mac not applied", "server_id", dst.ID, "error", err)
		}
	}
	if dst.Hostname == "" {
		dst.Hostname = lease.Hostname
	}
}

// AssignAPKSerial sets the internal serial number of a server.
func (s *Service) AssignAPKSerial(ctx context.Context, id, apk string, actor int64) (*models.Server, error) {
	apk = strings.TrimSpace(apk)
	if apk == "" {
		return nil, fmt.Errorf("%w: apk_serial_number is required", ErrValidation)
	}
	var srv *models.Server
	err := s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		srv, err = tx.GetServer(ctx, id)
		if err != nil {
			return notFound(err, "server", id)
		}
		if srv.Status == models.ServerArchived {
			return fmt.Errorf("%w: server %s is archived", ErrPreconditionFailed, id)
		}
		if apk == srv.SerialNumber {
			return fmt.Errorf("%w: apk_serial_number must differ from serial_number", ErrValidation)
		}
		if err := checkSerial(ctx, tx, apk, id); err != nil {
			return err
		}
		prev := srv.APKSerialNumber
		srv.APKSerialNumber = apk
		srv.UpdatedAt = l.now
		if err := tx.UpdateServer(ctx, srv); err != nil {
			return uniqueErr(err)
		}
		e := serverEntry(srv, models.ActionSerialAssigned, "", "", actor, l.now)
		e.Metadata = map[string]any{"apk_serial_number": apk, "previous": prev}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// UpdateNetwork replaces the IP, MAC and hostname of a server.
func (s *Service) UpdateNetwork(ctx context.Context, id string, in NetworkInput, actor int64) (*models.Server, error) {
	ip, err := normalizeIP(in.IPAddress)
	if err != nil {
		return nil, err
	}
	mac, err := normalizeMAC(in.MACAddress)
	if err != nil {
		return nil, err
	}
	var srv *models.Server
	err = s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		var err error
		srv, err = tx.GetServer(ctx, id)
		if err != nil {
			return notFound(err, "server", id)
		}
		if err := checkNetwork(ctx, tx, "ip_address", ip, id); err != nil {
			return err
		}
		if err := checkNetwork(ctx, tx, "mac_address", mac, id); err != nil {
			return err
		}
		e := serverEntry(srv, models.ActionNetworkUpdated, "", "", actor, l.now)
		e.Metadata = map[string]any{
			"ip_address":  map[string]string{"from": srv.IPAddress, "to": ip},
			"mac_address": map[string]string{"from": srv.MACAddress, "to": mac},
			"hostname":    map[string]string{"from": srv.Hostname, "to": in.Hostname},
		}
		srv.IPAddress = ip
		srv.MACAddress = mac
		srv.Hostname = strings.TrimSpace(in.Hostname)
		srv.UpdatedAt = l.now
		if err := tx.UpdateServer(ctx, srv); err != nil {
			return uniqueErr(err)
		}
		l.add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// FindCollisions lists identifier values shared by more than one server.
func (s *Service) FindCollisions(ctx context.Context) ([]db.IdentifierCollision, error) {
	return s.db.FindIdentifierCollisions(ctx)
}

// RefreshLease asks discovery for the server's lease and fills any empty
// network fields. Discovery problems leave the server unchanged and are not
// reported to the caller.
func (s *Service) RefreshLease(ctx context.Context, id string, actor int64) (*models.Server, error) {
	srv, err := s.db.GetServer(ctx, id)
	if err != nil {
		return nil, notFound(err, "server", id)
	}
	lease := *srv
	if !s.applyLease(ctx, &lease) {
		return srv, nil
	}

	var out *models.Server
	err = s.mutate(ctx, func(tx *db.Store, l *ledger) error {
		cur, err := tx.GetServer(ctx, id)
		if err != nil {
			return notFound(err, "server", id)
		}
		s.adoptLease(ctx, tx, cur, &lease)
		cur.UpdatedAt = l.now
		if err := tx.UpdateServer(ctx, cur); err != nil {
			return uniqueErr(err)
		}
		e := serverEntry(cur, models.ActionNetworkUpdated, "", "", actor, l.now)
		e.Metadata = map[string]any{"source": "dhcp", "lease_active": cur.LeaseActive}
		l.add(e)
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
