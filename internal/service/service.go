// Package service implements the lifecycle and inventory-consistency rules
// on top of internal/db. Every mutation validates and writes inside one
// transaction; history entries are appended after commit.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/discovery"
	"github.com/tphummel/rackline/internal/models"
)

// Discovery looks up network leases for a serial number. Results are
// advisory.
type Discovery interface {
	FindInDHCP(ctx context.Context, serial string) (discovery.Lease, error)
}

// Attachments stores the bytes behind defect files.
type Attachments interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Publisher forwards committed history entries.
type Publisher interface {
	PublishEntry(ctx context.Context, e *models.HistoryEntry) error
}

// Cache holds computed aggregates between mutations.
type Cache interface {
	Get(ctx context.Context, kind, id string, dest any) (gen int64, ok bool, err error)
	Set(ctx context.Context, gen int64, kind, id string, v any) error
	Invalidate(ctx context.Context) error
}

// LedgerMetrics counts history appends.
type LedgerMetrics interface {
	HistoryAppended(entityType models.EntityType, transition bool)
	HistoryFailed(entityType models.EntityType)
}

// Options carries the optional collaborators of a Service. Nil fields
// disable the matching feature.
type Options struct {
	Logger      *slog.Logger
	Discovery   Discovery
	Attachments Attachments
	Publisher   Publisher
	Cache       Cache
	Metrics     LedgerMetrics
	Now         func() time.Time
}

// Service is the entry point for every operation on the inventory.
type Service struct {
	db          *db.DB
	log         *slog.Logger
	discovery   Discovery
	attachments Attachments
	publisher   Publisher
	cache       Cache
	metrics     LedgerMetrics
	now         func() time.Time
}

// New returns a Service over d.
func New(d *db.DB, opts Options) *Service {
	s := &Service{
		db:          d,
		log:         opts.Logger,
		discovery:   opts.Discovery,
		attachments: opts.Attachments,
		publisher:   opts.Publisher,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ledger collects the history entries of one mutation. Entries are
// appended only after the transaction commits.
type ledger struct {
	now     time.Time
	entries []*models.HistoryEntry
}

func (l *ledger) add(e *models.HistoryEntry) {
	e.CreatedAt = l.now
	l.entries = append(l.entries, e)
}

// mutate runs fn in a transaction and records its entries on success.
func (s *Service) mutate(ctx context.Context, fn func(tx *db.Store, l *ledger) error) error {
	l := &ledger{now: s.now()}
	if err := s.db.RunInTx(ctx, func(tx *db.Store) error { return fn(tx, l) }); err != nil {
		return err
	}
	s.record(ctx, l.entries...)
	s.invalidate(ctx)
	return nil
}

func actorPtr(actor int64) *int64 {
	if actor == 0 {
		return nil
	}
	return &actor
}

func timePtr(t time.Time) *time.Time {
	return &t
}
