// Package events publishes committed history entries to NATS so other
// systems can follow the ledger without polling it.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tphummel/rackline/internal/models"
)

// SubjectPrefix is prepended to the entity type to form a subject, e.g.
// rackline.history.SERVER.
const SubjectPrefix = "rackline.history."

// ErrNotConnected is returned when publishing on a closed connection.
var ErrNotConnected = errors.New("nats not connected")

// Subject returns the subject entries for entityType are published on.
func Subject(entityType models.EntityType) string {
	return SubjectPrefix + string(entityType)
}

// closeTimeout bounds the flush of buffered entries on Close.
const closeTimeout = 5 * time.Second

type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	IsClosed() bool
	Close()
}

// Publisher sends history entries to NATS.
type Publisher struct {
	conn conn
	log  *slog.Logger
}

// Connect dials url and keeps reconnecting for the life of the process.
func Connect(url string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("rackline"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: nc, log: logger}, nil
}

// PublishEntry encodes e as JSON and publishes it on its entity's subject.
func (p *Publisher) PublishEntry(ctx context.Context, e *models.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conn == nil || p.conn.IsClosed() {
		return ErrNotConnected
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	return p.conn.Publish(Subject(e.EntityType), data)
}

// Close waits for buffered entries to reach the server, then closes the
// connection.
func (p *Publisher) Close() {
	if p.conn == nil || p.conn.IsClosed() {
		return
	}
	if err := p.conn.FlushTimeout(closeTimeout); err != nil && p.log != nil {
		p.log.Warn("nats flush on close failed", "error", err)
	}
	p.conn.Close()
}
