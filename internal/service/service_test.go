package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/discovery"
	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/service"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeDiscovery struct {
	lease discovery.Lease
	err   error
	calls int
}

func (f *fakeDiscovery) FindInDHCP(_ context.Context, _ string) (discovery.Lease, error) {
	f.calls++
	return f.lease, f.err
}

type fakePublisher struct {
	mu      sync.Mutex
	entries []*models.HistoryEntry
	err     error
}

func (f *fakePublisher) PublishEntry(_ context.Context, e *models.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return f.err
}

type fakeMetrics struct {
	mu          sync.Mutex
	appended    map[models.EntityType]int
	transitions int
	failed      int
}

func (f *fakeMetrics) HistoryAppended(t models.EntityType, transition bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appended == nil {
		f.appended = make(map[models.EntityType]int)
	}
	f.appended[t]++
	if transition {
		f.transitions++
	}
}

func (f *fakeMetrics) HistoryFailed(models.EntityType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed++
}

type env struct {
	svc   *service.Service
	db    *db.DB
	clock *fakeClock
	ctx   context.Context
}

func newEnv(t *testing.T, opts ...func(*service.Options)) *env {
	t.Helper()
	d, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	o := service.Options{Now: clock.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &env{svc: service.New(d, o), db: d, clock: clock, ctx: context.Background()}
}

func (e *env) server(t *testing.T, serial string) *models.Server {
	t.Helper()
	srv, err := e.svc.CreateServer(e.ctx, service.ServerInput{SerialNumber: serial}, 1)
	require.NoError(t, err)
	return srv
}

func (e *env) doneServer(t *testing.T, serial, apk string) *models.Server {
	t.Helper()
	srv, err := e.svc.CreateServer(e.ctx, service.ServerInput{SerialNumber: serial, APKSerialNumber: apk}, 1)
	require.NoError(t, err)
	_, err = e.svc.Take(e.ctx, srv.ID, 7)
	require.NoError(t, err)
	srv, err = e.svc.SetStatus(e.ctx, srv.ID, models.ServerDone, 7, "")
	require.NoError(t, err)
	return srv
}

func (e *env) rack(t *testing.T, name string, units int) *models.Rack {
	t.Helper()
	r, err := e.svc.CreateRack(e.ctx, service.RackInput{Name: name, TotalUnits: units}, 1)
	require.NoError(t, err)
	return r
}

func (e *env) cluster(t *testing.T, name string) *models.Cluster {
	t.Helper()
	c, err := e.svc.CreateCluster(e.ctx, service.ClusterInput{Name: name}, 1)
	require.NoError(t, err)
	return c
}

func (e *env) history(t *testing.T, f models.HistoryFilter) []*models.HistoryEntry {
	t.Helper()
	entries, err := e.svc.ListHistory(e.ctx, f)
	require.NoError(t, err)
	return entries
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: server x", service.ErrNotFound), "NOT_FOUND"},
		{service.ErrInvalidTransition, "INVALID_TRANSITION"},
		{service.ErrInvalidDefectTransition, "INVALID_DEFECT_TRANSITION"},
		{service.ErrUnitOccupied, "UNIT_OCCUPIED"},
		{service.ErrServerAlreadyPlaced, "SERVER_ALREADY_PLACED"},
		{service.ErrServerAlreadyInCluster, "SERVER_ALREADY_IN_CLUSTER"},
		{service.ErrPreconditionFailed, "PRECONDITION_FAILED"},
		{service.ErrDuplicateIdentifier, "DUPLICATE_IDENTIFIER"},
		{service.ErrValidation, "VALIDATION"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.Code(tt.err), tt.err.Error())
	}
}
