package service_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphummel/rackline/internal/cache"
	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/service"
)

func TestRecord_PublishesAndCounts(t *testing.T) {
	pub := &fakePublisher{}
	met := &fakeMetrics{}
	e := newEnv(t, func(o *service.Options) {
		o.Publisher = pub
		o.Metrics = met
	})

	srv := e.server(t, "SN-1")
	_, err := e.svc.Take(e.ctx, srv.ID, 4)
	require.NoError(t, err)

	require.Len(t, pub.entries, 2)
	assert.Equal(t, models.ActionCreated, pub.entries[0].Action)
	assert.Equal(t, models.ActionTaken, pub.entries[1].Action)
	assert.NotZero(t, pub.entries[1].ID, "published after the ledger assigned an id")
	assert.Equal(t, 2, met.appended[models.EntityServer])
	assert.Equal(t, 1, met.transitions)
	assert.Zero(t, met.failed)
}

func TestRecord_PublishFailureIsAdvisory(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats down")}
	e := newEnv(t, func(o *service.Options) { o.Publisher = pub })

	srv := e.server(t, "SN-1")
	_, err := e.svc.Take(e.ctx, srv.ID, 4)
	require.NoError(t, err)
	assert.Len(t, e.history(t, models.HistoryFilter{ServerID: srv.ID}), 2)
}

func TestRecord_FailedTxWritesNothing(t *testing.T) {
	pub := &fakePublisher{}
	e := newEnv(t, func(o *service.Options) { o.Publisher = pub })
	srv := e.server(t, "SN-1")

	_, err := e.svc.Release(e.ctx, srv.ID, 4)
	require.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.Len(t, pub.entries, 1)
}

func TestRecord_AppendFailureKeepsCommittedChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rackline.db")
	d, err := db.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	met := &fakeMetrics{}
	svc := service.New(d, service.Options{Metrics: met})
	ctx := context.Background()

	srv, err := svc.CreateServer(ctx, service.ServerInput{SerialNumber: "SN-1"}, 1)
	require.NoError(t, err)
	require.Zero(t, met.failed)

	// Break the ledger through a second handle so later appends fail.
	other, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })
	_, err = other.Exec(`CREATE TRIGGER history_offline BEFORE INSERT ON history
		BEGIN SELECT RAISE(ABORT, 'ledger offline'); END`)
	require.NoError(t, err)

	got, err := svc.Take(ctx, srv.ID, 9)
	require.NoError(t, err, "a lost history entry must not fail the operation")
	assert.Equal(t, models.ServerInWork, got.Status)

	stored, err := svc.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ServerInWork, stored.Status, "the change stays committed")
	require.NotNil(t, stored.AssignedToID)
	assert.Equal(t, int64(9), *stored.AssignedToID)
	assert.Equal(t, 1, met.failed)

	entries, err := svc.ListHistory(ctx, models.HistoryFilter{EntityID: srv.ID})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the CREATED entry was written")
}

func TestListHistory_Validation(t *testing.T) {
	e := newEnv(t)
	since := e.clock.Now()
	tests := []struct {
		name string
		f    models.HistoryFilter
	}{
		{"entity type", models.HistoryFilter{EntityType: "TRUCK"}},
		{"negative limit", models.HistoryFilter{Limit: -1}},
		{"negative offset", models.HistoryFilter{Offset: -1}},
		{"inverted window", models.HistoryFilter{Since: since, Until: since}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.ListHistory(e.ctx, tt.f)
			assert.ErrorIs(t, err, service.ErrValidation)
		})
	}
}

func TestListHistory_Window(t *testing.T) {
	e := newEnv(t)
	e.server(t, "SN-1")
	mid := e.clock.Now().Add(30 * time.Minute)
	e.clock.Advance(time.Hour)
	e.server(t, "SN-2")

	after := e.history(t, models.HistoryFilter{Since: mid})
	require.Len(t, after, 1)
	before := e.history(t, models.HistoryFilter{Until: mid})
	require.Len(t, before, 1)
	assert.NotEqual(t, after[0].EntityID, before[0].EntityID)

	page := e.history(t, models.HistoryFilter{Limit: 1, Offset: 1})
	require.Len(t, page, 1)
	assert.Equal(t, before[0].ID, page[0].ID)
}

func TestBatchStats(t *testing.T) {
	e := newEnv(t)
	b, err := e.svc.CreateBatch(e.ctx, service.BatchInput{Title: "Lot 1"}, 1)
	require.NoError(t, err)
	for _, sn := range []string{"SN-1", "SN-2", "SN-3", "SN-4"} {
		_, err := e.svc.CreateServer(e.ctx, service.ServerInput{SerialNumber: sn, APKSerialNumber: "APK-" + sn, BatchID: &b.ID}, 1)
		require.NoError(t, err)
	}
	servers, err := e.svc.ListServers(e.ctx, db.ServerFilter{BatchID: b.ID})
	require.NoError(t, err)
	require.Len(t, servers, 4)
	for _, srv := range servers[:2] {
		_, err := e.svc.Take(e.ctx, srv.ID, 1)
		require.NoError(t, err)
		_, err = e.svc.SetStatus(e.ctx, srv.ID, models.ServerDone, 1, "")
		require.NoError(t, err)
	}
	_, err = e.svc.Archive(e.ctx, servers[0].ID, 1)
	require.NoError(t, err)

	st, err := e.svc.BatchStats(e.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Archived)
	assert.Equal(t, 33, st.Progress)

	_, err = e.svc.BatchStats(e.ctx, "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestClusterAndShipmentStats(t *testing.T) {
	e := newEnv(t)
	sh, err := e.svc.CreateShipment(e.ctx, service.ShipmentInput{Name: "S1", ExpectedCount: 4}, 1)
	require.NoError(t, err)
	c, err := e.svc.CreateCluster(e.ctx, service.ClusterInput{Name: "C1", ExpectedCount: 2}, 1)
	require.NoError(t, err)
	_, err = e.svc.AssignClusterToShipment(e.ctx, c.ID, &sh.ID, 1)
	require.NoError(t, err)

	ids := []string{e.server(t, "SN-1").ID, e.server(t, "SN-2").ID, e.server(t, "SN-3").ID}
	_, err = e.svc.AddServersToCluster(e.ctx, c.ID, ids, "WORKER", 1)
	require.NoError(t, err)

	cs, err := e.svc.ClusterStats(e.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, cs.ServersCount)
	assert.Equal(t, 150, cs.CompletionPercent)
	assert.Equal(t, 100, cs.DisplayPercent)
	assert.True(t, cs.OverCapacity)

	ss, err := e.svc.ShipmentStats(e.ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ss.ClustersCount)
	assert.Equal(t, 3, ss.TotalServers)
	assert.Equal(t, 75, ss.CompletionPercent)
}

func TestRackStats(t *testing.T) {
	e := newEnv(t)
	rack := e.rack(t, "R1", 4)
	a := e.server(t, "SN-1")
	_, err := e.svc.PlaceInUnit(e.ctx, rack.ID, 1, a.ID, models.UnitData{}, 1)
	require.NoError(t, err)

	st, err := e.svc.RackStats(e.ctx, rack.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.FilledUnits)
	assert.Equal(t, 25, st.OccupancyPercent)
	assert.Equal(t, 3, st.ByUnitState[models.UnitEmpty])
}

func TestStatsCache_InvalidatedByMutation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	e := newEnv(t, func(o *service.Options) { o.Cache = cache.New(client, time.Minute) })

	rack := e.rack(t, "R1", 2)
	st, err := e.svc.RackStats(e.ctx, rack.ID)
	require.NoError(t, err)
	assert.Zero(t, st.FilledUnits)

	var cachedKeys int
	for _, k := range mr.Keys() {
		if strings.Contains(k, ":rack:"+rack.ID) {
			cachedKeys++
		}
	}
	assert.Equal(t, 1, cachedKeys)

	srv := e.server(t, "SN-1")
	_, err = e.svc.PlaceInUnit(e.ctx, rack.ID, 2, srv.ID, models.UnitData{}, 1)
	require.NoError(t, err)

	st, err = e.svc.RackStats(e.ctx, rack.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.FilledUnits, "a committed mutation must invalidate cached aggregates")
}

func TestStatsCache_UnavailableFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	e := newEnv(t, func(o *service.Options) { o.Cache = cache.New(client, time.Minute) })
	rack := e.rack(t, "R1", 2)

	mr.Close()
	st, err := e.svc.RackStats(e.ctx, rack.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalUnits)
}
