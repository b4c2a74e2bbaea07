package service

import (
	"context"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/stats"
)

// invalidate drops every cached aggregate after a committed mutation.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn("stats cache invalidate failed", "error", err)
	}
}

// cached serves kind/id from the cache when present and stores the result
// of load otherwise. The result is stored under the generation read before
// load ran, so an invalidate during load leaves it unreachable. Cache errors
// fall through to load.
func cached[T any](ctx context.Context, s *Service, kind, id string, load func() (T, error)) (T, error) {
	var gen int64
	store := false
	if s.cache != nil {
		var v T
		g, ok, err := s.cache.Get(ctx, kind, id, &v)
		switch {
		case err != nil:
			s.log.Warn("stats cache read failed", "kind", kind, "id", id, "error", err)
		case ok:
			return v, nil
		default:
			gen, store = g, true
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if store {
		if err := s.cache.Set(ctx, gen, kind, id, v); err != nil {
			s.log.Warn("stats cache write failed", "kind", kind, "id", id, "error", err)
		}
	}
	return v, nil
}

// BatchStats returns the status breakdown and progress of a batch.
func (s *Service) BatchStats(ctx context.Context, id string) (stats.BatchStats, error) {
	return cached(ctx, s, "batch", id, func() (stats.BatchStats, error) {
		if _, err := s.db.GetBatch(ctx, id); err != nil {
			return stats.BatchStats{}, notFound(err, "batch", id)
		}
		servers, err := s.db.ListServersByBatch(ctx, id)
		if err != nil {
			return stats.BatchStats{}, err
		}
		return stats.ForBatch(servers), nil
	})
}

func (s *Service) clusterStats(ctx context.Context, id string) (stats.ClusterStats, error) {
	c, err := s.db.GetCluster(ctx, id)
	if err != nil {
		return stats.ClusterStats{}, notFound(err, "cluster", id)
	}
	if c.Servers, err = s.db.ListClusterMembers(ctx, id); err != nil {
		return stats.ClusterStats{}, err
	}
	servers, err := s.db.ListClusterServers(ctx, id)
	if err != nil {
		return stats.ClusterStats{}, err
	}
	return stats.ForCluster(c, servers), nil
}

// ClusterStats returns the membership counts and completion of a cluster.
func (s *Service) ClusterStats(ctx context.Context, id string) (stats.ClusterStats, error) {
	return cached(ctx, s, "cluster", id, func() (stats.ClusterStats, error) {
		return s.clusterStats(ctx, id)
	})
}

// ShipmentStats aggregates the clusters attached to a shipment.
func (s *Service) ShipmentStats(ctx context.Context, id string) (stats.ShipmentStats, error) {
	return cached(ctx, s, "shipment", id, func() (stats.ShipmentStats, error) {
		sh, err := s.db.GetShipment(ctx, id)
		if err != nil {
			return stats.ShipmentStats{}, notFound(err, "shipment", id)
		}
		clusters, err := s.db.ListClusters(ctx, id)
		if err != nil {
			return stats.ShipmentStats{}, err
		}
		per := make([]stats.ClusterStats, 0, len(clusters))
		for _, c := range clusters {
			cs, err := s.clusterStats(ctx, c.ID)
			if err != nil {
				return stats.ShipmentStats{}, err
			}
			per = append(per, cs)
		}
		return stats.ForShipment(sh.ExpectedCount, per), nil
	})
}

// RackStats returns the occupancy of a rack.
func (s *Service) RackStats(ctx context.Context, id string) (stats.RackStats, error) {
	return cached(ctx, s, "rack", id, func() (stats.RackStats, error) {
		rack, err := s.db.GetRack(ctx, id)
		if err != nil {
			return stats.RackStats{}, notFound(err, "rack", id)
		}
		units, err := s.db.ListRackUnits(ctx, id)
		if err != nil {
			return stats.RackStats{}, err
		}
		servers, err := s.db.ListRackServers(ctx, id)
		if err != nil {
			return stats.RackStats{}, err
		}
		return stats.ForRack(rack.TotalUnits, units, servers), nil
	})
}

// DefectStats summarizes the defect records matching f.
func (s *Service) DefectStats(ctx context.Context, f db.DefectFilter) (stats.DefectStats, error) {
	records, err := s.db.ListDefects(ctx, f)
	if err != nil {
		return stats.DefectStats{}, err
	}
	return stats.ForDefects(records), nil
}
