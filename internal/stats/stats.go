// Package stats computes the derived aggregates of batches, racks, clusters,
// shipments and defects. Every function is pure: callers load the canonical
// member lists and the result is never stored.
package stats

import (
	"math"
	"time"

	"github.com/tphummel/rackline/internal/models"
)

// Percent returns round(num/den*100), or 0 when den is not positive. The
// result is not capped.
func Percent(num, den int) int {
	if den <= 0 {
		return 0
	}
	return int(math.Round(float64(num) / float64(den) * 100))
}

// BatchStats summarizes the servers of a batch. Archived servers are counted
// separately and excluded from Total and the per-status counts.
type BatchStats struct {
	Total    int                         `json:"total"`
	ByStatus map[models.ServerStatus]int `json:"by_status"`
	Archived int                         `json:"archived"`
	Progress int                         `json:"progress"`
}

// ForBatch computes BatchStats over the batch's members.
func ForBatch(servers []*models.Server) BatchStats {
	st := BatchStats{ByStatus: map[models.ServerStatus]int{
		models.ServerNew:    0,
		models.ServerInWork: 0,
		models.ServerDone:   0,
		models.ServerDefect: 0,
	}}
	for _, s := range servers {
		if s.Status == models.ServerArchived {
			st.Archived++
			continue
		}
		st.Total++
		st.ByStatus[s.Status]++
	}
	st.Progress = Percent(st.ByStatus[models.ServerDone], st.Total)
	return st
}

// Completion is a raw completion percentage alongside its display value.
type Completion struct {
	ExpectedCount     int  `json:"expected_count"`
	CompletionPercent int  `json:"completion_percent"`
	DisplayPercent    int  `json:"display_percent"`
	OverCapacity      bool `json:"over_capacity"`
}

func completion(count, expected int) Completion {
	raw := Percent(count, expected)
	return Completion{
		ExpectedCount:     expected,
		CompletionPercent: raw,
		DisplayPercent:    min(raw, 100),
		OverCapacity:      expected > 0 && count > expected,
	}
}

// ClusterStats summarizes a cluster's membership.
type ClusterStats struct {
	ClusterID    string                    `json:"cluster_id"`
	Status       models.ClusterStatus      `json:"status"`
	ServersCount int                       `json:"servers_count"`
	Archived     int                       `json:"archived"`
	ByRole       map[models.ServerRole]int `json:"by_role"`
	Completion
}

// ForCluster computes ClusterStats. c.Servers supplies the memberships and
// servers the corresponding server rows; members whose server is archived
// are excluded from ServersCount.
func ForCluster(c *models.Cluster, servers []*models.Server) ClusterStats {
	archived := make(map[string]bool, len(servers))
	for _, s := range servers {
		if s.Status == models.ServerArchived {
			archived[s.ID] = true
		}
	}
	st := ClusterStats{
		ClusterID: c.ID,
		Status:    c.Status,
		ByRole:    make(map[models.ServerRole]int),
	}
	for _, m := range c.Servers {
		if archived[m.ServerID] {
			st.Archived++
			continue
		}
		st.ServersCount++
		st.ByRole[m.Role]++
	}
	st.Completion = completion(st.ServersCount, c.ExpectedCount)
	return st
}

// ShipmentStats summarizes the clusters attached to a shipment.
type ShipmentStats struct {
	ClustersCount int                          `json:"clusters_count"`
	TotalServers  int                          `json:"total_servers"`
	ByStatus      map[models.ClusterStatus]int `json:"clusters_by_status"`
	Completion
}

// ForShipment computes ShipmentStats from the stats of each attached cluster.
func ForShipment(expected int, clusters []ClusterStats) ShipmentStats {
	st := ShipmentStats{
		ClustersCount: len(clusters),
		ByStatus:      make(map[models.ClusterStatus]int),
	}
	for _, c := range clusters {
		st.TotalServers += c.ServersCount
		st.ByStatus[c.Status]++
	}
	st.Completion = completion(st.TotalServers, expected)
	return st
}

// RackStats summarizes a rack's occupancy.
type RackStats struct {
	TotalUnits       int                         `json:"total_units"`
	FilledUnits      int                         `json:"filled_units"`
	ByUnitState      map[models.UnitState]int    `json:"by_unit_state"`
	ServersByStatus  map[models.ServerStatus]int `json:"servers_by_status"`
	Archived         int                         `json:"archived"`
	OccupancyPercent int                         `json:"occupancy_percent"`
}

// ForRack computes RackStats. Occupancy is physical: an archived server
// still fills its unit but is left out of ServersByStatus.
func ForRack(totalUnits int, units []models.RackUnit, servers []*models.Server) RackStats {
	st := RackStats{
		TotalUnits: totalUnits,
		ByUnitState: map[models.UnitState]int{
			models.UnitEmpty:  0,
			models.UnitPlaced: 0,
			models.UnitInWork: 0,
		},
		ServersByStatus: make(map[models.ServerStatus]int),
	}
	for i := range units {
		state := units[i].DeriveState()
		st.ByUnitState[state]++
		if state != models.UnitEmpty {
			st.FilledUnits++
		}
	}
	for _, s := range servers {
		if s.Status == models.ServerArchived {
			st.Archived++
			continue
		}
		st.ServersByStatus[s.Status]++
	}
	st.OccupancyPercent = Percent(st.FilledUnits, totalUnits)
	return st
}

// DefectStats summarizes a set of defect records.
type DefectStats struct {
	Total              int                           `json:"total"`
	Open               int                           `json:"open"`
	ByStatus           map[models.DefectStatus]int   `json:"by_status"`
	ByPartType         map[models.RepairPartType]int `json:"by_part_type"`
	Repeated           int                           `json:"repeated"`
	RepeatCandidates   int                           `json:"repeat_candidates"`
	AtYadro            int                           `json:"at_yadro"`
	AvgDowntimeMinutes float64                       `json:"avg_downtime_minutes"`
}

// ForDefects computes DefectStats. Average downtime covers records that
// carry a downtime figure.
func ForDefects(records []*models.DefectRecord) DefectStats {
	st := DefectStats{
		Total:      len(records),
		ByStatus:   make(map[models.DefectStatus]int),
		ByPartType: make(map[models.RepairPartType]int),
	}
	var downtime, withDowntime int64
	for _, d := range records {
		st.ByStatus[d.Status]++
		st.ByPartType[d.RepairPartType]++
		if d.Status.IsOpen() {
			st.Open++
		}
		if d.IsRepeatedDefect {
			st.Repeated++
		}
		if d.RepeatCandidateOf != nil {
			st.RepeatCandidates++
		}
		if d.Status == models.DefectSentToYadro {
			st.AtYadro++
		}
		if d.TotalDowntimeMinutes != nil {
			downtime += *d.TotalDowntimeMinutes
			withDowntime++
		}
	}
	if withDowntime > 0 {
		st.AvgDowntimeMinutes = math.Round(float64(downtime)/float64(withDowntime)*10) / 10
	}
	return st
}

// ChecklistStats summarizes the checklist of one server.
type ChecklistStats struct {
	Total             int  `json:"total"`
	Completed         int  `json:"completed"`
	Required          int  `json:"required"`
	RequiredCompleted int  `json:"required_completed"`
	Progress          int  `json:"progress"`
	Ready             bool `json:"ready"`
}

// ForChecklist computes ChecklistStats. Items without a template count as
// optional. Ready is set once every required item is done.
func ForChecklist(items []*models.ChecklistItem) ChecklistStats {
	st := ChecklistStats{Total: len(items)}
	for _, it := range items {
		required := it.Template != nil && it.Template.IsRequired
		if required {
			st.Required++
		}
		if !it.Completed {
			continue
		}
		st.Completed++
		if required {
			st.RequiredCompleted++
		}
	}
	st.Progress = Percent(st.Completed, st.Total)
	st.Ready = st.RequiredCompleted == st.Required
	return st
}

// TimeInStatus returns the seconds a server has spent in each status. The
// ledger entries supply the closed intervals; the open interval of the
// current status runs from since to now.
func TimeInStatus(transitions []*models.HistoryEntry, current models.ServerStatus, since, now time.Time) map[string]int64 {
	out := make(map[string]int64)
	for _, e := range transitions {
		if e.FromStatus == "" || e.DurationSeconds == nil {
			continue
		}
		out[e.FromStatus] += *e.DurationSeconds
	}
	if open := int64(now.Sub(since) / time.Second); open > 0 {
		out[string(current)] += open
	}
	return out
}
