package models_test

import (
	"testing"
	"time"

	"github.com/tphummel/rackline/internal/models"
)

func TestValidServerStatuses_ContainsExpectedValues(t *testing.T) {
	expected := []models.ServerStatus{"NEW", "IN_WORK", "DONE", "DEFECT", "ARCHIVED"}

	if len(models.ValidServerStatuses) != len(expected) {
		t.Errorf("ValidServerStatuses: got %d entries, want %d", len(models.ValidServerStatuses), len(expected))
	}
	for _, s := range expected {
		if !models.ValidServerStatuses[s] {
			t.Errorf("ValidServerStatuses: missing %q", s)
		}
	}
}

func TestValidServerStatuses_IsCaseSensitive(t *testing.T) {
	for _, s := range []models.ServerStatus{"new", "In_Work", "", "REPAIR"} {
		if models.ValidServerStatuses[s] {
			t.Errorf("ValidServerStatuses: should not contain %q", s)
		}
	}
}

func TestCanSetServerStatus(t *testing.T) {
	tests := []struct {
		from, to models.ServerStatus
		want     bool
	}{
		{models.ServerInWork, models.ServerDone, true},
		{models.ServerInWork, models.ServerDefect, true},
		{models.ServerDefect, models.ServerInWork, true},
		{models.ServerNew, models.ServerInWork, false}, // take, not setStatus
		{models.ServerInWork, models.ServerNew, false}, // release
		{models.ServerDone, models.ServerArchived, false},
		{models.ServerArchived, models.ServerDone, false},
		{models.ServerDone, models.ServerInWork, false},
		{models.ServerDefect, models.ServerDone, false},
		{models.ServerNew, models.ServerDone, false},
	}
	for _, tt := range tests {
		if got := models.CanSetServerStatus(tt.from, tt.to); got != tt.want {
			t.Errorf("CanSetServerStatus(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransitionDefect(t *testing.T) {
	tests := []struct {
		from, to models.DefectStatus
		want     bool
	}{
		{models.DefectNew, models.DefectDiagnosing, true},
		{models.DefectNew, models.DefectSentToYadro, true},
		{models.DefectNew, models.DefectResolved, false},
		{models.DefectDiagnosing, models.DefectWaitingParts, true},
		{models.DefectWaitingParts, models.DefectRepairing, true},
		{models.DefectRepairing, models.DefectResolved, true},
		{models.DefectSentToYadro, models.DefectReturned, true},
		{models.DefectSentToYadro, models.DefectResolved, false},
		{models.DefectReturned, models.DefectResolved, true},
		{models.DefectResolved, models.DefectDiagnosing, false},
		{models.DefectRepeated, models.DefectDiagnosing, true},

		// REPEATED and CLOSED from anywhere except CLOSED.
		{models.DefectResolved, models.DefectRepeated, true},
		{models.DefectSentToYadro, models.DefectRepeated, true},
		{models.DefectNew, models.DefectClosed, true},
		{models.DefectResolved, models.DefectClosed, true},
		{models.DefectClosed, models.DefectRepeated, false},
		{models.DefectClosed, models.DefectClosed, false},
		{models.DefectClosed, models.DefectDiagnosing, false},
	}
	for _, tt := range tests {
		if got := models.CanTransitionDefect(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionDefect(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDefectStatus_IsOpen(t *testing.T) {
	if models.DefectResolved.IsOpen() || models.DefectClosed.IsOpen() {
		t.Error("RESOLVED and CLOSED must not be open")
	}
	if !models.DefectSentToYadro.IsOpen() {
		t.Error("SENT_TO_YADRO should be open")
	}
}

func TestCanTransitionCluster(t *testing.T) {
	if !models.CanTransitionCluster(models.ClusterForming, models.ClusterReady) {
		t.Error("FORMING -> READY should be allowed")
	}
	if !models.CanTransitionCluster(models.ClusterReady, models.ClusterForming) {
		t.Error("READY -> FORMING should be allowed")
	}
	if models.CanTransitionCluster(models.ClusterForming, models.ClusterDeployed) {
		t.Error("FORMING -> DEPLOYED should not be allowed")
	}
	if models.CanTransitionCluster(models.ClusterDeployed, models.ClusterForming) {
		t.Error("DEPLOYED is terminal")
	}
}

func TestCanTransitionShipment(t *testing.T) {
	path := []models.ShipmentStatus{
		models.ShipmentForming, models.ShipmentReady, models.ShipmentShipped,
		models.ShipmentInTransit, models.ShipmentDelivered, models.ShipmentAccepted,
	}
	for i := 0; i+1 < len(path); i++ {
		if !models.CanTransitionShipment(path[i], path[i+1]) {
			t.Errorf("%s -> %s should be allowed", path[i], path[i+1])
		}
	}
	if models.CanTransitionShipment(models.ShipmentAccepted, models.ShipmentForming) {
		t.Error("ACCEPTED is terminal")
	}
	if models.CanTransitionShipment(models.ShipmentForming, models.ShipmentShipped) {
		t.Error("FORMING -> SHIPPED skips READY")
	}
}

func TestRackUnit_DeriveState(t *testing.T) {
	sid := "srv-1"
	now := time.Now()

	empty := models.RackUnit{}
	if got := empty.DeriveState(); got != models.UnitEmpty {
		t.Errorf("empty unit: got %s, want EMPTY", got)
	}
	placed := models.RackUnit{ServerID: &sid}
	if got := placed.DeriveState(); got != models.UnitPlaced {
		t.Errorf("placed unit: got %s, want PLACED", got)
	}
	inWork := models.RackUnit{ServerID: &sid, InstalledAt: &now}
	if got := inWork.DeriveState(); got != models.UnitInWork {
		t.Errorf("installed unit: got %s, want IN_WORK", got)
	}
}

func TestValidRepairPartTypes_RejectsUnknown(t *testing.T) {
	for _, p := range []models.RepairPartType{"ram", "FLUX_CAPACITOR", ""} {
		if models.ValidRepairPartTypes[p] {
			t.Errorf("ValidRepairPartTypes: should not contain %q", p)
		}
	}
	if !models.ValidRepairPartTypes["MOTHERBOARD"] {
		t.Error("ValidRepairPartTypes: missing MOTHERBOARD")
	}
}
