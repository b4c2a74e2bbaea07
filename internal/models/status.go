package models

// ServerStatus is the lifecycle state of a Server.
type ServerStatus string

const (
	ServerNew      ServerStatus = "NEW"
	ServerInWork   ServerStatus = "IN_WORK"
	ServerDone     ServerStatus = "DONE"
	ServerDefect   ServerStatus = "DEFECT"
	ServerArchived ServerStatus = "ARCHIVED"
)

// ValidServerStatuses is the set of allowed server status values.
var ValidServerStatuses = map[ServerStatus]bool{
	ServerNew:      true,
	ServerInWork:   true,
	ServerDone:     true,
	ServerDefect:   true,
	ServerArchived: true,
}

// serverStatusTransitions holds the moves reachable through setStatus.
// take, release, archive and unarchive are separate operations.
var serverStatusTransitions = map[ServerStatus][]ServerStatus{
	ServerInWork: {ServerDone, ServerDefect},
	ServerDefect: {ServerInWork},
}

// CanSetServerStatus reports whether setStatus may move a server from one
// status to another.
func CanSetServerStatus(from, to ServerStatus) bool {
	for _, s := range serverStatusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DefectStatus is the repair state of a DefectRecord.
type DefectStatus string

const (
	DefectNew          DefectStatus = "NEW"
	DefectDiagnosing   DefectStatus = "DIAGNOSING"
	DefectWaitingParts DefectStatus = "WAITING_PARTS"
	DefectRepairing    DefectStatus = "REPAIRING"
	DefectSentToYadro  DefectStatus = "SENT_TO_YADRO"
	DefectReturned     DefectStatus = "RETURNED"
	DefectResolved     DefectStatus = "RESOLVED"
	DefectRepeated     DefectStatus = "REPEATED"
	DefectClosed       DefectStatus = "CLOSED"
)

// ValidDefectStatuses is the set of allowed defect status values.
var ValidDefectStatuses = map[DefectStatus]bool{
	DefectNew:          true,
	DefectDiagnosing:   true,
	DefectWaitingParts: true,
	DefectRepairing:    true,
	DefectSentToYadro:  true,
	DefectReturned:     true,
	DefectResolved:     true,
	DefectRepeated:     true,
	DefectClosed:       true,
}

var defectTransitions = map[DefectStatus][]DefectStatus{
	DefectNew:          {DefectDiagnosing, DefectSentToYadro},
	DefectDiagnosing:   {DefectWaitingParts, DefectRepairing, DefectSentToYadro, DefectResolved},
	DefectWaitingParts: {DefectRepairing, DefectSentToYadro},
	DefectRepairing:    {DefectWaitingParts, DefectSentToYadro, DefectResolved},
	DefectSentToYadro:  {DefectReturned},
	DefectReturned:     {DefectRepairing, DefectResolved},
	DefectRepeated:     {DefectDiagnosing},
}

// CanTransitionDefect reports whether a defect record may move from one
// status to another. REPEATED and CLOSED are reachable from every status
// except CLOSED.
func CanTransitionDefect(from, to DefectStatus) bool {
	if from == DefectClosed {
		return false
	}
	if to == DefectRepeated || to == DefectClosed {
		return true
	}
	for _, s := range defectTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether the defect still needs work.
func (s DefectStatus) IsOpen() bool {
	return s != DefectResolved && s != DefectClosed
}

// RepairPartType classifies the component a defect is attributed to.
type RepairPartType string

// ValidRepairPartTypes is the set of allowed part types.
var ValidRepairPartTypes = map[RepairPartType]bool{
	"CPU":         true,
	"RAM":         true,
	"HDD":         true,
	"SSD":         true,
	"NVME":        true,
	"MOTHERBOARD": true,
	"GPU":         true,
	"NIC":         true,
	"RAID":        true,
	"PSU":         true,
	"FAN":         true,
	"BACKPLANE":   true,
	"BMC":         true,
	"CABLE":       true,
	"OTHER":       true,
}

// BatchStatus is the state of a Batch.
type BatchStatus string

const (
	BatchActive    BatchStatus = "ACTIVE"
	BatchCompleted BatchStatus = "COMPLETED"
)

// ValidBatchStatuses is the set of allowed batch status values.
var ValidBatchStatuses = map[BatchStatus]bool{
	BatchActive:    true,
	BatchCompleted: true,
}

// RackStatus is the operational state of a Rack.
type RackStatus string

const (
	RackActive         RackStatus = "ACTIVE"
	RackMaintenance    RackStatus = "MAINTENANCE"
	RackDecommissioned RackStatus = "DECOMMISSIONED"
)

// ValidRackStatuses is the set of allowed rack status values.
var ValidRackStatuses = map[RackStatus]bool{
	RackActive:         true,
	RackMaintenance:    true,
	RackDecommissioned: true,
}

// UnitState is derived from a RackUnit's server and install fields.
type UnitState string

const (
	UnitEmpty  UnitState = "EMPTY"
	UnitPlaced UnitState = "PLACED"
	UnitInWork UnitState = "IN_WORK"
)

// ClusterStatus is the assembly state of a Cluster.
type ClusterStatus string

const (
	ClusterForming  ClusterStatus = "FORMING"
	ClusterReady    ClusterStatus = "READY"
	ClusterShipped  ClusterStatus = "SHIPPED"
	ClusterDeployed ClusterStatus = "DEPLOYED"
)

var clusterTransitions = map[ClusterStatus][]ClusterStatus{
	ClusterForming: {ClusterReady},
	ClusterReady:   {ClusterForming, ClusterShipped},
	ClusterShipped: {ClusterDeployed},
}

// CanTransitionCluster reports whether a cluster may move between statuses.
func CanTransitionCluster(from, to ClusterStatus) bool {
	for _, s := range clusterTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsActive reports whether membership in a cluster with this status blocks
// the server from joining another cluster.
func (s ClusterStatus) IsActive() bool {
	return s != ClusterDeployed
}

// ServerRole is a server's function inside a cluster.
type ServerRole string

// ValidServerRoles is the set of allowed cluster roles.
var ValidServerRoles = map[ServerRole]bool{
	"MASTER":  true,
	"WORKER":  true,
	"STORAGE": true,
	"GATEWAY": true,
}

// ShipmentStatus is the delivery state of a Shipment.
type ShipmentStatus string

const (
	ShipmentForming   ShipmentStatus = "FORMING"
	ShipmentReady     ShipmentStatus = "READY"
	ShipmentShipped   ShipmentStatus = "SHIPPED"
	ShipmentInTransit ShipmentStatus = "IN_TRANSIT"
	ShipmentDelivered ShipmentStatus = "DELIVERED"
	ShipmentAccepted  ShipmentStatus = "ACCEPTED"
)

var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentForming:   {ShipmentReady},
	ShipmentReady:     {ShipmentForming, ShipmentShipped},
	ShipmentShipped:   {ShipmentInTransit, ShipmentDelivered},
	ShipmentInTransit: {ShipmentDelivered},
	ShipmentDelivered: {ShipmentAccepted},
}

// CanTransitionShipment reports whether a shipment may move between statuses.
func CanTransitionShipment(from, to ShipmentStatus) bool {
	for _, s := range shipmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EntityType names the kind of entity a history entry describes.
type EntityType string

const (
	EntityServer   EntityType = "SERVER"
	EntityBatch    EntityType = "BATCH"
	EntityRack     EntityType = "RACK"
	EntityCluster  EntityType = "CLUSTER"
	EntityShipment EntityType = "SHIPMENT"
	EntityDefect   EntityType = "DEFECT"
)

// ValidEntityTypes is the set of allowed entity types.
var ValidEntityTypes = map[EntityType]bool{
	EntityServer:   true,
	EntityBatch:    true,
	EntityRack:     true,
	EntityCluster:  true,
	EntityShipment: true,
	EntityDefect:   true,
}

// HistoryAction is the kind of event a history entry records.
type HistoryAction string

const (
	ActionCreated            HistoryAction = "CREATED"
	ActionTaken              HistoryAction = "TAKEN"
	ActionReleased           HistoryAction = "RELEASED"
	ActionStatusChanged      HistoryAction = "STATUS_CHANGED"
	ActionNoteAdded          HistoryAction = "NOTE_ADDED"
	ActionUpdated            HistoryAction = "UPDATED"
	ActionBatchAssigned      HistoryAction = "BATCH_ASSIGNED"
	ActionBatchRemoved       HistoryAction = "BATCH_REMOVED"
	ActionDeleted            HistoryAction = "DELETED"
	ActionArchived           HistoryAction = "ARCHIVED"
	ActionUnarchived         HistoryAction = "UNARCHIVED"
	ActionSerialAssigned     HistoryAction = "SERIAL_ASSIGNED"
	ActionNetworkUpdated     HistoryAction = "NETWORK_UPDATED"
	ActionPlaced             HistoryAction = "PLACED_IN_RACK"
	ActionInstalled          HistoryAction = "INSTALLED"
	ActionRemovedFromRack    HistoryAction = "REMOVED_FROM_RACK"
	ActionMoved              HistoryAction = "MOVED"
	ActionAddedToCluster     HistoryAction = "ADDED_TO_CLUSTER"
	ActionRemovedFromCluster HistoryAction = "REMOVED_FROM_CLUSTER"
	ActionSentToYadro        HistoryAction = "SENT_TO_YADRO"
	ActionReturnedFromYadro  HistoryAction = "RETURNED_FROM_YADRO"
	ActionResolved           HistoryAction = "RESOLVED"
	ActionMarkedRepeated     HistoryAction = "MARKED_REPEATED"
	ActionClosed             HistoryAction = "CLOSED"
	ActionFileUploaded       HistoryAction = "FILE_UPLOADED"
	ActionFileDeleted        HistoryAction = "FILE_DELETED"
	ActionChecklistCompleted HistoryAction = "CHECKLIST_COMPLETED"
	ActionChecklistReopened  HistoryAction = "CHECKLIST_REOPENED"
)

// ChecklistGroup is the stage of work a checklist template belongs to.
type ChecklistGroup string

const (
	GroupPreparation ChecklistGroup = "PREPARATION"
	GroupVisual      ChecklistGroup = "VISUAL"
	GroupAssembly    ChecklistGroup = "ASSEMBLY"
	GroupTesting     ChecklistGroup = "TESTING"
	GroupQCPrimary   ChecklistGroup = "QC_PRIMARY"
	GroupBurnIn      ChecklistGroup = "BURN_IN"
	GroupQCFinal     ChecklistGroup = "QC_FINAL"
	GroupFinal       ChecklistGroup = "FINAL"
)

// ValidChecklistGroups is the set of allowed checklist groups.
var ValidChecklistGroups = map[ChecklistGroup]bool{
	GroupPreparation: true,
	GroupVisual:      true,
	GroupAssembly:    true,
	GroupTesting:     true,
	GroupQCPrimary:   true,
	GroupBurnIn:      true,
	GroupQCFinal:     true,
	GroupFinal:       true,
}
