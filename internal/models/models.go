package models

import "time"

// Server is a physical server unit moving through the provisioning pipeline.
type Server struct {
	ID              string       `json:"id"`
	SerialNumber    string       `json:"serial_number"`
	APKSerialNumber string       `json:"apk_serial_number"`
	IPAddress       string       `json:"ip_address"`
	Hostname        string       `json:"hostname"`
	MACAddress      string       `json:"mac_address"`
	Status          ServerStatus `json:"status"`
	AssignedToID    *int64       `json:"assigned_to_id,omitempty"`
	AssignedAt      *time.Time   `json:"assigned_at,omitempty"`
	BatchID         *string      `json:"batch_id,omitempty"`
	LeaseActive     bool         `json:"lease_active"`
	Notes           string       `json:"notes"`
	StatusChangedAt time.Time    `json:"status_changed_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	ArchivedAt      *time.Time   `json:"archived_at,omitempty"`
	ArchivedByID    *int64       `json:"archived_by_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Batch groups servers that arrived together.
type Batch struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Status        BatchStatus `json:"status"`
	ExpectedCount int         `json:"expected_count"`
	Notes         string      `json:"notes"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Rack is a physical rack with a fixed number of units.
type Rack struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Location   string     `json:"location"`
	TotalUnits int        `json:"total_units"`
	Status     RackStatus `json:"status"`
	Notes      string     `json:"notes"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Units      []RackUnit `json:"units,omitempty"`
}

// UnitData is the operator-entered network data recorded for a placed server.
type UnitData struct {
	Hostname       string `json:"hostname"`
	MgmtIPAddress  string `json:"mgmt_ip_address"`
	MgmtMACAddress string `json:"mgmt_mac_address"`
	DataIPAddress  string `json:"data_ip_address"`
	DataMACAddress string `json:"data_mac_address"`
	Notes          string `json:"notes"`
}

// RackUnit is one slot of a rack.
type RackUnit struct {
	ID            string     `json:"id"`
	RackID        string     `json:"rack_id"`
	UnitNumber    int        `json:"unit_number"`
	ServerID      *string    `json:"server_id,omitempty"`
	UnitData
	PlacedAt      *time.Time `json:"placed_at,omitempty"`
	PlacedByID    *int64     `json:"placed_by_id,omitempty"`
	InstalledAt   *time.Time `json:"installed_at,omitempty"`
	InstalledByID *int64     `json:"installed_by_id,omitempty"`
	State         UnitState  `json:"state"`
}

// DeriveState returns the unit state implied by its server and install fields.
func (u *RackUnit) DeriveState() UnitState {
	switch {
	case u.ServerID == nil:
		return UnitEmpty
	case u.InstalledAt == nil:
		return UnitPlaced
	default:
		return UnitInWork
	}
}

// Shipment is an outbound delivery of clusters.
type Shipment struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	DestinationCity string         `json:"destination_city"`
	Status          ShipmentStatus `json:"status"`
	ExpectedCount   int            `json:"expected_count"`
	ShippedAt       *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
	AcceptedAt      *time.Time     `json:"accepted_at,omitempty"`
	Notes           string         `json:"notes"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Cluster is a logical grouping of servers assembled for delivery.
type Cluster struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Status          ClusterStatus   `json:"status"`
	ShipmentID      *string         `json:"shipment_id,omitempty"`
	ExpectedCount   int             `json:"expected_count"`
	NextOrderNumber int             `json:"-"`
	Notes           string          `json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Servers         []ClusterServer `json:"servers,omitempty"`
}

// ClusterServer is a server's membership in a cluster.
type ClusterServer struct {
	ID               string     `json:"id"`
	ClusterID        string     `json:"cluster_id"`
	ServerID         string     `json:"server_id"`
	Role             ServerRole `json:"role"`
	ClusterHostname  string     `json:"cluster_hostname"`
	ClusterIPAddress string     `json:"cluster_ip_address"`
	OrderNumber      int        `json:"order_number"`
	AddedAt          time.Time  `json:"added_at"`
	AddedByID        *int64     `json:"added_by_id,omitempty"`
}

// DefectRecord tracks the repair of one hardware failure.
type DefectRecord struct {
	ID                         string         `json:"id"`
	ServerID                   *string        `json:"server_id,omitempty"`
	ServerSerial               string         `json:"server_serial"`
	Status                     DefectStatus   `json:"status"`
	RepairPartType             RepairPartType `json:"repair_part_type"`
	ProblemDescription         string         `json:"problem_description"`
	DefectPartSerialYadro      string         `json:"defect_part_serial_yadro"`
	DefectPartSerialManuf      string         `json:"defect_part_serial_manuf"`
	ReplacementPartSerialYadro string         `json:"replacement_part_serial_yadro"`
	ReplacementPartSerialManuf string         `json:"replacement_part_serial_manuf"`
	IsRepeatedDefect           bool           `json:"is_repeated_defect"`
	RepeatedDefectReason       string         `json:"repeated_defect_reason"`
	RepeatedDefectDate         *time.Time     `json:"repeated_defect_date,omitempty"`
	RepeatCandidateOf          *string        `json:"repeat_candidate_of,omitempty"`
	YadroTicketNumber          string         `json:"yadro_ticket_number"`
	SentToYadroAt              *time.Time     `json:"sent_to_yadro_at,omitempty"`
	ReturnedFromYadroAt        *time.Time     `json:"returned_from_yadro_at,omitempty"`
	SubstituteServerSerial     string         `json:"substitute_server_serial"`
	Resolution                 string         `json:"resolution"`
	ResolvedAt                 *time.Time     `json:"resolved_at,omitempty"`
	TotalDowntimeMinutes       *int64         `json:"total_downtime_minutes,omitempty"`
	DetectedAt                 time.Time      `json:"detected_at"`
	DetectedByID               *int64         `json:"detected_by_id,omitempty"`
	Notes                      string         `json:"notes"`
	CreatedAt                  time.Time      `json:"created_at"`
	UpdatedAt                  time.Time      `json:"updated_at"`
	Files                      []DefectFile   `json:"files,omitempty"`
}

// DefectFile is attachment metadata. The bytes live in the attachment store
// under FileRef.
type DefectFile struct {
	ID           string    `json:"id"`
	DefectID     string    `json:"defect_id"`
	FileRef      string    `json:"file_ref"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploadedByID *int64    `json:"uploaded_by_id,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// ChecklistTemplate is one stage of the diagnostic work done on a server
// while it is IN_WORK. Active templates are instantiated for every new
// server, in SortOrder.
type ChecklistTemplate struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	GroupCode        ChecklistGroup `json:"group_code"`
	SortOrder        int            `json:"sort_order"`
	IsRequired       bool           `json:"is_required"`
	RequiresFile     bool           `json:"requires_file"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	FileCode         string         `json:"file_code"`
	IsActive         bool           `json:"is_active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ChecklistItem is the progress of one server on one template.
type ChecklistItem struct {
	ID            string             `json:"id"`
	ServerID      string             `json:"server_id"`
	TemplateID    string             `json:"template_id"`
	Completed     bool               `json:"completed"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	CompletedByID *int64             `json:"completed_by_id,omitempty"`
	Notes         string             `json:"notes"`
	CreatedAt     time.Time          `json:"created_at"`
	Template      *ChecklistTemplate `json:"template,omitempty"`
	Files         []ChecklistFile    `json:"files,omitempty"`
}

// ChecklistFile is evidence attached to a checklist item. The bytes live
// in the attachment store under FileRef.
type ChecklistFile struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"item_id"`
	FileRef      string    `json:"file_ref"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploadedByID *int64    `json:"uploaded_by_id,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// HistoryEntry is one immutable record in the history ledger.
type HistoryEntry struct {
	ID              int64          `json:"id"`
	EntityType      EntityType     `json:"entity_type"`
	EntityID        string         `json:"entity_id"`
	ServerID        *string        `json:"server_id,omitempty"`
	Action          HistoryAction  `json:"action"`
	FromStatus      string         `json:"from_status,omitempty"`
	ToStatus        string         `json:"to_status,omitempty"`
	ActorID         *int64         `json:"actor_id,omitempty"`
	DurationSeconds *int64         `json:"duration_seconds,omitempty"`
	Comment         string         `json:"comment,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// HistoryFilter narrows a ledger listing. Zero values mean "any".
type HistoryFilter struct {
	EntityType EntityType
	EntityID   string
	ServerID   string
	Action     HistoryAction
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}
