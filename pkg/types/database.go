package types

// Database is the top-level namespace for collection groups. It is visible
// to clients only once its creation transaction has finalized.
type Database struct {
	Name       DatabaseName `json:"name"`
	IsBuilding bool         `json:"isBuilding,omitempty"`
	Groups     []CollectionGroupID `json:"groups"`
}

// Visible reports whether the database is done building.
func (d Database) Visible() bool { return !d.IsBuilding }

// MoveShardJob is the Target/ToDo/<jobId> body for a moveShard job.
type MoveShardJob struct {
	Type        string       `json:"type"`
	Database    DatabaseName `json:"database"`
	Collection  CollectionID `json:"collection"`
	Shard       string       `json:"shard"`
	FromServer  ServerID     `json:"fromServer"`
	ToServer    ServerID     `json:"toServer"`
	JobID       JobID        `json:"jobId"`
	TimeCreated string       `json:"timeCreated"`
	Creator     ServerID     `json:"creator"`
	IsLeader    bool         `json:"isLeader"`
}

const MoveShardJobType = "moveShard"
