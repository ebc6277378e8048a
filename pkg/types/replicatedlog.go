package types

// LogConfig is the write concern / replication config of a replicated log,
// shared by Target and Plan.
type LogConfig struct {
	WriteConcern      int  `json:"writeConcern"`
	ReplicationFactor int  `json:"replicationFactor"`
	WaitForSync       bool `json:"waitForSync"`
}

// Equal reports field-wise equality. A distinct method instead of relying on
// == because LogConfig may grow pointer fields.
func (c LogConfig) Equal(o LogConfig) bool {
	return c.WriteConcern == o.WriteConcern &&
		c.ReplicationFactor == o.ReplicationFactor &&
		c.WaitForSync == o.WaitForSync
}

// LogTargetParticipant is one entry in a log's target participant set.
type LogTargetParticipant struct {
	Server   ServerID `json:"server"`
	Excluded bool     `json:"excluded,omitempty"`
	Forced   bool     `json:"forced,omitempty"`
}

// LogTarget is the desired state of a replicated log, written to
// Target/ReplicatedLogs/<db>/<logId>.
type LogTarget struct {
	ID           LogID                  `json:"id"`
	Participants []LogTargetParticipant `json:"participants"`
	Leader       ServerID               `json:"leader,omitempty"`
	Config       LogConfig              `json:"config"`
	Version      uint64                 `json:"version"`
}

// ParticipantServers returns the plain server id list of the target
// participants, in the order they were added.
func (t LogTarget) ParticipantServers() ServerList {
	out := make(ServerList, 0, len(t.Participants))
	for _, p := range t.Participants {
		out = append(out, p.Server)
	}
	return out
}

// HasParticipant reports whether server is already a target participant.
func (t LogTarget) HasParticipant(server ServerID) bool {
	for _, p := range t.Participants {
		if p.Server == server {
			return true
		}
	}
	return false
}

// LogPlan is the committed state of a replicated log, written to
// Plan/ReplicatedLogs/<db>/<logId>.
type LogPlan struct {
	ID     LogID     `json:"id"`
	Term   uint64    `json:"term"`
	Leader ServerID  `json:"leader,omitempty"`
	Config LogConfig `json:"config"`
}

// LogCurrentSupervision is the supervision-observed state of a replicated
// log, written to Current/ReplicatedLogs/<db>/<logId>/supervision.
type LogCurrentSupervision struct {
	TargetVersion uint64 `json:"targetVersion"`
}

// Converged reports whether the log has caught up to the given target
// version.
func (s LogCurrentSupervision) Converged(targetVersion uint64) bool {
	return s.TargetVersion >= targetVersion
}
