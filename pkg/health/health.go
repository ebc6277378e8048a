// Package health builds the participants-health view every placement
// and supervision decision reads: the Supervision/Health subtree,
// classified into GOOD/BAD/FAILED per server.
//
// Nothing here probes a server directly; the agency's own supervision
// already does that and writes the result. This package keeps a
// local, lag-aware view of that tree and flags entries that have gone
// stale in this process's eyes even if the agency has not yet caught
// up, driven by heartbeat age rather than consecutive probe failures.
package health

import (
	"encoding/json"
	"time"

	"github.com/chronosdb/shardcoord/pkg/types"
)

const healthPrefix = "Supervision/Health"

// Config tunes how the view reconciles agency-reported status against
// local staleness.
type Config struct {
	// StaleAfter is how long a server's LastHeartbeatAcked can lag
	// behind now before the view downgrades it to FAILED locally, even
	// if the agency still reports GOOD or BAD. Zero disables the
	// override and trusts the agency's Status verbatim.
	StaleAfter time.Duration
}

// DefaultConfig returns a Config matching the agency supervision's own
// failure timeout, so the local override rarely fires ahead of it.
func DefaultConfig() Config {
	return Config{StaleAfter: 60 * time.Second}
}

// View derives types.ClusterHealth from a raw Supervision/Health
// subtree read.
type View struct {
	cfg Config
}

// NewView builds a View with the given Config.
func NewView(cfg Config) *View {
	return &View{cfg: cfg}
}

// Build decodes entries (as returned by an agency prefix read rooted
// at "Supervision/Health") into a ClusterHealth, applying the
// staleness override.
func (v *View) Build(entries map[string]json.RawMessage, now time.Time) types.ClusterHealth {
	servers := make(map[types.ServerID]types.ServerHealth, len(entries))

	for path, raw := range entries {
		id, ok := serverIDFromPath(path)
		if !ok {
			continue
		}
		var sh types.ServerHealth
		if err := json.Unmarshal(raw, &sh); err != nil {
			continue
		}
		sh.ID = id
		servers[id] = v.applyStaleness(sh, now)
	}

	return types.ClusterHealth{Servers: servers}
}

func (v *View) applyStaleness(sh types.ServerHealth, now time.Time) types.ServerHealth {
	if v.cfg.StaleAfter <= 0 || sh.LastHeartbeatAcked.IsZero() {
		return sh
	}
	if sh.Status != types.ServerStatusGood && sh.Status != types.ServerStatusBad {
		return sh
	}
	if now.Sub(sh.LastHeartbeatAcked) > v.cfg.StaleAfter {
		sh.Status = types.ServerStatusFailed
	}
	return sh
}

// serverIDFromPath extracts the trailing path element of a
// "Supervision/Health/<id>" key.
func serverIDFromPath(path string) (types.ServerID, bool) {
	const prefix = healthPrefix + "/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return "", false
	}
	return types.ServerID(path[len(prefix):]), true
}
