package core

import "time"

// PeerStatus is the directory-tracked health state of a peer agent.
type PeerStatus string

const (
	// PeerStatusActive marks a peer with a recent heartbeat, ready for work.
	PeerStatusActive PeerStatus = "active"
	// PeerStatusBusy marks a peer that is reachable but loaded.
	PeerStatusBusy PeerStatus = "busy"
	// PeerStatusUnhealthy marks a peer whose heartbeat has gone silent.
	PeerStatusUnhealthy PeerStatus = "unhealthy"
	// PeerStatusOffline marks a peer that announced shutdown.
	PeerStatusOffline PeerStatus = "offline"
)

// PeerRecord describes one known peer agent. Created on registration,
// refreshed by heartbeats and observations, removed on deregistration.
type PeerRecord struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Capabilities  []string   `json:"capabilities"` // Capability tags advertised by the peer
	Endpoint      string     `json:"endpoint"`
	Status        PeerStatus `json:"status"`
	RegisteredAt  time.Time  `json:"registered_at"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	LatencyMs     float64    `json:"latency_ms"`   // Rolling average round-trip latency
	SuccessRate   float64    `json:"success_rate"` // Rolling success rate in [0,1]
}

// HasCapability reports whether the peer advertises the given tag.
func (p PeerRecord) HasCapability(tag string) bool {
	for _, c := range p.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}
