package collab

import (
	"time"

	"github.com/lamwimham/neuroflow/core"
)

// AssistRequest is the JSON body of POST /assist. The delegation bounds
// (depth, visited set, remaining time) ride along so the receiving agent
// enforces the same limits transitively.
type AssistRequest struct {
	RequestID              string         `json:"requestId"`
	Task                   string         `json:"task"`
	Context                map[string]any `json:"context,omitempty"` // free-form supporting information
	RequiredCapabilityTags []string       `json:"requiredCapabilityTags,omitempty"`
	PreferredPeerIDs       []string       `json:"preferredPeerIds,omitempty"`
	TimeoutMs              int64          `json:"timeoutMs,omitempty"`
	MaxDepth               int            `json:"maxDepth"`
	CurrentDepth           int            `json:"currentDepth"`
	VisitedAgents          []string       `json:"visitedAgents,omitempty"`
}

// NewAssistRequest serializes a child collaboration context onto the wire.
// TimeoutMs carries the remaining root-deadline budget.
func NewAssistRequest(task string, cc core.CollaborationContext) AssistRequest {
	return AssistRequest{
		RequestID:     cc.RequestID,
		Task:          task,
		TimeoutMs:     cc.Remaining().Milliseconds(),
		MaxDepth:      cc.MaxDepth,
		CurrentDepth:  cc.Depth,
		VisitedAgents: cc.Visited,
	}
}

// CollaborationContext reconstructs the delegation bounds on the receiving
// side. The deadline is re-anchored to local wall clock from TimeoutMs.
func (r AssistRequest) CollaborationContext() core.CollaborationContext {
	now := time.Now()
	return core.CollaborationContext{
		RequestID: r.RequestID,
		Depth:     r.CurrentDepth,
		MaxDepth:  r.MaxDepth,
		Visited:   r.VisitedAgents,
		StartedAt: now,
		Deadline:  now.Add(time.Duration(r.TimeoutMs) * time.Millisecond),
	}
}

// AssistResponse is the JSON body answering one assist request.
type AssistResponse struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
	AgentID   string `json:"agentId"`
}

// Heartbeat is the JSON body of POST /registry/heartbeat.
type Heartbeat struct {
	SenderID    string  `json:"senderId"`
	Status      string  `json:"status"`
	LatencyMs   float64 `json:"latencyMs,omitempty"`
	SuccessRate float64 `json:"successRate,omitempty"`
}

// Registration is the JSON body of POST /registry/register; it mirrors the
// advertisable subset of a PeerRecord.
type Registration struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Status       string   `json:"status,omitempty"`
}

// PeerRecord converts the registration into a directory record.
func (r Registration) PeerRecord() core.PeerRecord {
	return core.PeerRecord{
		ID:           r.ID,
		Name:         r.Name,
		Capabilities: r.Capabilities,
		Endpoint:     r.Endpoint,
		Status:       core.PeerStatus(r.Status),
	}
}
