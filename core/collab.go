package core

import (
	"time"

	"github.com/google/uuid"
)

// CollaborationContext bounds one tree of recursive delegations. It is a
// value type passed by copy: a delegation step never mutates its parent but
// derives a child via Child, so sibling branches cannot share recursion
// state. The deadline is fixed once at the root and inherited unmodified.
type CollaborationContext struct {
	RequestID string    `json:"request_id"`
	Depth     int       `json:"depth"`
	MaxDepth  int       `json:"max_depth"`
	Visited   []string  `json:"visited"` // Append-only set of peer ids already delegated to
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
}

// NewCollaborationContext creates a root context with depth 0, an empty
// visited set and a wall-clock deadline ttl from now.
func NewCollaborationContext(maxDepth int, ttl time.Duration) CollaborationContext {
	now := time.Now()
	return CollaborationContext{
		RequestID: uuid.NewString(),
		Depth:     0,
		MaxDepth:  maxDepth,
		StartedAt: now,
		Deadline:  now.Add(ttl),
	}
}

// HasVisited reports whether the peer id is already in the visited set.
func (c CollaborationContext) HasVisited(peerID string) bool {
	for _, id := range c.Visited {
		if id == peerID {
			return true
		}
	}
	return false
}

// Expired reports whether the shared deadline has elapsed.
func (c CollaborationContext) Expired() bool {
	return !c.Deadline.IsZero() && time.Now().After(c.Deadline)
}

// Remaining returns the time left until the shared deadline (0 if expired).
func (c CollaborationContext) Remaining() time.Duration {
	if c.Deadline.IsZero() {
		return 0
	}
	if d := time.Until(c.Deadline); d > 0 {
		return d
	}
	return 0
}

// CanDelegateTo fails closed: it returns a *DelegationDeniedError when the
// depth budget is spent, the peer was already visited anywhere in this tree,
// or the shared deadline has elapsed. A nil return permits the delegation.
func (c CollaborationContext) CanDelegateTo(peerID string) error {
	if c.Depth >= c.MaxDepth {
		return &DelegationDeniedError{Peer: peerID, Reason: DeniedDepth}
	}
	if c.HasVisited(peerID) {
		return &DelegationDeniedError{Peer: peerID, Reason: DeniedCycle}
	}
	if c.Expired() {
		return &DelegationDeniedError{Peer: peerID, Reason: DeniedDeadline}
	}
	return nil
}

// Child derives the context handed to peerID: depth+1, visited set extended
// by peerID, same request id and deadline. The visited slice is copied so the
// parent is never aliased.
func (c CollaborationContext) Child(peerID string) CollaborationContext {
	visited := make([]string, 0, len(c.Visited)+1)
	visited = append(visited, c.Visited...)
	visited = append(visited, peerID)
	return CollaborationContext{
		RequestID: c.RequestID,
		Depth:     c.Depth + 1,
		MaxDepth:  c.MaxDepth,
		Visited:   visited,
		StartedAt: c.StartedAt,
		Deadline:  c.Deadline,
	}
}
