package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollaborationContext(t *testing.T) {
	cc := NewCollaborationContext(3, time.Minute)

	assert.NotEmpty(t, cc.RequestID)
	assert.Equal(t, 0, cc.Depth)
	assert.Equal(t, 3, cc.MaxDepth)
	assert.Empty(t, cc.Visited)
	assert.True(t, cc.Deadline.After(cc.StartedAt))
}

func TestCollaborationContextChild(t *testing.T) {
	root := NewCollaborationContext(3, time.Minute)

	child := root.Child("agent-b")
	grandchild := child.Child("agent-c")

	assert.Equal(t, root.Depth+1, child.Depth)
	assert.Equal(t, child.Depth+1, grandchild.Depth)
	assert.Equal(t, root.RequestID, grandchild.RequestID)
	assert.Equal(t, root.Deadline, grandchild.Deadline)

	// Child visited set is a strict superset of the parent's.
	assert.Equal(t, []string{"agent-b"}, child.Visited)
	assert.Equal(t, []string{"agent-b", "agent-c"}, grandchild.Visited)

	// Parent is never aliased by the child's visited slice.
	assert.Empty(t, root.Visited)
	assert.Equal(t, []string{"agent-b"}, child.Visited)
}

func TestCanDelegateToDepthExceeded(t *testing.T) {
	cc := NewCollaborationContext(2, time.Minute)
	cc = cc.Child("agent-b").Child("agent-c")

	err := cc.CanDelegateTo("agent-d")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelegationNotPermitted)

	var denied *DelegationDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, DeniedDepth, denied.Reason)
}

func TestCanDelegateToCycle(t *testing.T) {
	// a -> b -> c, then c attempts to loop back to a.
	cc := NewCollaborationContext(5, time.Minute)
	cc.Visited = append(cc.Visited, "agent-a")
	cc = cc.Child("agent-b").Child("agent-c")

	err := cc.CanDelegateTo("agent-a")
	require.Error(t, err)

	var denied *DelegationDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, DeniedCycle, denied.Reason)
	assert.Equal(t, "agent-a", denied.Peer)
}

func TestCanDelegateToDeadlineElapsed(t *testing.T) {
	cc := NewCollaborationContext(5, -time.Second)

	err := cc.CanDelegateTo("agent-b")
	require.Error(t, err)

	var denied *DelegationDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, DeniedDeadline, denied.Reason)
	assert.Zero(t, cc.Remaining())
}

func TestCanDelegateToPermitted(t *testing.T) {
	cc := NewCollaborationContext(2, time.Minute)

	assert.NoError(t, cc.CanDelegateTo("agent-b"))
	assert.Positive(t, cc.Remaining())
}
