package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamwimham/neuroflow/capability"
	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/directory"
)

func newPeerExecutor(dir *directory.Directory, caller PeerCaller) *PeerExecutor {
	return NewPeerExecutor("agent-a", dir, func(o *ExecutorOptions) {
		o.Resilience = fastResilience()
		o.Caller = caller
	})
}

func TestPeerExecutorDelegatesToDiscoveredPeer(t *testing.T) {
	dir := directory.New()
	require.True(t, dir.Register(core.PeerRecord{ID: "peer-b", Endpoint: "http://b.local", Capabilities: []string{"translate"}}))

	caller := &stubCaller{respond: func(req AssistRequest) (AssistResponse, error) {
		return AssistResponse{RequestID: req.RequestID, Success: true, Result: "bonjour", AgentID: "peer-b"}, nil
	}}
	ex := newPeerExecutor(dir, caller)

	def := core.CapabilityDefinition{Name: "translate", Backend: core.BackendPeerAgent}
	inv := core.NewCapabilityInvocation("translate", map[string]any{"task": "translate hello to french"}, 0)

	result, err := ex.Execute(context.Background(), def, inv)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", result)

	reqs := caller.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "translate hello to french", reqs[0].Task)
	// The delegating agent rides in the visited set so the peer cannot call back.
	assert.Contains(t, reqs[0].VisitedAgents, "agent-a")
	assert.Contains(t, reqs[0].VisitedAgents, "peer-b")
}

func TestPeerExecutorTriesNextCandidateOnFailure(t *testing.T) {
	dir := directory.New()
	require.True(t, dir.Register(core.PeerRecord{ID: "peer-b", Endpoint: "http://b.local", Capabilities: []string{"translate"}}))
	require.True(t, dir.Register(core.PeerRecord{ID: "peer-c", Endpoint: "http://c.local", Capabilities: []string{"translate"}}))

	caller := &stubCaller{respond: func(req AssistRequest) (AssistResponse, error) {
		if len(req.VisitedAgents) > 0 && req.VisitedAgents[len(req.VisitedAgents)-1] == "peer-b" {
			return AssistResponse{}, errors.New("peer-b down")
		}
		return AssistResponse{Success: true, Result: "hola", AgentID: "peer-c"}, nil
	}}
	ex := newPeerExecutor(dir, caller)

	def := core.CapabilityDefinition{Name: "translate", Backend: core.BackendPeerAgent}
	inv := core.NewCapabilityInvocation("translate", map[string]any{"task": "translate"}, 0)

	result, err := ex.Execute(context.Background(), def, inv)
	require.NoError(t, err)
	assert.Equal(t, "hola", result)
	assert.Len(t, caller.recorded(), 2)
}

func TestPeerExecutorNoCandidates(t *testing.T) {
	ex := newPeerExecutor(directory.New(), &stubCaller{})

	def := core.CapabilityDefinition{Name: "translate", Backend: core.BackendPeerAgent}
	inv := core.NewCapabilityInvocation("translate", map[string]any{"task": "translate"}, 0)

	_, err := ex.Execute(context.Background(), def, inv)
	require.Error(t, err)
	var capErr *core.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, core.CodeExecutionError, capErr.Code)
}

func TestPeerExecutorThroughCatalog(t *testing.T) {
	dir := directory.New()
	require.True(t, dir.Register(core.PeerRecord{ID: "peer-b", Endpoint: "http://b.local", Capabilities: []string{"summarize"}}))

	caller := &stubCaller{respond: func(req AssistRequest) (AssistResponse, error) {
		return AssistResponse{Success: true, Result: "a short summary", AgentID: "peer-b"}, nil
	}}

	catalog := capability.NewCatalog()
	catalog.RegisterBackend(core.BackendPeerAgent, newPeerExecutor(dir, caller))
	require.NoError(t, catalog.Register(core.CapabilityDefinition{
		Name:        "summarize",
		Description: "Summarize a document via a specialist peer",
		Backend:     core.BackendPeerAgent,
	}))

	inv := core.NewCapabilityInvocation("summarize", map[string]any{"task": "summarize this text"}, 0)
	outcome, err := catalog.Dispatch(context.Background(), inv)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "a short summary", outcome.Result)
}
