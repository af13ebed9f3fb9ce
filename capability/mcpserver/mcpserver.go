// Package mcpserver implements the remote-server capability backend on top of
// the official MCP Go SDK. One Executor owns one client session to an MCP
// server (spawned subprocess or SSE endpoint); the server's tools are surfaced
// as CapabilityDefinitions and invocations are forwarded as tool calls.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lamwimham/neuroflow/core"
)

// Executor communicates with an MCP server and implements the catalog's
// remote-server backend.
type Executor struct {
	client  *mcp.Client
	session *mcp.ClientSession
}

// New spawns an MCP server process and returns a connected executor. The SDK
// handles initialization automatically during Connect.
func New(ctx context.Context, command string, args ...string) (*Executor, error) {
	transport := &mcp.CommandTransport{
		Command: exec.Command(command, args...), //nolint:gosec // command is caller-provided by design
	}
	return newFromTransport(ctx, transport)
}

// NewSSE connects to an SSE-based MCP server at the given URL.
func NewSSE(ctx context.Context, url string) (*Executor, error) {
	transport := &mcp.SSEClientTransport{Endpoint: url}
	return newFromTransport(ctx, transport)
}

// newFromTransport creates an Executor using the given transport. Used by New
// and useful for testing with InMemoryTransport.
func newFromTransport(ctx context.Context, transport mcp.Transport) (*Executor, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "neuroflow",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: connect: %w", err)
	}

	return &Executor{client: client, session: session}, nil
}

// Capabilities lists the server's tools as remote-server capability
// definitions ready for catalog registration.
func (e *Executor) Capabilities(ctx context.Context) ([]core.CapabilityDefinition, error) {
	result, err := e.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: list tools: %w", err)
	}

	defs := make([]core.CapabilityDefinition, 0, len(result.Tools))
	for _, sdkTool := range result.Tools {
		def, err := definitionFromSDKTool(sdkTool)
		if err != nil {
			return nil, fmt.Errorf("mcpserver: convert tool %q: %w", sdkTool.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Execute implements the catalog Executor interface by forwarding the
// invocation as a tool call on the server session.
func (e *Executor) Execute(ctx context.Context, def core.CapabilityDefinition, inv core.CapabilityInvocation) (any, error) {
	result, err := e.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      inv.Name,
		Arguments: inv.Arguments,
	})
	if err != nil {
		return nil, &core.CapabilityError{
			Capability: inv.Name,
			Message:    fmt.Sprintf("call tool: %v", err),
			Code:       core.CodeExecutionError,
		}
	}

	text := extractText(result)
	if result.IsError {
		return nil, &core.CapabilityError{
			Capability: inv.Name,
			Message:    text,
			Code:       core.CodeExecutionError,
		}
	}
	return text, nil
}

// Close terminates the session and releases resources. The MCP Go SDK handles
// subprocess lifecycle automatically on session close.
func (e *Executor) Close() error {
	return e.session.Close()
}

// definitionFromSDKTool converts an SDK *mcp.Tool into a CapabilityDefinition
// by round-tripping the input schema through JSON.
func definitionFromSDKTool(sdkTool *mcp.Tool) (core.CapabilityDefinition, error) {
	schemaBytes, err := json.Marshal(sdkTool.InputSchema)
	if err != nil {
		return core.CapabilityDefinition{}, fmt.Errorf("marshal input schema: %w", err)
	}

	var params map[string]any
	if err := json.Unmarshal(schemaBytes, &params); err != nil {
		return core.CapabilityDefinition{}, fmt.Errorf("unmarshal input schema: %w", err)
	}

	return core.CapabilityDefinition{
		Name:        sdkTool.Name,
		Description: sdkTool.Description,
		Backend:     core.BackendRemoteServer,
		Parameters:  params,
	}, nil
}

// extractText joins all TextContent items from a CallToolResult with newlines.
func extractText(result *mcp.CallToolResult) string {
	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}
