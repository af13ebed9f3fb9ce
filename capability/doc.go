// Package capability implements the catalog & dispatcher subsystem: a
// registry of schema-described operations the model may request, routed to
// pluggable backend executors (in-process functions, sandboxed runners,
// remote MCP servers, peer agents).
//
// The catalog owns immutable CapabilityDefinitions and rejects duplicate
// names. Dispatch resolves name -> definition -> backend executor, validates
// arguments, applies the invocation timeout and converts every execution
// failure into a non-success CapabilityOutcome so a single failing capability
// can never abort the surrounding turn loop.
package capability
