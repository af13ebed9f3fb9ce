// Package core provides the foundational domain types shared by every layer
// of NeuroFlow. It defines:
//
//   - Content / Part (role-tagged conversation segments incl. function calls)
//   - CapabilityDefinition / Invocation / Outcome (the dispatch data model)
//   - ConversationState (append-only per-task history)
//   - CollaborationContext (depth / cycle / deadline bounds for delegation)
//   - PeerRecord (directory entries for known peer agents)
//   - The error taxonomy (configuration, capability, task and delegation errors)
//
// The package intentionally keeps implementation concerns (catalogs,
// orchestration, transports, registries) out of scope so the higher layers can
// depend on it without cycles.
package core
