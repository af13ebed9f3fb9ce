// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language / reasoning models inside NeuroFlow.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize the capability schema handed to function-calling APIs
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (orchestrator, coordinator) remain decoupled from
// vendor SDKs.
package model
