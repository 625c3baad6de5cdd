// Package biz implements the chatbot's business logic.
//
// The package is split into focused components:
//   - Registry: per-category stores, pipelines, and availability, built once at startup
//   - Pipeline: embed, retrieve, and generate for one Ready category
//   - Fallback: deterministic canned answers when the pipeline cannot serve
//   - ConversationMemory: bounded per-session history
//   - QueryCache: Redis-backed answer cache
//   - Chatbot: the orchestrator tying the components together
package biz
