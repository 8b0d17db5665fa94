// Package engine implements the intent confirmation state machine at the heart
// of the assistant. It owns per-user conversation history and the registry of
// pending state-changing actions, routes classified intents to an immediate
// reply, a read-only call, or a two-phase confirm/execute flow, and folds
// executor results back into the conversation.
package engine
