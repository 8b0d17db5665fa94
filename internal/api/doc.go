// Package api exposes the REST surface of the assistant: chat and
// confirmation endpoints backed by the intent engine, conversation history
// management, pending-action listing, and a health probe.
package api
