// Package history keeps a local SQLite mirror of conversation transcripts.
//
// The gateway owns the canonical conversation state; this store exists so
// `ember history` works offline and so the chat loop can show recent context
// without a round trip. Entries are append-only.
package history
