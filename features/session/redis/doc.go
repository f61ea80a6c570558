// Package redis provides a Redis-backed implementation of workflow.Store.
// Session records are stored as JSON strings under prefixed keys so the same
// Redis connection that backs Pulse streams can also hold session state.
package redis
