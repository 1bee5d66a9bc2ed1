// Package stores persists the history of make runs in SQLite. Each run keeps
// its summary and the final status and digest of every node, so past builds
// can be listed and a single target's history inspected.
package stores
