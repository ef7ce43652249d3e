// Package storage persists the relay state across restarts.
//
// It keeps:
//   - the poll cursor and the last delivered message (de-duplication)
//   - an append-only history of delivered status changes
//
// Storage is optional; with no driver the relay keeps state in memory only.
package storage
