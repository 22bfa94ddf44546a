// Package history persists device state snapshots to the local SQLite
// store.
//
// Every accepted state change (from polling or from a command round
// trip) is recorded as a JSON snapshot with its source, giving a local
// audit trail that survives cloud outages. Old rows are pruned on a
// retention window; the store is a trail, not a time series database.
package history
