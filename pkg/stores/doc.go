// Package stores provides the persistence layer for stacklift.
//
// SQLiteStore keeps the last-applied resource state, run history, and run
// events in a single SQLite database file. The schema is managed with
// embedded golang-migrate migrations and the store satisfies
// engine.StateStore.
package stores
