// Package queue persists shortsfactory jobs in SQLite and owns the rules that
// drive their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, claim leases and every state transition. Transitions are validated
// against the fixed table in statemachine.go and applied with conditional
// updates, so two workers racing for the same job cannot both win: the loser
// receives ErrConflict. Each committed transition appends one entry to the
// activity log, which the schema protects against updates and deletes.
//
// Artifacts are write-once per pipeline pass. A job never carries an artifact
// produced by its current state or any later one; reprocess clears them all
// and sends the job back to NEW.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
