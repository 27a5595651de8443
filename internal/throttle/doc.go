// Package throttle gates the publish step. It bounds successful publishes per
// UTC day and enforces a randomized spacing between consecutive publishes so
// the channel does not post on a fixed cadence.
//
// The throttle only keeps counters; the durable source of truth is the job
// store's activity log, which the coordinator uses to Seed a fresh throttle
// after a restart.
package throttle
