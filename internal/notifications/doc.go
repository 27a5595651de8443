// Package notifications pushes job milestones to an operator's phone via ntfy.
//
// Events cover the moments a human cares about: a job is waiting at the
// review gate, a job was published, or a job exhausted its retries. Each
// category can be switched off in the [notifications] config section, and the
// service degrades to a no-op when no topic is configured.
package notifications
