// Package ingest turns inbox content into NEW jobs.
//
// Service creates jobs from media files and idea text; the store's unique
// source reference makes every entry point idempotent, so rescanning an
// inbox or re-reading ideas.txt never duplicates work. Watcher drives the
// Service from fsnotify events with a settle delay so half-copied files are
// not picked up.
package ingest
