// Package main hosts the shortsfactory CLI.
//
// Commands talk to a running daemon over its HTTP API when one answers on
// api_bind and fall back to opening the queue database directly otherwise,
// so review decisions and ingest work whether or not the daemon is up.
package main
