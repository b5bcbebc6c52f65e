// Package stores implements the Redis-backed transient session records for
// the reset and change flows. Records use a versioned binary encoding;
// verified-flag transitions go through WATCH transactions so the flag can
// only move from false to true within one session lifecycle.
package stores
