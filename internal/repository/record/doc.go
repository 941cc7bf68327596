// Package record persists alarm health records.
//
// Two backends are provided: a JSON file for ad-hoc runs and a SQLite
// database for keeping results across runs. Both merge on write: static
// attributes and flags are replaced, while counters and advisories are only
// replaced when the incoming record carries them.
package record
