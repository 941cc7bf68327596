// Package config defines the settings of an analysis run and provides
// helpers to load, validate and save them in YAML format.
//
// Validate fills in defaults for every optional field, so a file only
// needs to name the alarm export.
package config
