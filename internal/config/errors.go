package config

import "errors"

var (
	// ErrUnknownConfigField marks a YAML file carrying keys this build does
	// not know. Typos fail loudly instead of silently falling back.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrAliasConflict marks a canonical RAIDBOT_ variable and its legacy
	// name both being set to different values.
	ErrAliasConflict = errors.New("conflicting environment aliases")
)
