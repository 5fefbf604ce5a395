package config

import "errors"

var (
	// ErrInactivityNotNumeric is returned when the inactivity value is empty
	// or contains anything other than ASCII digits.
	ErrInactivityNotNumeric = errors.New("inactivity time is not numeric")

	// ErrInactivityRange is returned when the inactivity value is outside
	// [MinInactivity, MaxInactivity] seconds.
	ErrInactivityRange = errors.New("inactivity time is not between 1 and 86400 seconds")

	// ErrParsingEnv is returned when environment overrides cannot be applied.
	ErrParsingEnv = errors.New("failed to parse environment variables into config")

	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid config")
)
