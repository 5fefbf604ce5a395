package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Inactivity bounds, in seconds.
const (
	MinInactivity = 1
	MaxInactivity = 86400
)

// ReadInactivity reads the inactivity threshold from the file at path.
func ReadInactivity(path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read inactivity file: %w", err)
	}
	return ParseInactivity(string(data))
}

// ParseInactivity parses a whole number of seconds surrounded by optional
// whitespace. Signs, decimals and empty input are ErrInactivityNotNumeric;
// values outside the allowed range are ErrInactivityRange.
func ParseInactivity(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInactivityNotNumeric, s)
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < MinInactivity || n > MaxInactivity {
		// Atoi only fails here on overflow, which is out of range too.
		return 0, fmt.Errorf("%w: %s", ErrInactivityRange, s)
	}
	return time.Duration(n) * time.Second, nil
}
