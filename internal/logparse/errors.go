package logparse

import (
	"errors"
	"fmt"
)

// ErrColumnCount is returned when a log line does not have exactly
// NumColumns fields. It aborts the whole run.
var ErrColumnCount = errors.New("logparse: wrong number of columns")

// Reason says why a line was skipped.
type Reason int

const (
	ReasonNull      Reason = iota // a required field is empty
	ReasonIP                      // ip does not look like an (anonymised) IPv4 address
	ReasonDate                    // date is not YYYY-MM-DD
	ReasonTime                    // time is not HH:MM:SS
	ReasonTimestamp               // date and time match the patterns but are not a real instant
)

var reasonNames = map[Reason]string{
	ReasonNull:      "null_field",
	ReasonIP:        "invalid_ip",
	ReasonDate:      "invalid_date",
	ReasonTime:      "invalid_time",
	ReasonTimestamp: "invalid_timestamp",
}

var reasonFromName = map[string]Reason{
	"null_field":        ReasonNull,
	"invalid_ip":        ReasonIP,
	"invalid_date":      ReasonDate,
	"invalid_time":      ReasonTime,
	"invalid_timestamp": ReasonTimestamp,
}

// Reasons lists every skip reason in declaration order.
func Reasons() []Reason {
	return []Reason{ReasonNull, ReasonIP, ReasonDate, ReasonTime, ReasonTimestamp}
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(data []byte) error {
	v, ok := reasonFromName[string(data)]
	if !ok {
		return fmt.Errorf("logparse: unknown skip reason %q", data)
	}
	*r = v
	return nil
}

// SkipError reports a line that is dropped from the event stream without
// failing the run.
type SkipError struct {
	Line   int // 1-based, header included; 0 when unknown
	Reason Reason
	Field  string
	Value  string
}

func (e *SkipError) Error() string {
	msg := e.Reason.String()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s=%q", msg, e.Field, e.Value)
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}
