package logparse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agent-racer/sessionizer/internal/session"
)

// Columns is the access log header, in order.
var Columns = []string{
	"ip", "date", "time", "zone", "cik", "accession", "extention", "code",
	"size", "idx", "norefer", "noagent", "find", "crawler", "browser",
}

// NumColumns is the number of comma-separated fields on every line.
const NumColumns = 15

const (
	colIP        = 0
	colDate      = 1
	colTime      = 2
	colCIK       = 4
	colAccession = 5
	colExtention = 6
)

// requiredColumns must be non-empty for a line to produce an event.
var requiredColumns = []int{colIP, colDate, colTime, colCIK, colAccession, colExtention}

// The IP octets accept any Unicode decimal digit and the anonymised last
// octet any Unicode letter, digit or underscore.
var (
	ipPattern   = regexp.MustCompile(`^\p{Nd}{1,3}\.\p{Nd}{1,3}\.\p{Nd}{1,3}\.[\p{L}\p{N}_]{1,3}$`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
)

// ParseLine turns one data line into an event. Recoverable problems are
// returned as *SkipError; a wrong field count wraps ErrColumnCount. An empty
// line has one field and is therefore a column count error.
func ParseLine(line string) (session.Event, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != NumColumns {
		return session.Event{}, fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(fields), NumColumns)
	}

	for _, col := range requiredColumns {
		if fields[col] == "" {
			return session.Event{}, &SkipError{Reason: ReasonNull, Field: Columns[col]}
		}
	}

	ip, date, clock := fields[colIP], fields[colDate], fields[colTime]
	if !ipPattern.MatchString(ip) {
		return session.Event{}, &SkipError{Reason: ReasonIP, Field: "ip", Value: ip}
	}
	if !datePattern.MatchString(date) {
		return session.Event{}, &SkipError{Reason: ReasonDate, Field: "date", Value: date}
	}
	if !timePattern.MatchString(clock) {
		return session.Event{}, &SkipError{Reason: ReasonTime, Field: "time", Value: clock}
	}

	ts, err := time.ParseInLocation(session.TimeLayout, date+" "+clock, time.UTC)
	if err != nil {
		return session.Event{}, &SkipError{Reason: ReasonTimestamp, Field: "date_time", Value: date + " " + clock}
	}

	return session.Event{IP: ip, Time: ts}, nil
}
