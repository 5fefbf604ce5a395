package session

import (
	"encoding/json"
	"time"
)

// Event is a single validated log line reduced to the fields sessionization
// needs. Events are produced by the parser in file order.
type Event struct {
	IP   string
	Time time.Time
}

// Outcome classifies what an event did to the open-session table.
type Outcome int

const (
	Opened    Outcome = iota // no open session for the IP; a new one was created
	Extended                 // folded into the IP's open session
	Backdated                // earlier than the IP's last_seen; dropped
)

var outcomeNames = map[Outcome]string{
	Opened:    "opened",
	Extended:  "extended",
	Backdated: "backdated",
}

var outcomeFromName = map[string]Outcome{
	"opened":    Opened,
	"extended":  Extended,
	"backdated": Backdated,
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(data []byte) error {
	if v, ok := outcomeFromName[string(data)]; ok {
		*o = v
	}
	return nil
}

// MarshalJSON is kept alongside MarshalText so an Outcome encodes as its name
// both as a value and as a map key.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return o.UnmarshalText([]byte(s))
}
