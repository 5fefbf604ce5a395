package feed

import (
	"github.com/agent-racer/sessionizer/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgSession  MessageType = "session"
	MsgDone     MessageType = "done"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// SnapshotPayload is sent once to every client on connect.
type SnapshotPayload struct {
	Sessions  []session.Record `json:"sessions"`
	Published int              `json:"published"`
	Done      bool             `json:"done"`
}

// SessionPayload carries one completed session. Seq counts every record the
// run emitted, including ones withheld by the privacy filter.
type SessionPayload struct {
	Seq     int            `json:"seq"`
	Session session.Record `json:"session"`
}

type DonePayload struct {
	RunID    string `json:"runId"`
	Sessions int    `json:"sessions"`
	Skipped  int    `json:"skipped"`
}
