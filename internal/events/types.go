// Package events defines the event types emitted during an import run.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle events
	EventSessionConnected  EventType = "session_connected"
	EventHandshakeAccepted EventType = "handshake_accepted"
	EventLoginSent         EventType = "login_sent"
	EventLoginConfirmed    EventType = "login_confirmed"
	EventSessionClosed     EventType = "session_closed"

	// Traffic events
	EventMessageReceived EventType = "message_received"
	EventRequestSent     EventType = "request_sent"
	EventDrainComplete   EventType = "drain_complete"

	// Reconciliation events
	EventConflict EventType = "reconciliation_conflict"

	// Run events
	EventPhaseChanged   EventType = "phase_changed"
	EventImportFinished EventType = "import_finished"
	EventExportWritten  EventType = "export_written"
	EventShutdown       EventType = "shutdown"

	// EventAny subscribes a handler to every event type.
	EventAny EventType = "*"
)

// Phase is the position of an import run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseHandshake
	PhaseLogin
	PhaseCollecting
	PhaseQuerying
	PhaseDone
	PhaseFailed
)

// phaseStrings maps Phase values to their lowercase JSON string representation.
var phaseStrings = map[Phase]string{
	PhaseIdle:       "idle",
	PhaseConnecting: "connecting",
	PhaseHandshake:  "handshake",
	PhaseLogin:      "login",
	PhaseCollecting: "collecting",
	PhaseQuerying:   "querying",
	PhaseDone:       "done",
	PhaseFailed:     "failed",
}

// String returns the string representation of Phase.
func (p Phase) String() string {
	if str, ok := phaseStrings[p]; ok {
		return str
	}
	return "idle"
}

// MarshalJSON serializes Phase as a JSON string (e.g. "collecting").
func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Time    time.Time
	Payload interface{}
}

// SessionPayload describes the session an event belongs to.
type SessionPayload struct {
	Addr string `json:"addr"`
	Room string `json:"room"`
	User string `json:"user,omitempty"`
}

// PhasePayload is emitted when the run moves to a new phase.
type PhasePayload struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// MessagePayload summarises one classified frame. The payload text itself
// is not carried.
type MessagePayload struct {
	Kind  string `json:"kind"`
	Tag   string `json:"tag,omitempty"`
	Bytes int    `json:"bytes"`
}

// RequestPayload describes an outbound request.
type RequestPayload struct {
	Tag    string `json:"tag"`
	Detail string `json:"detail"`
}

// DrainPayload is emitted when the server has gone quiet.
type DrainPayload struct {
	Round    int `json:"round"`
	Messages int `json:"messages"`
}

// ConflictPayload carries a reconciliation conflict.
type ConflictPayload struct {
	LocationID int64  `json:"location_id"`
	Field      string `json:"field"`
	Old        string `json:"old"`
	New        string `json:"new"`
}

// ImportSummaryPayload is emitted once when the run ends.
type ImportSummaryPayload struct {
	LoginConfirmed bool           `json:"login_confirmed"`
	Locations      int            `json:"locations"`
	Occupants      int            `json:"occupants"`
	Messages       map[string]int `json:"messages"`
	Duration       time.Duration  `json:"duration"`
	Error          string         `json:"error,omitempty"`
}

// ExportPayload is emitted after the store has been written somewhere.
type ExportPayload struct {
	Target  string `json:"target"`
	Path    string `json:"path"`
	Records int    `json:"records"`
}
