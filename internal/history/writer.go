// Telemetry history sinks
package history

import (
	"time"

	"roverctl/internal/session"
)

// Row is one recorded telemetry poll.
type Row struct {
	SessionID string    `json:"session_id"` // TAG
	Address   string    `json:"address"`    // TAG
	Battery   float64   `json:"battery"`    // FIELD
	RSSI      int       `json:"rssi"`       // FIELD
	Command   string    `json:"command"`    // FIELD
	Distance  *float64  `json:"distance"`   // FIELD
	Mode      string    `json:"mode"`       // FIELD
	Band      string    `json:"band"`       // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// RowFromSnapshot converts a session snapshot into a history row.
func RowFromSnapshot(sessionID, address string, snap session.Snapshot) Row {
	return Row{
		SessionID: sessionID,
		Address:   address,
		Battery:   snap.Battery,
		RSSI:      snap.RSSI,
		Command:   snap.Command,
		Distance:  snap.Distance,
		Mode:      string(snap.Mode),
		Band:      string(snap.Band),
		Timestamp: snap.ReceivedAt,
	}
}

// distanceOrSentinel reports the rangefinder value, or a negative sentinel
// for sinks that cannot store null.
func (r Row) distanceOrSentinel() float64 {
	if r.Distance == nil {
		return -1
	}
	return *r.Distance
}

// Writer is an interface to support different history sinks.
type Writer interface {
	Write(Row) error
}

// Optional: writers can also support batch mode.
type batchWriter interface {
	WriteBatch([]Row) error
}

// Recorder adapts a Writer into the session's recorder callback, stamping
// each snapshot with the session ID and endpoint address.
func Recorder(w Writer, sessionID string, address func() string) func(session.Snapshot) {
	return func(snap session.Snapshot) {
		_ = w.Write(RowFromSnapshot(sessionID, address(), snap))
	}
}
