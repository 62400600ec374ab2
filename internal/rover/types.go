// Wire-level types for the rover HTTP API
package rover

// Mode is the rover operating mode.
type Mode string

const (
	ModeManual     Mode = "manual"
	ModeAutonomous Mode = "autonomous"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeManual || m == ModeAutonomous
}

// Direction is a manual movement command.
type Direction string

const (
	DirStop     Direction = "stop"
	DirForward  Direction = "forward"
	DirBackward Direction = "backward"
	DirLeft     Direction = "left"
	DirRight    Direction = "right"
)

// Directions lists all movement commands the rover accepts.
var Directions = []Direction{DirStop, DirForward, DirBackward, DirLeft, DirRight}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	for _, k := range Directions {
		if d == k {
			return true
		}
	}
	return false
}

// Telemetry is one /status readout. Distance is nil when the rover has no
// rangefinder reading; Mode is empty when the firmware omits it.
type Telemetry struct {
	Battery  float64  `json:"battery"`
	RSSI     int      `json:"rssi"`
	Command  string   `json:"command"`
	Distance *float64 `json:"distance"`
	Mode     Mode     `json:"mode,omitempty"`
}
