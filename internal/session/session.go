// Session controller owning rover connection, mode, and command state
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"roverctl/internal/rover"
)

// DefaultPollInterval is the telemetry poll cadence. Polling never backs
// off and is not paused while commands are in flight.
const DefaultPollInterval = time.Second

// ErrInvalidAddress is returned by Connect for an empty address. It is the
// only session error surfaced to the operator; remote-call failures are
// absorbed into connectivity state and logs.
var ErrInvalidAddress = errors.New("rover address must not be empty")

// API is the subset of the rover client the session drives. Satisfied by
// *rover.Client.
type API interface {
	SetMode(context.Context, rover.Mode) error
	Move(context.Context, rover.Direction) error
	SetSpeed(context.Context, int) error
	Status(context.Context) (rover.Telemetry, error)
}

// PrefStore persists the two operator preferences that survive restarts.
type PrefStore interface {
	SetAddress(string) error
	SetLastMode(rover.Mode) error
}

// Listener receives session outputs for rendering. Implementations must not
// call back into the session from within a notification.
type Listener interface {
	ModeChanged(rover.Mode)
	ActionSent(rover.Direction)
	SpeedChanged(int)
	ConnectionChanged(State, int)
	TelemetryUpdated(Snapshot)
}

// Snapshot is one polled telemetry readout plus derived display data. It is
// replaced wholesale on every successful poll; on failure the previous
// snapshot stays visible.
type Snapshot struct {
	rover.Telemetry
	Band       Band
	ReceivedAt time.Time
}

// Band is the distance warning band derived for display.
type Band string

const (
	BandNone   Band = ""
	BandRed    Band = "red"
	BandOrange Band = "orange"
	BandGreen  Band = "green"
)

// distanceBand maps an obstacle distance in cm to its warning band.
func distanceBand(d *float64) Band {
	switch {
	case d == nil:
		return BandNone
	case *d < 15:
		return BandRed
	case *d < 35:
		return BandOrange
	default:
		return BandGreen
	}
}

// Session reconciles operator intent against polled rover state. Local state
// is authoritative for the UI: mode flips immediately on operator input and
// is never rolled back when the remote push fails. A polled remote mode that
// differs wins over local state on the next poll (last writer wins, no
// versioning), so a stale in-flight poll can briefly flip an operator change
// back until the following poll converges.
type Session struct {
	mu          sync.Mutex
	api         API
	address     string
	mode        rover.Mode
	lastCommand rover.Direction
	speed       int
	connecting  bool
	conn        *connTracker
	snapshot    *Snapshot

	prefs    PrefStore
	listener Listener
	log      *slog.Logger
	record   func(Snapshot)

	// overridable in tests
	newAPI func(string) API
}

// New builds a session starting in mode with no endpoint attached. Connect
// must be called before any command reaches a rover.
func New(prefs PrefStore, mode rover.Mode, log *slog.Logger) *Session {
	if !mode.Valid() {
		mode = rover.ModeManual
	}
	return &Session{
		mode:        mode,
		lastCommand: rover.DirStop,
		conn:        newConnTracker(log),
		prefs:       prefs,
		listener:    nopListener{},
		log:         log,
		newAPI:      func(addr string) API { return rover.NewClient(addr) },
	}
}

// SetListener attaches the presentation layer. Late binding so the UI and
// session can reference each other.
func (s *Session) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l == nil {
		l = nopListener{}
	}
	s.listener = l
}

// SetLogger replaces the session logger. Late binding so the console can
// route session logs into its own event pane.
func (s *Session) SetLogger(log *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log == nil {
		return
	}
	s.log = log
	s.conn.log = log
}

// SetRecorder attaches an optional telemetry history sink invoked once per
// successful poll.
func (s *Session) SetRecorder(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = fn
}

// Connect trims and stores address, persists it, and triggers an immediate
// poll. The status indicator shows connecting until that poll resolves.
func (s *Session) Connect(address string) error {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return ErrInvalidAddress
	}
	s.mu.Lock()
	s.address = addr
	s.api = s.newAPI(addr)
	s.connecting = true
	failures := s.conn.Failures()
	log, listener := s.log, s.listener
	s.mu.Unlock()

	if err := s.prefs.SetAddress(addr); err != nil {
		log.Warn("persisting rover address failed", "error", err)
	}
	log.Info("connecting to rover", "address", addr)
	listener.ConnectionChanged(StateConnecting, failures)
	s.FetchStatus()
	return nil
}

// SwitchMode sets and persists the local mode, notifies the listener, and
// pushes the change to the rover. The push is advisory: a failure is logged
// and counted against connectivity but the local mode stands. Entering
// manual always issues a stop so no autonomous motion command stays active.
func (s *Session) SwitchMode(m rover.Mode) {
	if !m.Valid() {
		s.logger().Warn("ignoring unknown mode", "mode", m)
		return
	}
	s.mu.Lock()
	s.mode = m
	api := s.api
	log, listener := s.log, s.listener
	s.mu.Unlock()

	if err := s.prefs.SetLastMode(m); err != nil {
		log.Warn("persisting mode failed", "error", err)
	}
	listener.ModeChanged(m)

	if api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), rover.RequestTimeout)
		err := api.SetMode(ctx, m)
		cancel()
		if err != nil {
			log.Warn("mode push failed", "mode", m, "error", err)
			s.requestFailed()
		} else {
			s.requestSucceeded()
		}
	}

	if m == rover.ModeManual {
		s.Move(rover.DirStop)
	}
}

// Move issues a manual movement command. Outside manual mode the call is a
// logged no-op. Repeating the previous non-stop direction sends stop
// instead, so a second press of the same control halts the rover.
func (s *Session) Move(d rover.Direction) {
	if !d.Valid() {
		s.logger().Warn("ignoring unknown direction", "direction", d)
		return
	}
	s.mu.Lock()
	if s.mode != rover.ModeManual {
		log := s.log
		s.mu.Unlock()
		log.Info("manual command ignored outside manual mode", "direction", d)
		return
	}
	effective := d
	if d == s.lastCommand && d != rover.DirStop {
		effective = rover.DirStop
	}
	s.lastCommand = effective
	api := s.api
	log, listener := s.log, s.listener
	s.mu.Unlock()

	listener.ActionSent(effective)
	if api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rover.RequestTimeout)
	err := api.Move(ctx, effective)
	cancel()
	if err != nil {
		log.Warn("movement command failed", "direction", effective, "error", err)
		s.requestFailed()
		return
	}
	s.requestSucceeded()
}

// SetSpeed pushes a new speed setting.
func (s *Session) SetSpeed(val int) {
	if val < 0 {
		val = 0
	}
	s.mu.Lock()
	s.speed = val
	api := s.api
	log, listener := s.log, s.listener
	s.mu.Unlock()

	listener.SpeedChanged(val)
	if api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rover.RequestTimeout)
	err := api.SetSpeed(ctx, val)
	cancel()
	if err != nil {
		log.Warn("speed push failed", "val", val, "error", err)
		s.requestFailed()
		return
	}
	s.requestSucceeded()
}

// EmergencyStop forces manual mode and stops the rover. The mode switch
// already issues a stop on entering manual; the explicit second stop keeps
// the command independent of that path.
func (s *Session) EmergencyStop() {
	s.logger().Info("emergency stop")
	s.SwitchMode(rover.ModeManual)
	s.Move(rover.DirStop)
}

// FetchStatus polls the rover once. On success the snapshot is replaced
// wholesale and a remote-reported mode that differs from the local one
// triggers a full SwitchMode to converge. On any failure the stale snapshot
// is retained.
func (s *Session) FetchStatus() {
	s.mu.Lock()
	api := s.api
	log := s.log
	s.mu.Unlock()
	if api == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), rover.RequestTimeout)
	tel, err := api.Status(ctx)
	cancel()
	if err != nil {
		log.Warn("telemetry poll failed", "error", err)
		s.requestFailed()
		return
	}

	s.mu.Lock()
	snap := Snapshot{Telemetry: tel, ReceivedAt: time.Now()}
	if s.mode == rover.ModeAutonomous {
		snap.Band = distanceBand(tel.Distance)
	}
	s.snapshot = &snap
	localMode := s.mode
	record := s.record
	listener := s.listener
	s.mu.Unlock()

	s.requestSucceeded()
	listener.TelemetryUpdated(snap)
	if record != nil {
		record(snap)
	}
	if tel.Mode != "" && tel.Mode != localMode {
		log.Info("reconciling mode from rover", "local", localMode, "remote", tel.Mode)
		s.SwitchMode(tel.Mode)
	}
}

// RunPolling polls immediately, then on a fixed cadence until ctx is done.
// The cadence never backs off regardless of mode or poll outcome.
func (s *Session) RunPolling(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s.FetchStatus()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.FetchStatus()
		case <-ctx.Done():
			return
		}
	}
}

// Mode returns the current local mode.
func (s *Session) Mode() rover.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// LastCommand returns the most recently sent effective direction.
func (s *Session) LastCommand() rover.Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommand
}

// Address returns the active endpoint address, or "" before any connect.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// ConnState returns the connectivity state and consecutive failure count.
func (s *Session) ConnState() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connecting {
		return StateConnecting, s.conn.Failures()
	}
	return s.conn.State(), s.conn.Failures()
}

// Snapshot returns the latest telemetry snapshot, or nil before the first
// successful poll.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Session) requestSucceeded() {
	s.mu.Lock()
	s.connecting = false
	state, failures := s.conn.Success()
	listener := s.listener
	s.mu.Unlock()
	listener.ConnectionChanged(state, failures)
}

func (s *Session) requestFailed() {
	s.mu.Lock()
	s.connecting = false
	state, failures := s.conn.Failure()
	listener := s.listener
	s.mu.Unlock()
	listener.ConnectionChanged(state, failures)
}

// logger returns the current logger under the lock; callers that already
// hold it read s.log directly.
func (s *Session) logger() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

type nopListener struct{}

func (nopListener) ModeChanged(rover.Mode)       {}
func (nopListener) ActionSent(rover.Direction)   {}
func (nopListener) SpeedChanged(int)             {}
func (nopListener) ConnectionChanged(State, int) {}
func (nopListener) TelemetryUpdated(Snapshot)    {}
