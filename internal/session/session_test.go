package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"roverctl/internal/rover"
)

type fakeAPI struct {
	modes      []rover.Mode
	moves      []rover.Direction
	speeds     []int
	status     rover.Telemetry
	statusErr  error
	commandErr error
}

func (f *fakeAPI) SetMode(_ context.Context, m rover.Mode) error {
	f.modes = append(f.modes, m)
	return f.commandErr
}

func (f *fakeAPI) Move(_ context.Context, d rover.Direction) error {
	f.moves = append(f.moves, d)
	return f.commandErr
}

func (f *fakeAPI) SetSpeed(_ context.Context, v int) error {
	f.speeds = append(f.speeds, v)
	return f.commandErr
}

func (f *fakeAPI) Status(_ context.Context) (rover.Telemetry, error) {
	return f.status, f.statusErr
}

type fakePrefs struct {
	address string
	mode    rover.Mode
}

func (p *fakePrefs) SetAddress(a string) error      { p.address = a; return nil }
func (p *fakePrefs) SetLastMode(m rover.Mode) error { p.mode = m; return nil }

type recordingListener struct {
	nopListener
	actions []rover.Direction
	modes   []rover.Mode
	states  []State
	snaps   []Snapshot
}

func (l *recordingListener) ActionSent(d rover.Direction)   { l.actions = append(l.actions, d) }
func (l *recordingListener) ModeChanged(m rover.Mode)       { l.modes = append(l.modes, m) }
func (l *recordingListener) ConnectionChanged(s State, _ int) { l.states = append(l.states, s) }
func (l *recordingListener) TelemetryUpdated(s Snapshot)    { l.snaps = append(l.snaps, s) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession wires a session to a fake API as if already connected.
func newTestSession(mode rover.Mode, api *fakeAPI) (*Session, *fakePrefs) {
	prefs := &fakePrefs{}
	s := New(prefs, mode, testLogger())
	s.newAPI = func(string) API { return api }
	s.api = api
	s.address = "rover.local"
	return s, prefs
}

func TestMoveToggleRule(t *testing.T) {
	for _, d := range []rover.Direction{rover.DirForward, rover.DirBackward, rover.DirLeft, rover.DirRight} {
		t.Run(string(d), func(t *testing.T) {
			api := &fakeAPI{}
			s, _ := newTestSession(rover.ModeManual, api)

			s.Move(d)
			s.Move(d)

			want := []rover.Direction{d, rover.DirStop}
			if len(api.moves) != 2 || api.moves[0] != want[0] || api.moves[1] != want[1] {
				t.Fatalf("moves = %v, want %v", api.moves, want)
			}
			if s.LastCommand() != rover.DirStop {
				t.Fatalf("last command = %q, want stop", s.LastCommand())
			}

			// After the substituted stop the same direction goes through again.
			s.Move(d)
			if api.moves[2] != d {
				t.Fatalf("third move = %q, want %q", api.moves[2], d)
			}
		})
	}
}

func TestMoveStopNeverToggles(t *testing.T) {
	api := &fakeAPI{}
	s, _ := newTestSession(rover.ModeManual, api)

	s.Move(rover.DirStop)
	s.Move(rover.DirStop)
	if len(api.moves) != 2 || api.moves[0] != rover.DirStop || api.moves[1] != rover.DirStop {
		t.Fatalf("moves = %v, want [stop stop]", api.moves)
	}
}

func TestMoveIgnoredWhileAutonomous(t *testing.T) {
	api := &fakeAPI{}
	s, _ := newTestSession(rover.ModeAutonomous, api)
	s.lastCommand = rover.DirForward

	s.Move(rover.DirLeft)

	if len(api.moves) != 0 {
		t.Fatalf("expected no request, got %v", api.moves)
	}
	if s.LastCommand() != rover.DirForward {
		t.Fatalf("last command changed to %q", s.LastCommand())
	}
}

func TestSwitchModeToManualStops(t *testing.T) {
	api := &fakeAPI{}
	s, prefs := newTestSession(rover.ModeManual, api)

	// Already manual: the stop must still be issued.
	s.SwitchMode(rover.ModeManual)

	if len(api.modes) != 1 || api.modes[0] != rover.ModeManual {
		t.Fatalf("mode pushes = %v", api.modes)
	}
	if len(api.moves) != 1 || api.moves[0] != rover.DirStop {
		t.Fatalf("moves = %v, want [stop]", api.moves)
	}
	if prefs.mode != rover.ModeManual {
		t.Fatalf("persisted mode = %q", prefs.mode)
	}
}

func TestSwitchModeToAutonomousDoesNotStop(t *testing.T) {
	api := &fakeAPI{}
	s, _ := newTestSession(rover.ModeManual, api)

	s.SwitchMode(rover.ModeAutonomous)

	if len(api.moves) != 0 {
		t.Fatalf("unexpected moves %v", api.moves)
	}
	if s.Mode() != rover.ModeAutonomous {
		t.Fatalf("mode = %q", s.Mode())
	}
}

func TestSwitchModePushFailureKeepsLocalMode(t *testing.T) {
	api := &fakeAPI{commandErr: errors.New("timeout")}
	s, _ := newTestSession(rover.ModeManual, api)

	s.SwitchMode(rover.ModeAutonomous)

	if s.Mode() != rover.ModeAutonomous {
		t.Fatalf("mode rolled back to %q", s.Mode())
	}
	if state, n := s.ConnState(); state != StateDegraded || n != 1 {
		t.Fatalf("conn = %v/%d, want degraded/1", state, n)
	}
}

func TestEmergencyStopDoubleStop(t *testing.T) {
	api := &fakeAPI{}
	s, _ := newTestSession(rover.ModeAutonomous, api)

	s.EmergencyStop()

	if s.Mode() != rover.ModeManual {
		t.Fatalf("mode = %q, want manual", s.Mode())
	}
	// One stop from entering manual, one explicit.
	if len(api.moves) != 2 || api.moves[0] != rover.DirStop || api.moves[1] != rover.DirStop {
		t.Fatalf("moves = %v, want [stop stop]", api.moves)
	}
}

func TestConnectValidation(t *testing.T) {
	api := &fakeAPI{status: telemetry(8.0, -55, "stop", nil, "")}
	prefs := &fakePrefs{}
	s := New(prefs, rover.ModeManual, testLogger())
	calls := 0
	s.newAPI = func(addr string) API {
		calls++
		if addr != "10.0.0.5" {
			t.Fatalf("client built for %q", addr)
		}
		return api
	}

	if err := s.Connect(""); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("Connect(\"\") = %v, want ErrInvalidAddress", err)
	}
	if err := s.Connect("   "); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("Connect(blank) = %v, want ErrInvalidAddress", err)
	}
	if calls != 0 {
		t.Fatal("client built for invalid address")
	}

	if err := s.Connect("  10.0.0.5 "); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.Address() != "10.0.0.5" {
		t.Fatalf("address = %q", s.Address())
	}
	if prefs.address != "10.0.0.5" {
		t.Fatalf("persisted address = %q", prefs.address)
	}
	if s.Snapshot() == nil {
		t.Fatal("connect did not trigger an immediate poll")
	}
}

func TestConnectReportsConnectingThenConnected(t *testing.T) {
	api := &fakeAPI{status: telemetry(8.0, -55, "stop", nil, "")}
	s, _ := newTestSession(rover.ModeManual, api)
	l := &recordingListener{}
	s.SetListener(l)

	if err := s.Connect("rover.local"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(l.states) < 2 || l.states[0] != StateConnecting || l.states[len(l.states)-1] != StateConnected {
		t.Fatalf("states = %v", l.states)
	}
}

func TestFetchStatusReplacesSnapshotWholesale(t *testing.T) {
	d := 50.0
	api := &fakeAPI{status: telemetry(7.9, -60, "forward", &d, "")}
	s, _ := newTestSession(rover.ModeManual, api)

	s.FetchStatus()
	api.status = telemetry(7.8, -62, "stop", nil, "")
	s.FetchStatus()

	snap := s.Snapshot()
	if snap.Distance != nil {
		t.Fatalf("old distance leaked into new snapshot: %v", *snap.Distance)
	}
	if snap.Command != "stop" {
		t.Fatalf("command = %q", snap.Command)
	}
}

func TestFetchStatusFailureRetainsStaleSnapshot(t *testing.T) {
	api := &fakeAPI{status: telemetry(7.9, -60, "forward", nil, "")}
	s, _ := newTestSession(rover.ModeManual, api)

	s.FetchStatus()
	api.statusErr = errors.New("timeout")
	s.FetchStatus()

	if s.Snapshot() == nil || s.Snapshot().Command != "forward" {
		t.Fatal("stale snapshot was cleared on poll failure")
	}
	if state, _ := s.ConnState(); state != StateDegraded {
		t.Fatalf("state = %v, want degraded", state)
	}
}

func TestModeReconciliation(t *testing.T) {
	api := &fakeAPI{status: telemetry(8.0, -55, "stop", nil, rover.ModeAutonomous)}
	s, _ := newTestSession(rover.ModeManual, api)
	l := &recordingListener{}
	s.SetListener(l)

	s.FetchStatus()

	if s.Mode() != rover.ModeAutonomous {
		t.Fatalf("mode = %q, want autonomous", s.Mode())
	}
	if len(api.modes) != 1 || api.modes[0] != rover.ModeAutonomous {
		t.Fatalf("mode pushes = %v, want one autonomous push", api.modes)
	}

	// Agreeing polls do not re-trigger the switch.
	s.FetchStatus()
	if len(api.modes) != 1 {
		t.Fatalf("reconciliation repeated on agreeing poll: %v", api.modes)
	}
}

func TestDistanceBands(t *testing.T) {
	cases := []struct {
		distance *float64
		want     Band
	}{
		{ptr(10), BandRed},
		{ptr(14.9), BandRed},
		{ptr(15), BandOrange},
		{ptr(20), BandOrange},
		{ptr(34.9), BandOrange},
		{ptr(35), BandGreen},
		{ptr(120), BandGreen},
		{nil, BandNone},
	}
	for _, tc := range cases {
		if got := distanceBand(tc.distance); got != tc.want {
			t.Errorf("distanceBand(%v) = %q, want %q", fmtDist(tc.distance), got, tc.want)
		}
	}
}

func TestBandOnlyDerivedWhileAutonomous(t *testing.T) {
	d := 10.0
	api := &fakeAPI{status: telemetry(8.0, -55, "forward", &d, "")}

	s, _ := newTestSession(rover.ModeManual, api)
	s.FetchStatus()
	if s.Snapshot().Band != BandNone {
		t.Fatalf("manual-mode band = %q, want none", s.Snapshot().Band)
	}

	s, _ = newTestSession(rover.ModeAutonomous, api)
	s.FetchStatus()
	if s.Snapshot().Band != BandRed {
		t.Fatalf("autonomous band = %q, want red", s.Snapshot().Band)
	}
}

// countingAPI makes Status safe to call from the polling goroutine while
// the test reads the counter.
type countingAPI struct {
	fakeAPI
	mu    sync.Mutex
	polls int
}

func (c *countingAPI) Status(ctx context.Context) (rover.Telemetry, error) {
	c.mu.Lock()
	c.polls++
	c.mu.Unlock()
	return c.fakeAPI.Status(ctx)
}

func (c *countingAPI) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

func TestRunPollingImmediateThenCadence(t *testing.T) {
	api := &countingAPI{fakeAPI: fakeAPI{status: telemetry(8.0, -55, "stop", nil, "")}}
	prefs := &fakePrefs{}
	s := New(prefs, rover.ModeManual, testLogger())
	s.api = api
	s.address = "rover.local"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunPolling(ctx, 20*time.Millisecond)
		close(done)
	}()

	// The first poll fires before the first tick.
	time.Sleep(5 * time.Millisecond)
	if n := api.count(); n != 1 {
		t.Fatalf("polls right after start = %d, want 1", n)
	}

	// Then the fixed cadence takes over, no backoff.
	time.Sleep(110 * time.Millisecond)
	if n := api.count(); n < 4 {
		t.Fatalf("polls after cadence = %d, want at least 4", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("polling did not stop on context cancellation")
	}
}

func TestListenerAttachedLateReceivesEvents(t *testing.T) {
	api := &fakeAPI{status: telemetry(8.0, -55, "stop", nil, "")}
	s, _ := newTestSession(rover.ModeManual, api)

	// Commands before any listener is attached must not panic.
	s.Move(rover.DirForward)

	l := &recordingListener{}
	s.SetListener(l)
	s.Move(rover.DirBackward)
	s.FetchStatus()

	if len(l.actions) != 1 || l.actions[0] != rover.DirBackward {
		t.Fatalf("actions = %v, want [backward]", l.actions)
	}
	if len(l.snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(l.snaps))
	}
}

func TestSetSpeed(t *testing.T) {
	api := &fakeAPI{}
	s, _ := newTestSession(rover.ModeManual, api)

	s.SetSpeed(150)
	s.SetSpeed(-5)

	if len(api.speeds) != 2 || api.speeds[0] != 150 || api.speeds[1] != 0 {
		t.Fatalf("speeds = %v, want [150 0]", api.speeds)
	}
}

func telemetry(batt float64, rssi int, cmd string, dist *float64, mode rover.Mode) rover.Telemetry {
	return rover.Telemetry{Battery: batt, RSSI: rssi, Command: cmd, Distance: dist, Mode: mode}
}

func ptr(v float64) *float64 { return &v }

func fmtDist(d *float64) interface{} {
	if d == nil {
		return "nil"
	}
	return *d
}
