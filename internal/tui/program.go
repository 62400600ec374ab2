// Terminal operator console for a rover session
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"roverctl/internal/rover"
	"roverctl/internal/session"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// modeMsg carries a mode change.
type modeMsg struct{ mode rover.Mode }

// actionMsg carries the effective direction of a sent command.
type actionMsg struct{ dir rover.Direction }

// speedMsg carries a speed change.
type speedMsg struct{ val int }

// connMsg carries a connectivity transition.
type connMsg struct {
	state    session.State
	failures int
}

// telemetryMsg carries a fresh telemetry snapshot.
type telemetryMsg struct{ session.Snapshot }

// logMsg carries a log line for the event pane.
type logMsg struct{ line string }

// flashClearMsg ends a control highlight.
type flashClearMsg struct{ seq int }

// UI runs the operator console and feeds session events into it. It
// implements session.Listener.
type UI struct {
	program teaProgram
	run     func() error
}

// New builds the console around ctrl. address and speed seed the initial
// display; the session remains the source of truth once events flow.
func New(ctrl *session.Session, address string, speed int) *UI {
	m := newModel(ctrl, address, speed)
	p := tea.NewProgram(m, tea.WithAltScreen())
	return &UI{
		program: p,
		run: func() error {
			_, err := p.Run()
			return err
		},
	}
}

// Run blocks until the operator quits the console.
func (u *UI) Run() error {
	return u.run()
}

// Logger returns a logger whose records land in the console's event pane.
func (u *UI) Logger() *slog.Logger {
	return slog.New(&logForwarder{program: u.program})
}

// ModeChanged implements session.Listener.
func (u *UI) ModeChanged(m rover.Mode) {
	u.program.Send(modeMsg{mode: m})
}

// ActionSent implements session.Listener.
func (u *UI) ActionSent(d rover.Direction) {
	u.program.Send(actionMsg{dir: d})
}

// SpeedChanged implements session.Listener.
func (u *UI) SpeedChanged(v int) {
	u.program.Send(speedMsg{val: v})
}

// ConnectionChanged implements session.Listener.
func (u *UI) ConnectionChanged(s session.State, failures int) {
	u.program.Send(connMsg{state: s, failures: failures})
}

// TelemetryUpdated implements session.Listener.
func (u *UI) TelemetryUpdated(s session.Snapshot) {
	u.program.Send(telemetryMsg{s})
}

// logForwarder is an slog handler that sends formatted records to the
// console's event pane.
type logForwarder struct {
	program teaProgram
	attrs   []slog.Attr
}

func (h *logForwarder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (h *logForwarder) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", r.Time.Format(time.TimeOnly), r.Level, r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	h.program.Send(logMsg{line: b.String()})
	return nil
}

func (h *logForwarder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logForwarder{program: h.program, attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)}
}

func (h *logForwarder) WithGroup(string) slog.Handler {
	return h
}
