package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"roverctl/internal/rover"
	"roverctl/internal/session"
)

const (
	maxLogLines   = 500
	flashDuration = 600 * time.Millisecond
	speedStep     = 10
	maxSpeed      = 255
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	badgeConnected  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("2")).Padding(0, 1)
	badgeDegraded   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3")).Padding(0, 1)
	badgeLost       = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")).Padding(0, 1)
	badgeNeutral    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("8")).Padding(0, 1)
	bandRedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	bandOrangeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	bandGreenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	controlStyle    = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.NormalBorder())
	controlHotStyle = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.NormalBorder()).
			Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
)

// control is one rendered manual-control button.
type control struct {
	label string
	dir   rover.Direction
}

var controls = []control{
	{"W fwd", rover.DirForward},
	{"S back", rover.DirBackward},
	{"A left", rover.DirLeft},
	{"D right", rover.DirRight},
	{"SPACE stop", rover.DirStop},
}

type model struct {
	ctrl *session.Session

	address  string
	mode     rover.Mode
	state    session.State
	failures int
	snap     *session.Snapshot
	speed    int

	lastAction rover.Direction
	flashing   bool
	flashSeq   int

	table         table.Model
	vp            viewport.Model
	logs          []string
	connectInput  textinput.Model
	connectDialog bool
	connectErr    bool
	help          bool

	width  int
	height int
}

func newModel(ctrl *session.Session, address string, speed int) model {
	cols := []table.Column{
		{Title: "Telemetry", Width: 14},
		{Title: "Value", Width: 14},
		{Title: "Session", Width: 14},
		{Title: "Value", Width: 14},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(5))
	return model{
		ctrl:       ctrl,
		address:    address,
		mode:       ctrl.Mode(),
		state:      session.StateConnecting,
		speed:      speed,
		lastAction: rover.DirStop,
		table:      t,
		vp:         viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.resizeViewport()
		m.refreshViewport()
	case tea.KeyMsg:
		return m.handleKey(msg)
	case modeMsg:
		m.mode = msg.mode
		m.refreshTable()
	case actionMsg:
		m.lastAction = msg.dir
		m.flashing = true
		m.flashSeq++
		seq := m.flashSeq
		m.refreshTable()
		return m, tea.Tick(flashDuration, func(time.Time) tea.Msg {
			return flashClearMsg{seq: seq}
		})
	case flashClearMsg:
		if msg.seq == m.flashSeq {
			m.flashing = false
		}
	case speedMsg:
		m.speed = msg.val
		m.refreshTable()
	case connMsg:
		m.state = msg.state
		m.failures = msg.failures
		m.refreshTable()
	case telemetryMsg:
		snap := msg.Snapshot
		m.snap = &snap
		m.refreshTable()
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.connectDialog {
		switch msg.Type {
		case tea.KeyEnter:
			addr := strings.TrimSpace(m.connectInput.Value())
			if addr == "" {
				// Empty address never leaves the dialog; no request is made.
				m.connectErr = true
				return m, nil
			}
			m.connectDialog = false
			m.connectErr = false
			m.address = addr
			return m, m.dispatch(func(s *session.Session) { _ = s.Connect(addr) })
		case tea.KeyEsc:
			m.connectDialog = false
			m.connectErr = false
			return m, nil
		default:
			var cmd tea.Cmd
			m.connectInput, cmd = m.connectInput.Update(msg)
			return m, cmd
		}
	}
	if m.help {
		switch msg.String() {
		case "?", "esc", "q":
			m.help = false
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?":
		m.help = true
		return m, nil
	case "c":
		m.connectInput = textinput.New()
		m.connectInput.Placeholder = "host[:port]"
		m.connectInput.SetValue(m.address)
		m.connectInput.CursorEnd()
		m.connectInput.Focus()
		m.connectDialog = true
		return m, nil
	case "esc":
		return m, m.dispatch((*session.Session).EmergencyStop)
	case "m":
		return m, m.dispatch(func(s *session.Session) { s.SwitchMode(rover.ModeManual) })
	case "alt+a":
		return m, m.dispatch(func(s *session.Session) { s.SwitchMode(rover.ModeAutonomous) })
	case "w", "up":
		return m, m.move(rover.DirForward)
	case "s", "down":
		return m, m.move(rover.DirBackward)
	case "a", "left":
		return m, m.move(rover.DirLeft)
	case "d", "right":
		return m, m.move(rover.DirRight)
	case " ":
		return m, m.move(rover.DirStop)
	case "+", "=":
		return m, m.adjustSpeed(speedStep)
	case "-":
		return m, m.adjustSpeed(-speedStep)
	}
	return m, nil
}

// dispatch runs a session operation on bubbletea's command pool so network
// I/O never blocks the event loop.
func (m model) dispatch(fn func(*session.Session)) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		fn(ctrl)
		return nil
	}
}

func (m model) move(d rover.Direction) tea.Cmd {
	return m.dispatch(func(s *session.Session) { s.Move(d) })
}

func (m model) adjustSpeed(delta int) tea.Cmd {
	val := m.speed + delta
	if val < 0 {
		val = 0
	}
	if val > maxSpeed {
		val = maxSpeed
	}
	return m.dispatch(func(s *session.Session) { s.SetSpeed(val) })
}

func (m *model) refreshTable() {
	battery, rssi, command, distance := "-", "-", "-", "-"
	if m.snap != nil {
		battery = fmt.Sprintf("%.2f V", m.snap.Battery)
		rssi = fmt.Sprintf("%d dBm", m.snap.RSSI)
		command = m.snap.Command
		if m.snap.Distance != nil {
			distance = fmt.Sprintf("%.1f cm", *m.snap.Distance)
		}
	}
	// Signal readout is blanked once the link is declared lost.
	if m.state == session.StateDisconnected {
		rssi = ""
	}
	m.table.SetRows([]table.Row{
		{"Battery", battery, "Mode", string(m.mode)},
		{"Signal", rssi, "Speed", fmt.Sprintf("%d", m.speed)},
		{"Rover cmd", command, "Sent cmd", string(m.lastAction)},
		{"Distance", distance, "Link", m.linkCell()},
	})
}

func (m *model) linkCell() string {
	if m.failures > 0 {
		return fmt.Sprintf("%s (%d)", m.state, m.failures)
	}
	return string(m.state)
}

func (m *model) resizeViewport() {
	h := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.renderControls()) - 3
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
}

func (m *model) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		lines = append(lines, wordwrap.String(l, m.vp.Width))
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	m.vp.GotoBottom()
}

func (m model) View() string {
	if m.help {
		return m.renderHelp()
	}
	sections := []string{m.renderHeader(), m.renderControls()}
	if m.connectDialog {
		prompt := "Rover address: " + m.connectInput.View()
		if m.connectErr {
			prompt += "  " + bandRedStyle.Render("address must not be empty")
		}
		sections = append(sections, prompt)
	}
	sections = append(sections, m.vp.View(), dimStyle.Render("c connect · m manual · alt+a auto · esc E-STOP · ? help · q quit"))
	return strings.Join(sections, "\n")
}

func (m model) renderHeader() string {
	addr := m.address
	if addr == "" {
		addr = "(not connected)"
	}
	head := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(" roverctl "),
		"  ",
		dimStyle.Render(addr),
		"  ",
		m.stateBadge(),
	)
	return head + "\n" + m.table.View() + "\n" + m.renderDistance()
}

func (m model) stateBadge() string {
	switch m.state {
	case session.StateConnected:
		return badgeConnected.Render("connected")
	case session.StateDegraded:
		return badgeDegraded.Render(fmt.Sprintf("degraded %d", m.failures))
	case session.StateDisconnected:
		return badgeLost.Render("disconnected")
	default:
		return badgeNeutral.Render("connecting")
	}
}

// renderDistance shows the obstacle distance with its warning band. Band
// colors apply only in autonomous mode; manual mode shows the plain value.
func (m model) renderDistance() string {
	if m.snap == nil || m.snap.Distance == nil {
		return dimStyle.Render("distance: n/a")
	}
	text := fmt.Sprintf("distance: %.1f cm", *m.snap.Distance)
	if m.mode != rover.ModeAutonomous {
		return text
	}
	switch m.snap.Band {
	case session.BandRed:
		return bandRedStyle.Render(text + "  OBSTACLE")
	case session.BandOrange:
		return bandOrangeStyle.Render(text)
	case session.BandGreen:
		return bandGreenStyle.Render(text)
	default:
		return text
	}
}

// renderControls shows the manual control row in manual mode only;
// autonomous mode shows a passive banner instead.
func (m model) renderControls() string {
	if m.mode != rover.ModeManual {
		return dimStyle.Render("autonomous mode: rover self-navigating, manual controls disabled")
	}
	cells := make([]string, 0, len(controls))
	for _, c := range controls {
		style := controlStyle
		if m.flashing && c.dir == m.lastAction {
			style = controlHotStyle
		}
		cells = append(cells, style.Render(c.label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, cells...)
}

func (m model) renderHelp() string {
	return strings.Join([]string{
		titleStyle.Render(" roverctl keys "),
		"",
		"  w / up       drive forward (again to stop)",
		"  s / down     drive backward (again to stop)",
		"  a / left     turn left (again to stop)",
		"  d / right    turn right (again to stop)",
		"  space        stop",
		"  m            manual mode",
		"  alt+a        autonomous mode",
		"  + / -        speed up / down",
		"  esc          emergency stop (any mode)",
		"  c            set rover address",
		"  q            quit",
		"",
		dimStyle.Render("press ? or esc to close"),
	}, "\n")
}
