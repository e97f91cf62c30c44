// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// outputView is what the monitor knows about one station output
type outputView struct {
	enabled  *bool // nil until set from here or reported by a trip
	maxPower uint16
	current  float64
	power    float64
	seen     bool
}

// node represents a discovered station
type node struct {
	address  hplc.Address
	online   *bool
	lastSeen time.Time
	outputs  [hplc.OutputCount]outputView
}

// Implement list.Item interface
func (n node) Title() string { return n.address.String() }
func (n node) Description() string {
	switch {
	case n.online == nil:
		return "unknown"
	case *n.online:
		return "online"
	default:
		return "offline"
	}
}
func (n node) FilterValue() string { return n.address.String() }

// Focus targets
const (
	focusNodeList = iota
	focusLimitInput
)

// monitorModel is the Bubble Tea model of the monitor TUI
type monitorModel struct {
	link     *link.Link
	conv     *bl0906.Converter
	connInfo string

	nodes    map[hplc.Address]*node
	order    []hplc.Address
	nodeList list.Model

	errorLog      []logEntry
	maxLogEntries int

	limitInput   textinput.Model
	focusedField int

	busy     bool
	width    int
	height   int
	quitting bool
}

// Messages
type monitorTickMsg time.Time

type frameMsg struct {
	frame *hplc.Frame
}

type discoveredMsg struct {
	addrs  []hplc.Address
	online map[hplc.Address]bool
	err    error
}

type ackFailedMsg struct {
	err error
}

type commandResultMsg struct {
	target  hplc.Address
	what    string
	err     error
	applied func(n *node)
}

func initialMonitorModel(l *link.Link, conv *bl0906.Converter, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "2:1200"
	ti.CharLimit = 8
	ti.Width = 10

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	nodeList := list.New([]list.Item{}, delegate, 30, 10)
	nodeList.Title = "Stations"
	nodeList.SetShowStatusBar(false)
	nodeList.SetShowHelp(false)
	nodeList.SetFilteringEnabled(false)

	return monitorModel{
		link:          l,
		conv:          conv,
		connInfo:      connInfo,
		nodes:         make(map[hplc.Address]*node),
		nodeList:      nodeList,
		errorLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		limitInput:    ti,
		focusedField:  focusNodeList,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		tea.EnterAltScreen,
		m.discoverCmd(),
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// discoverCmd lists the network and pings every node
func (m monitorModel) discoverCmd() tea.Cmd {
	l := m.link
	return func() tea.Msg {
		msg := discoveredMsg{online: map[hplc.Address]bool{}}
		msg.err = l.Do(context.Background(), func(s *link.Session) error {
			addrs, err := s.Discover()
			if err != nil {
				return err
			}
			msg.addrs = addrs
			for _, a := range addrs {
				msg.online[a] = s.SendReliable(a, hplc.CodeHeartbeat, nil) == nil
			}
			return nil
		})
		return msg
	}
}

// sendCmd delivers one reliable command; applied runs on success
func (m monitorModel) sendCmd(target hplc.Address, what string, code byte, data []byte, applied func(n *node)) tea.Cmd {
	l := m.link
	return func() tea.Msg {
		err := l.Do(context.Background(), func(s *link.Session) error {
			return s.SendReliable(target, code, data)
		})
		return commandResultMsg{target: target, what: what, err: err, applied: applied}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.nodeList.SetSize(32, max(m.height-14, 6))

	case monitorTickMsg:
		return m, monitorTickCmd()

	case frameMsg:
		m.handleFrame(msg.frame)

	case ackFailedMsg:
		m.addLogEntry(fmt.Sprintf("Acknowledgment failed: %v", msg.err), true)

	case discoveredMsg:
		m.busy = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Discovery failed: %v", msg.err), true)
			break
		}
		for _, a := range msg.addrs {
			n := m.node(a)
			up := msg.online[a]
			n.online = &up
		}
		m.addLogEntry(fmt.Sprintf("Discovered %d node(s)", len(msg.addrs)), false)
		m.updateNodeList()

	case commandResultMsg:
		m.busy = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s %s: %v", msg.target, msg.what, msg.err), true)
			break
		}
		if msg.applied != nil {
			msg.applied(m.node(msg.target))
		}
		m.addLogEntry(fmt.Sprintf("%s %s: acknowledged", msg.target, msg.what), false)
		m.updateNodeList()
	}

	var cmd tea.Cmd
	if m.focusedField == focusLimitInput {
		m.limitInput, cmd = m.limitInput.Update(msg)
	} else {
		m.nodeList, cmd = m.nodeList.Update(msg)
	}
	return m, cmd
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focusedField == focusLimitInput {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			m.focusedField = focusNodeList
			m.limitInput.Blur()
			return m, nil
		case "enter":
			m.focusedField = focusNodeList
			m.limitInput.Blur()
			value := m.limitInput.Value()
			m.limitInput.Reset()
			return m.sendLimit(value)
		}
		var cmd tea.Cmd
		m.limitInput, cmd = m.limitInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "d":
		if !m.busy {
			m.busy = true
			m.addLogEntry("Discovering...", false)
			return m, m.discoverCmd()
		}
		return m, nil

	case "p":
		if n := m.selected(); n != nil && !m.busy {
			m.busy = true
			addr := n.address
			return m, m.sendCmd(addr, "heartbeat", hplc.CodeHeartbeat, nil, func(n *node) {
				up := true
				n.online = &up
			})
		}
		return m, nil

	case "1", "2", "3":
		idx := int(msg.String()[0] - '0')
		return m.toggleOutput(idx)

	case "r", "s":
		if n := m.selected(); n != nil && !m.busy {
			on := msg.String() == "r"
			m.busy = true
			return m, m.sendCmd(n.address, "push "+onOff(on), hplc.CodePushSwitch, hplc.PushSwitchPayload(on), nil)
		}
		return m, nil

	case "l":
		if m.selected() != nil {
			m.focusedField = focusLimitInput
			return m, m.limitInput.Focus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.nodeList, cmd = m.nodeList.Update(msg)
	return m, cmd
}

func (m monitorModel) toggleOutput(idx int) (tea.Model, tea.Cmd) {
	n := m.selected()
	if n == nil || m.busy {
		return m, nil
	}
	on := true
	if e := n.outputs[idx-1].enabled; e != nil {
		on = !*e
	}
	m.busy = true
	return m, m.sendCmd(n.address, fmt.Sprintf("output %d %s", idx, onOff(on)),
		hplc.CodeSetOutput, hplc.SetOutputPayload(idx, on), func(n *node) {
			n.outputs[idx-1].enabled = &on
		})
}

// sendLimit parses "<output>:<watts>" and sends a set max power command
func (m monitorModel) sendLimit(value string) (tea.Model, tea.Cmd) {
	n := m.selected()
	if n == nil || m.busy {
		return m, nil
	}
	idx, watts, err := parseLimit(value)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	m.busy = true
	return m, m.sendCmd(n.address, fmt.Sprintf("output %d limit %dW", idx, watts),
		hplc.CodeSetMaxPower, hplc.SetMaxPowerPayload(idx, watts), func(n *node) {
			n.outputs[idx-1].maxPower = watts
		})
}

func parseLimit(value string) (int, uint16, error) {
	out, watts, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("limit must be <output>:<watts>, got %q", value)
	}
	idx, err := strconv.Atoi(out)
	if err != nil || idx < 1 || idx > hplc.OutputCount {
		return 0, 0, fmt.Errorf("invalid output %q", out)
	}
	w, err := strconv.ParseUint(watts, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid watts %q", watts)
	}
	return idx, uint16(w), nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// handleFrame records a frame delivered by the link
func (m *monitorModel) handleFrame(f *hplc.Frame) {
	switch f.ControlCode() {
	case hplc.CodeCurrent, hplc.CodePower:
		t, err := hplc.ParseTelemetry(f)
		if err != nil || t.Output < 1 || t.Output > hplc.OutputCount {
			m.addLogEntry(fmt.Sprintf("Malformed telemetry: % X", f.Data()), true)
			return
		}
		n := m.node(t.Station)
		n.lastSeen = f.Timestamp()
		o := &n.outputs[t.Output-1]
		o.seen = true
		if f.ControlCode() == hplc.CodeCurrent {
			o.current = m.conv.Current(t.Raw)
		} else {
			o.power = m.conv.Power(t.Raw)
		}

	case hplc.CodeTrip:
		station, idx, err := hplc.ParseTrip(f)
		if err != nil || idx < 1 || idx > hplc.OutputCount {
			m.addLogEntry(fmt.Sprintf("Malformed trip: % X", f.Data()), true)
			return
		}
		n := m.node(station)
		off := false
		n.outputs[idx-1].enabled = &off
		n.lastSeen = f.Timestamp()
		m.addLogEntry(fmt.Sprintf("%s output %d TRIPPED", station, idx), true)
		m.updateNodeList()

	default:
		m.addLogEntry(fmt.Sprintf("0x%02X %s % X", f.ControlCode(), hplc.CodeName(f.ControlCode()), f.Data()), false)
	}
}

func (m *monitorModel) node(a hplc.Address) *node {
	n, ok := m.nodes[a]
	if !ok {
		n = &node{address: a}
		m.nodes[a] = n
		m.order = append(m.order, a)
		m.updateNodeList()
	}
	return n
}

func (m *monitorModel) selected() *node {
	item, ok := m.nodeList.SelectedItem().(node)
	if !ok {
		return nil
	}
	return m.nodes[item.address]
}

func (m *monitorModel) updateNodeList() {
	items := make([]list.Item, len(m.order))
	for i, a := range m.order {
		items[i] = *m.nodes[a]
	}
	m.nodeList.SetItems(items)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("PLCSTRIP - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | d discover  p ping  1-3 toggle  l limit  r/s push on/off  q quit", m.connInfo)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStatistics(statsLabelStyle, statsValueStyle, errorStyle)))
	s.WriteString("\n")

	left := boxStyle.Render(m.nodeList.View())
	right := boxStyle.Render(m.renderOutputs(statsLabelStyle, statsValueStyle, errorStyle, headerStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	s.WriteString("\n")

	if m.focusedField == focusLimitInput {
		s.WriteString(statsLabelStyle.Render("Limit (output:watts): "))
		s.WriteString(m.limitInput.View())
		s.WriteString("\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(m.renderEventLog(headerStyle, errorStyle, warningStyle)))

	return s.String()
}

func (m monitorModel) renderStatistics(label, value, errorStyle lipgloss.Style) string {
	c := m.link.Stats().Snapshot()
	errs := c.ChecksumErrors + c.FramingErrors

	errText := value.Render(fmt.Sprintf("%d", errs))
	if errs > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d", errs))
	}
	ackText := value.Render(fmt.Sprintf("%d/%d", c.AckSuccesses, c.AckSuccesses+c.AckTimeouts))
	if c.AckTimeouts > 0 {
		ackText = errorStyle.Render(fmt.Sprintf("%d/%d", c.AckSuccesses, c.AckSuccesses+c.AckTimeouts))
	}

	return fmt.Sprintf("%s %s   %s %s   %s %s   %s %s   %s %s",
		label.Render("Rx:"), value.Render(fmt.Sprintf("%d", c.FramesReceived)),
		label.Render("Tx:"), value.Render(fmt.Sprintf("%d", c.FramesSent)),
		label.Render("Errors:"), errText,
		label.Render("ACKs:"), ackText,
		label.Render("Rate:"), value.Render(fmt.Sprintf("%.1f frames/s", c.FrameRate)),
	)
}

func (m monitorModel) renderOutputs(label, value, errorStyle, header lipgloss.Style) string {
	n := m.selected()
	if n == nil {
		return header.Render("No station selected")
	}

	var b strings.Builder
	b.WriteString(label.Render("Station " + n.address.String()))
	b.WriteString("\n")
	if !n.lastSeen.IsZero() {
		b.WriteString(header.Render("last frame " + n.lastSeen.Format("15:04:05")))
		b.WriteString("\n")
	}
	for i, o := range n.outputs {
		state := header.Render("?")
		if o.enabled != nil {
			if *o.enabled {
				state = value.Render("ON ")
			} else {
				state = errorStyle.Render("OFF")
			}
		}
		limit := "none"
		if o.maxPower > 0 {
			limit = fmt.Sprintf("%dW", o.maxPower)
		}
		reading := header.Render("no readings")
		if o.seen {
			reading = value.Render(fmt.Sprintf("%.2f A  %.2f W", o.current, o.power))
		}
		fmt.Fprintf(&b, "%s %s  limit %-6s %s\n", label.Render(fmt.Sprintf("Output %d:", i+1)), state, limit, reading)
	}
	return b.String()
}

func (m monitorModel) renderEventLog(header, errorStyle, warningStyle lipgloss.Style) string {
	logHeight := max(m.height-22, 5)
	start := max(len(m.errorLog)-logHeight, 0)

	if len(m.errorLog) == 0 {
		return header.Render("  (no events yet)")
	}
	var b strings.Builder
	for _, entry := range m.errorLog[start:] {
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", header.Render(timestamp), errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", header.Render(timestamp), warningStyle.Render("ℹ "+entry.message))
		}
	}
	return b.String()
}
