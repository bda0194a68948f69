package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/groundlink/internal/iface"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/sink"
)

// DefaultMonitorRows is the packet history kept before the terminal size
// is known.
const DefaultMonitorRows = 20

// PacketMsg carries one packet into the monitor.
type PacketMsg struct {
	Record sink.Record
}

// DiscardMsg carries one discard event into the monitor.
type DiscardMsg struct {
	Interface string
	Event     protocol.DiscardEvent
}

// StatsMsg refreshes one interface's link state and counters.
type StatsMsg struct {
	Interface string
	Connected bool
	Stats     iface.Stats
}

type monitorKeyMap struct {
	Pause key.Binding
	Clear key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Clear, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Clear},
		{k.Help, k.Quit},
	}
}

type linkState struct {
	connected   bool
	stats       iface.Stats
	discards    int
	lastDiscard *protocol.DiscardEvent
}

// MonitorModel is the bubbletea model behind the live packet view.
type MonitorModel struct {
	Title string

	rows    []sink.Record
	maxRows int
	held    int // Packets that arrived while paused
	paused  bool

	links map[string]*linkState

	width   int
	height  int
	spinner spinner.Model
	help    help.Model
	keys    monitorKeyMap
}

// NewMonitorModel creates an empty monitor
func NewMonitorModel(title string) MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return MonitorModel{
		Title:   title,
		maxRows: DefaultMonitorRows,
		links:   make(map[string]*linkState),
		width:   GetTerminalWidth(),
		spinner: s,
		help:    help.New(),
		keys: monitorKeyMap{
			Pause: key.NewBinding(
				key.WithKeys("p", " "),
				key.WithHelp("p/space", "pause"),
			),
			Clear: key.NewBinding(
				key.WithKeys("c"),
				key.WithHelp("c", "clear"),
			),
			Help: key.NewBinding(
				key.WithKeys("?"),
				key.WithHelp("?", "more"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "ctrl+c", "esc"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init implements tea.Model
func (m MonitorModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.height = msg.Height
		m.maxRows = max(msg.Height-8-len(m.links), 3)
		m.trim()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			if !m.paused {
				m.held = 0
			}
		case key.Matches(msg, m.keys.Clear):
			m.rows = nil
			m.held = 0
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case PacketMsg:
		if m.paused {
			m.held++
			return m, nil
		}
		m.rows = append(m.rows, msg.Record)
		m.trim()
		return m, nil

	case DiscardMsg:
		link := m.link(msg.Interface)
		ev := msg.Event
		link.discards++
		link.lastDiscard = &ev
		return m, nil

	case StatsMsg:
		link := m.link(msg.Interface)
		link.connected = msg.Connected
		link.stats = msg.Stats
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *MonitorModel) link(name string) *linkState {
	l, ok := m.links[name]
	if !ok {
		l = &linkState{}
		m.links[name] = l
	}
	return l
}

func (m *MonitorModel) trim() {
	if extra := len(m.rows) - m.maxRows; extra > 0 {
		m.rows = append(m.rows[:0:0], m.rows[extra:]...)
	}
}

// Rows returns the packets currently on screen, oldest first.
func (m MonitorModel) Rows() []sink.Record {
	return m.rows
}

// Paused reports whether new packets are being held back.
func (m MonitorModel) Paused() bool {
	return m.paused
}

// View implements tea.Model
func (m MonitorModel) View() string {
	var b strings.Builder

	title := HeaderTitleStyle.Render(strings.ToUpper(m.Title))
	if m.paused {
		title += "  " + PausedStyle.Render(fmt.Sprintf("PAUSED (%d held)", m.held))
	}
	b.WriteString(title + "\n\n")

	if len(m.links) > 0 {
		b.WriteString(m.renderLinks() + "\n\n")
	}

	if len(m.rows) == 0 {
		b.WriteString("  " + m.spinner.View() + " " + MutedStyle.Render("Waiting for packets...") + "\n")
	} else {
		b.WriteString(TableHeaderStyle.Render(formatRow("TIME", "", "INTERFACE", "PACKET", "LEN", "DATA", m.width)) + "\n")
		for _, rec := range m.rows {
			b.WriteString(renderRecord(rec, m.width) + "\n")
		}
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m MonitorModel) renderLinks() string {
	names := make([]string, 0, len(m.links))
	for name := range m.links {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names)+1)
	lines = append(lines, TableHeaderStyle.Render(fmt.Sprintf("  %-16s %-6s %10s %10s %10s %10s", "LINK", "STATE", "RX PKTS", "TX PKTS", "RX BYTES", "DISCARDS")))
	for _, name := range names {
		l := m.links[name]
		state := lipgloss.NewStyle().Foreground(ErrorColor).Render(fmt.Sprintf("%-6s", "down"))
		if l.connected {
			state = lipgloss.NewStyle().Foreground(SuccessColor).Render(fmt.Sprintf("%-6s", "up"))
		}
		line := fmt.Sprintf("  %-16s %s %10d %10d %10d %10d",
			truncate(name, 16), state,
			l.stats.PacketsRead, l.stats.PacketsWritten, l.stats.BytesRead, max(l.stats.Discards, uint64(l.discards)))
		if l.lastDiscard != nil {
			line += DiscardStyle.Render(fmt.Sprintf("  last discard %d bytes, head %s", l.lastDiscard.Length, l.lastDiscard.LeadingHex()))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// FormatRecord renders one packet as a plain line, the form used when
// stdout is not a terminal.
func FormatRecord(rec sink.Record) string {
	marker := ReadMarker
	if rec.Direction == sink.DirectionWrite {
		marker = WriteMarker
	}
	return fmt.Sprintf("%s %s %s %s/%s len=%d %s",
		rec.Timestamp.Format("15:04:05.000"), marker, rec.Interface, rec.Target, rec.Packet, rec.Length, rec.Hex)
}

func renderRecord(rec sink.Record, width int) string {
	marker, style := ReadMarker, ReadRowStyle
	if rec.Direction == sink.DirectionWrite {
		marker, style = WriteMarker, WriteRowStyle
	}
	row := formatRow(
		rec.Timestamp.Format("15:04:05.000"),
		marker,
		rec.Interface,
		rec.Target+"/"+rec.Packet,
		fmt.Sprintf("%d", rec.Length),
		rec.Hex,
		width,
	)
	return style.Render(row)
}

func formatRow(ts, marker, itf, pkt, length, data string, width int) string {
	head := fmt.Sprintf("  %-12s %1s %-16s %-20s %5s ", ts, marker, truncate(itf, 16), truncate(pkt, 20), length)
	return head + truncate(data, max(width-lipgloss.Width(head), 16))
}

// Monitor runs MonitorModel as a program and feeds it from interfaces. It
// implements sink.Sink so it can sit in a sink.Multi next to the others.
type Monitor struct {
	program *tea.Program
}

// NewMonitor creates a monitor that exits when ctx is cancelled.
func NewMonitor(ctx context.Context, title string, opts ...tea.ProgramOption) *Monitor {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	return &Monitor{program: tea.NewProgram(NewMonitorModel(title), opts...)}
}

// Run blocks until the user quits or the context is cancelled. Sends block
// until Run has started, so start it before the interfaces.
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Publish implements sink.Sink
func (m *Monitor) Publish(_ context.Context, rec sink.Record) error {
	m.program.Send(PacketMsg{Record: rec})
	return nil
}

// Close implements sink.Sink
func (m *Monitor) Close() error {
	m.program.Quit()
	return nil
}

// Reporter returns a discard reporter that feeds the named interface's row.
func (m *Monitor) Reporter(ifaceName string) protocol.DiscardReporter {
	return protocol.DiscardReporterFunc(func(ev protocol.DiscardEvent) {
		m.program.Send(DiscardMsg{Interface: ifaceName, Event: ev})
	})
}

// UpdateStats refreshes the link table.
func (m *Monitor) UpdateStats(itf *iface.Interface) {
	m.program.Send(StatsMsg{Interface: itf.Name(), Connected: itf.Connected(), Stats: itf.Stats()})
}

// PollStats calls UpdateStats for every interface each interval until ctx
// is done.
func (m *Monitor) PollStats(ctx context.Context, interval time.Duration, itfs ...*iface.Interface) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, itf := range itfs {
			m.UpdateStats(itf)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
