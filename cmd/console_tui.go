// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/rfdlink/internal/store"
	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	gpsPollSeconds  = 3 // GPS poll period while polling is on
	maxLocations    = 5
	maxEventEntries = 100
)

// Focus states
const (
	focusMenu = iota
	focusImages
)

// Menu actions
const (
	actionLatest   = "latest"
	actionListing  = "listing"
	actionGet      = "settings-get"
	actionSet      = "settings-set"
	actionPing     = "ping"
	actionTimeSync = "timesync"
	actionGPS      = "gps"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// action is one console menu entry
type action struct {
	id    string
	title string
	desc  string
}

// Implement list.Item interface
func (a action) Title() string       { return a.title }
func (a action) Description() string { return a.desc }
func (a action) FilterValue() string { return a.title }

var consoleActions = []action{
	{actionLatest, "Latest image", "Receive the most recent image"},
	{actionListing, "Image listing", "Download the image directory"},
	{actionGet, "Get settings", "Download camera settings"},
	{actionSet, "Set settings", "Upload the saved settings file"},
	{actionPing, "Connection test", "Measure round-trip latency"},
	{actionTimeSync, "Time sync", "Compare payload and local clocks"},
	{actionGPS, "GPS fix", "Request one location fix"},
}

// imageEntry is one line of the last listing
type imageEntry struct {
	name    string
	highRes bool
}

func (e imageEntry) Title() string { return e.name }
func (e imageEntry) Description() string {
	if e.highRes {
		return "high resolution"
	}
	return "thumbnail"
}
func (e imageEntry) FilterValue() string { return e.name }

// eventEntry is one console event log line
type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// consoleModel is the Bubble Tea model for the operator console
type consoleModel struct {
	lm       *linkManager
	connInfo string

	menu   list.Model
	images list.Model
	focus  int

	ops       map[string]consoleOp
	stats     *rfdlink.Statistics
	events    []eventEntry
	locations []rfdlink.Location

	busy           string // running operation, empty when idle
	pendingFetch   string // high-resolution image awaiting confirmation
	gpsPolling     bool
	lastPoll       time.Time
	connectionLost bool

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

// opDoneMsg reports the outcome of one dispatcher operation
type opDoneMsg struct {
	op     string
	lines  []string
	images []string
	err    error
}

type locationMsg rfdlink.Location

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialConsoleModel(lm *linkManager, connInfo string) consoleModel {
	items := make([]list.Item, len(consoleActions))
	for i, a := range consoleActions {
		items[i] = a
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)

	menu := list.New(items, delegate, 32, 16)
	menu.Title = "Operations"
	menu.SetShowStatusBar(false)
	menu.SetShowHelp(false)
	menu.SetFilteringEnabled(false)

	images := list.New([]list.Item{}, delegate, 32, 16)
	images.Title = "Images"
	images.SetShowStatusBar(false)
	images.SetShowHelp(false)
	images.SetFilteringEnabled(false)

	var stats *rfdlink.Statistics
	var ops map[string]consoleOp
	if lm != nil && lm.rt != nil {
		stats = lm.rt.stats
		ops = lm.ops()
	}

	return consoleModel{
		lm:       lm,
		connInfo: connInfo,
		menu:     menu,
		images:   images,
		focus:    focusMenu,
		ops:      ops,
		stats:    stats,
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return consoleTickCmd()
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case consoleTickMsg:
		cmds := []tea.Cmd{consoleTickCmd()}
		if m.gpsPolling && m.busy == "" && !m.connectionLost && time.Since(m.lastPoll) >= gpsPollSeconds*time.Second {
			m.lastPoll = time.Now()
			cmds = append(cmds, m.start(actionGPS))
		}
		return m, tea.Batch(cmds...)

	case opDoneMsg:
		m.finish(msg)

	case locationMsg:
		m.locations = append(m.locations, rfdlink.Location(msg))
		if len(m.locations) > maxLocations {
			m.locations = m.locations[len(m.locations)-maxLocations:]
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addEvent("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addEvent("Reconnected", false)
	}

	return m, nil
}

func (m consoleModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		if m.focus == focusMenu && len(m.images.Items()) > 0 {
			m.focus = focusImages
		} else {
			m.focus = focusMenu
		}
		return m, nil

	case "g":
		m.gpsPolling = !m.gpsPolling
		if m.gpsPolling {
			m.addEvent(fmt.Sprintf("GPS polling every %ds", gpsPollSeconds), false)
		} else {
			m.addEvent("GPS polling stopped", false)
		}
		return m, nil

	case "r":
		if m.stats != nil {
			m.stats.Reset()
			m.addEvent("Statistics reset", false)
		}
		return m, nil

	case "y":
		if m.pendingFetch != "" {
			name := m.pendingFetch
			m.pendingFetch = ""
			return m, m.fetch(name)
		}

	case "n", "esc":
		if m.pendingFetch != "" {
			m.addEvent(fmt.Sprintf("Fetch of %s cancelled", m.pendingFetch), false)
			m.pendingFetch = ""
			return m, nil
		}

	case "enter":
		cmd := m.handleEnter()
		return m, cmd
	}

	var cmd tea.Cmd
	if m.focus == focusImages {
		m.images, cmd = m.images.Update(msg)
	} else {
		m.menu, cmd = m.menu.Update(msg)
	}
	return m, cmd
}

func (m *consoleModel) handleEnter() tea.Cmd {
	if m.focus == focusImages {
		entry, ok := m.images.SelectedItem().(imageEntry)
		if !ok {
			return nil
		}
		if entry.highRes {
			m.pendingFetch = entry.name
			m.addEvent(fmt.Sprintf("%s is high resolution: press y to fetch, n to cancel", entry.name), false)
			return nil
		}
		return m.fetch(entry.name)
	}

	a, ok := m.menu.SelectedItem().(action)
	if !ok {
		return nil
	}
	return m.start(a.id)
}

// start marks op running and returns the command that performs it.
func (m *consoleModel) start(op string) tea.Cmd {
	if m.connectionLost {
		m.addEvent("Cannot start operation: connection lost", true)
		return nil
	}
	if m.busy != "" {
		m.addEvent(fmt.Sprintf("Link busy with %s", m.busy), true)
		return nil
	}
	fn, ok := m.ops[op]
	if !ok || m.lm == nil {
		return nil
	}
	m.busy = op
	return m.lm.do(op, fn)
}

func (m *consoleModel) fetch(name string) tea.Cmd {
	if m.connectionLost || m.busy != "" || m.lm == nil {
		m.addEvent("Cannot fetch now: link busy or disconnected", true)
		return nil
	}
	m.busy = "fetch"
	m.addEvent(fmt.Sprintf("Fetching %s", name), false)
	return m.lm.do("fetch", m.lm.fetchOp(name))
}

// finish records an operation outcome.
func (m *consoleModel) finish(msg opDoneMsg) {
	if m.busy == msg.op {
		m.busy = ""
	}
	for _, line := range msg.lines {
		m.addEvent(line, false)
	}
	if msg.err != nil {
		m.addEvent(fmt.Sprintf("%s failed: %v", msg.op, msg.err), true)
	}
	if msg.images != nil {
		items := make([]list.Item, len(msg.images))
		for i, name := range msg.images {
			items[i] = imageEntry{name: name, highRes: store.IsHighResolution(name)}
		}
		m.images.SetItems(items)
	}
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("RFDLINK CONSOLE"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch g=gps r=reset", connStatus)))
	s.WriteString("\n")

	status := valueStyle.Render("idle")
	if m.busy != "" {
		status = warningStyle.Render(m.busy + "...")
	}
	gps := "off"
	if m.gpsPolling {
		gps = fmt.Sprintf("every %ds", gpsPollSeconds)
	}
	s.WriteString(fmt.Sprintf(" %s %s  %s %s\n\n",
		labelStyle.Render("Link:"), status,
		labelStyle.Render("GPS polling:"), valueStyle.Render(gps)))

	// Menu | images
	menuStyle, imageStyle := boxStyle, boxStyle
	if m.focus == focusMenu {
		menuStyle = focusedBoxStyle
	} else {
		imageStyle = focusedBoxStyle
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		menuStyle.Render(m.menu.View()),
		" ",
		imageStyle.Render(m.images.View()),
	))
	s.WriteString("\n")

	s.WriteString(m.renderStatistics(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderLocations(labelStyle, headerStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderEvents(labelStyle, headerStyle, warningStyle, errorStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m consoleModel) renderStatistics(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	if m.stats == nil {
		return ""
	}
	c := m.stats.Snapshot()

	var acceptedPercent float64
	if total := c.ChunksAccepted + c.ChunksRejected; total > 0 {
		acceptedPercent = float64(c.ChunksAccepted) * 100.0 / float64(total)
	}

	rejected := valueStyle.Render("0")
	if c.ChunksRejected > 0 {
		rejected = errorStyle.Render(fmt.Sprintf("%d", c.ChunksRejected))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Commands:"), valueStyle.Render(fmt.Sprintf("%d", c.Commands)),
		labelStyle.Render("Chunks:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.ChunksAccepted, acceptedPercent)),
		labelStyle.Render("Rejected:"), rejected,
		labelStyle.Render("Resyncs:"), valueStyle.Render(fmt.Sprintf("%d", c.Resyncs)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f chunk/s", c.ChunkRate)),
	)
	if c.LastPingMean > 0 {
		content += fmt.Sprintf("  %s %s", labelStyle.Render("RTT:"), valueStyle.Render(c.LastPingMean.Round(time.Millisecond).String()))
	}
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m consoleModel) renderLocations(labelStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("LOCATIONS"))
	s.WriteString("\n")
	if len(m.locations) == 0 {
		s.WriteString(headerStyle.Render("  (no location blocks yet)"))
	}
	for i, loc := range m.locations {
		if i > 0 {
			s.WriteString("\n")
		}
		s.WriteString(rfdlink.FormatLocation(loc))
	}
	return boxStyle.Width(m.width - 4).Render(s.String())
}

func (m consoleModel) renderEvents(labelStyle, headerStyle, warningStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := 8
	if len(m.events) < logHeight {
		logHeight = len(m.events)
	}

	if len(m.events) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.events[len(m.events)-logHeight:] {
		icon, style := "i", warningStyle
		if entry.isError {
			icon, style = "x", errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Operations
//////////////////////////////////////////////////////////////

type consoleOp = func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg

// ops maps menu actions to dispatcher operations.
func (lm *linkManager) ops() map[string]consoleOp {
	st := lm.rt.store
	return map[string]consoleOp{
		actionLatest: func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg {
			xfer, err := d.RequestLatest(ctx)
			if xfer == nil {
				return opDoneMsg{err: err}
			}
			name := st.ResolveImageName("", xfer.Hint, time.Now())
			return imageDone(st, xfer.Result, name, err)
		},
		actionListing: func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg {
			w, path, err := st.CreateListing("")
			if err != nil {
				return opDoneMsg{err: err}
			}
			defer w.Close()
			entries, err := d.RequestListing(ctx, w)
			if entries == nil {
				entries = []string{}
			}
			return opDoneMsg{
				lines:  []string{fmt.Sprintf("Listing: %d entries saved to %s", len(entries), path)},
				images: entries,
				err:    err,
			}
		},
		actionGet: func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg {
			dl, err := d.GetSettings(ctx)
			if err != nil {
				return opDoneMsg{err: err}
			}
			if err := st.SaveSettings(dl.Settings); err != nil {
				return opDoneMsg{err: err}
			}
			return opDoneMsg{lines: []string{"Settings: " + settingsSummary(dl.Settings)}}
		},
		actionSet: func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg {
			s, err := st.LoadSettings()
			if err != nil {
				return opDoneMsg{err: err}
			}
			if err := d.SetSettings(ctx, s); err != nil {
				return opDoneMsg{err: err}
			}
			return opDoneMsg{lines: []string{"Settings applied: " + settingsSummary(s)}}
		},
		actionPing: func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg {
			r, err := d.ConnectionTest(ctx, lm.rt.cfg.Protocol.PingCount)
			if err != nil {
				return opDoneMsg{err: err}
			}
			return opDoneMsg{lines: []string{pingSummary(r)}}
		},
		actionTimeSync: func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg {
			r, err := d.TimeSync(ctx)
			var lines []string
			if r != nil && r.Remote != "" {
				for _, line := range strings.Split(strings.TrimRight(rfdlink.FormatTimeSync(r), "\n"), "\n") {
					lines = append(lines, strings.TrimSpace(line))
				}
			}
			if err == nil {
				lines = append(lines, pingSummary(r.Ping))
			}
			return opDoneMsg{lines: lines, err: err}
		},
		actionGPS: func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg {
			_, err := d.RequestGPS(ctx)
			return opDoneMsg{err: err}
		},
	}
}

func (lm *linkManager) fetchOp(name string) consoleOp {
	st := lm.rt.store
	return func(ctx context.Context, d *rfdlink.Dispatcher) opDoneMsg {
		xfer, err := d.RequestSpecific(ctx, name)
		if xfer == nil {
			return opDoneMsg{err: err}
		}
		return imageDone(st, xfer.Result, st.ResolveImageName("", xfer.Name, time.Now()), err)
	}
}

// imageDone saves a transfer and summarizes it as an opDoneMsg.
func imageDone(st *store.Store, r *rfdlink.TransferResult, name string, xferErr error) opDoneMsg {
	msg := opDoneMsg{err: xferErr}
	if r == nil {
		return msg
	}

	status := "complete"
	switch {
	case r.Aborted:
		status = "aborted"
	case r.Truncated:
		status = "truncated"
	}
	msg.lines = append(msg.lines, fmt.Sprintf("Transfer %s: %d bytes, %d chunks, %d rejected",
		status, len(r.Data), r.Chunks, r.Rejected))

	if len(r.Data) == 0 {
		return msg
	}
	path, err := st.SaveImage(name, r.Data)
	switch {
	case path == "":
		if msg.err == nil {
			msg.err = err
		}
	case err != nil:
		msg.lines = append(msg.lines, fmt.Sprintf("Saved %s (%v)", path, err))
	default:
		msg.lines = append(msg.lines, "Saved "+path)
	}
	return msg
}

func settingsSummary(s rfdlink.Settings) string {
	parts := make([]string, 0, rfdlink.SettingsFieldCount)
	for _, f := range s.Fields() {
		parts = append(parts, fmt.Sprintf("%s=%d", f.Name, f.Value))
	}
	return strings.Join(parts, " ")
}

func pingSummary(r *rfdlink.PingResult) string {
	if r == nil {
		return "Connection test: no samples"
	}
	return fmt.Sprintf("Connection test: %d pings, mean %v (min %v, max %v)",
		len(r.Samples),
		r.Mean.Round(time.Millisecond),
		r.Min.Round(time.Millisecond),
		r.Max.Round(time.Millisecond))
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *consoleModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.events) > maxEventEntries {
		m.events = m.events[len(m.events)-maxEventEntries:]
	}
}

func (m *consoleModel) updateListSize() {
	listHeight := m.height / 2
	if listHeight < 8 {
		listHeight = 8
	}
	m.menu.SetSize(32, listHeight)
	m.images.SetSize(32, listHeight)
}
