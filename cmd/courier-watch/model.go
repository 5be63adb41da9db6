// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/courier-foundation/courier/client"
	"github.com/courier-foundation/courier/lib/codec"
	"github.com/courier-foundation/courier/wire"
)

// feedCapacity bounds the scrollback held in memory. Older entries
// fall off the top.
const feedCapacity = 1000

// pulseInterval drives the connection indicator animation while the
// client is away from the connected state.
const pulseInterval = 500 * time.Millisecond

// noticeFadeDelay is how long a log record stays in the footer before
// the help line returns.
const noticeFadeDelay = 5 * time.Second

// updateMsg carries one pushed update into the feed. Sent by the
// dispatcher handler via program.Send.
type updateMsg struct {
	update wire.Update
}

// connStateMsg reports a connection state transition.
type connStateMsg struct {
	state client.State
}

// connDoneMsg reports that the client stopped for good (its state
// channel closed). The program quits; main reports the reason.
type connDoneMsg struct{}

// pulseTickMsg blinks the connection indicator.
type pulseTickMsg struct{}

// noticeFadeMsg clears the footer log notice.
type noticeFadeMsg struct{}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	HalfUp   key.Binding
	HalfDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Follow   key.Binding
	Quit     key.Binding
}

var defaultKeyMap = keyMap{
	Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	HalfUp:   key.NewBinding(key.WithKeys("ctrl+u", "pgup"), key.WithHelp("^u", "half page up")),
	HalfDown: key.NewBinding(key.WithKeys("ctrl+d", "pgdown"), key.WithHelp("^d", "half page down")),
	Top:      key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
	Bottom:   key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
	Follow:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "follow")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// theme is the color palette. ANSI 256 codes for broad terminal
// compatibility.
type theme struct {
	title      lipgloss.Style
	faint      lipgloss.Style
	updateType lipgloss.Style
	good       lipgloss.Style
	warn       lipgloss.Style
	bad        lipgloss.Style
}

var defaultTheme = theme{
	title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
	faint:      lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	updateType: lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	good:       lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
	warn:       lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	bad:        lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
}

// feedEntry is one received update, rendered to text at arrival so
// resizes only re-truncate instead of re-decoding payloads.
type feedEntry struct {
	received time.Time
	kind     string
	pts      int64
	body     string
}

func newFeedEntry(update wire.Update) feedEntry {
	return feedEntry{
		received: time.Now(),
		kind:     update.Type,
		pts:      update.Pts,
		body:     renderPayload(update.Payload),
	}
}

// renderPayload shows the update body in CBOR diagnostic notation,
// which reads close to JSON. Payloads that fail to decode render as a
// hex length marker rather than hiding the entry.
func renderPayload(payload codec.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	text, err := codec.Diagnose(payload)
	if err != nil {
		return fmt.Sprintf("(%d undecodable bytes)", len(payload))
	}
	return text
}

type model struct {
	endpoint string
	keys     keyMap
	theme    theme

	state   client.State
	stopped bool
	pulse   bool
	ticking bool

	feed   viewport.Model
	ready  bool
	width  int
	height int

	entries []feedEntry
	total   int
	dropped int

	// follow pins the viewport to the newest entry. Scrolling up
	// releases it; scrolling back to the bottom re-engages it.
	follow bool

	notice      string
	noticeLevel slog.Level
}

func newModel(endpoint string) model {
	return model{
		endpoint: endpoint,
		keys:     defaultKeyMap,
		theme:    defaultTheme,
		state:    client.StateDisconnected,
		follow:   true,
	}
}

func (m model) Init() tea.Cmd {
	return pulseTick()
}

func pulseTick() tea.Cmd {
	return tea.Tick(pulseInterval, func(time.Time) tea.Msg {
		return pulseTickMsg{}
	})
}

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		// Two header lines, one footer line.
		m.feed.Width = message.Width
		m.feed.Height = message.Height - 3
		if m.feed.Height < 1 {
			m.feed.Height = 1
		}
		m.ready = true
		m.refill()
		return m, nil

	case updateMsg:
		m.total++
		m.entries = append(m.entries, newFeedEntry(message.update))
		if len(m.entries) > feedCapacity {
			m.dropped += len(m.entries) - feedCapacity
			m.entries = m.entries[len(m.entries)-feedCapacity:]
		}
		m.refill()
		return m, nil

	case connStateMsg:
		m.state = message.state
		if m.state != client.StateConnected && !m.ticking {
			m.ticking = true
			return m, pulseTick()
		}
		return m, nil

	case connDoneMsg:
		m.stopped = true
		return m, tea.Quit

	case pulseTickMsg:
		if m.state == client.StateConnected {
			m.ticking = false
			return m, nil
		}
		m.pulse = !m.pulse
		m.ticking = true
		return m, pulseTick()

	case logMsg:
		m.notice = message.summary
		m.noticeLevel = message.level
		return m, tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
			return noticeFadeMsg{}
		})

	case noticeFadeMsg:
		m.notice = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(message)
	}

	return m, nil
}

func (m model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(message, m.keys.Follow):
		m.follow = !m.follow
		if m.follow {
			m.feed.GotoBottom()
		}

	case key.Matches(message, m.keys.Up):
		m.feed.LineUp(1)
		m.follow = false

	case key.Matches(message, m.keys.Down):
		m.feed.LineDown(1)
		m.follow = m.feed.AtBottom()

	case key.Matches(message, m.keys.HalfUp):
		m.feed.HalfViewUp()
		m.follow = false

	case key.Matches(message, m.keys.HalfDown):
		m.feed.HalfViewDown()
		m.follow = m.feed.AtBottom()

	case key.Matches(message, m.keys.Top):
		m.feed.GotoTop()
		m.follow = false

	case key.Matches(message, m.keys.Bottom):
		m.feed.GotoBottom()
		m.follow = true
	}

	return m, nil
}

// refill rebuilds the viewport content from the entry ring.
func (m *model) refill() {
	if !m.ready {
		return
	}

	lines := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		lines = append(lines, m.renderLine(entry))
	}
	m.feed.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.feed.GotoBottom()
	}
}

func (m *model) renderLine(entry feedEntry) string {
	timestamp := entry.received.Format("15:04:05")
	kind := fmt.Sprintf("%-20s", entry.kind)
	meta := ""
	if entry.pts != 0 {
		meta = fmt.Sprintf(" pts=%d", entry.pts)
	}

	// Truncate the plain text before styling so ANSI codes never get
	// cut in half.
	body := entry.body
	available := m.width - len(timestamp) - len(kind) - len(meta) - 3
	if available > 1 {
		if runes := []rune(body); len(runes) > available {
			body = string(runes[:available-1]) + "…"
		}
	}

	return m.theme.faint.Render(timestamp) + " " +
		m.theme.updateType.Render(kind) + " " +
		body +
		m.theme.faint.Render(meta)
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}
	return m.headerView() + "\n" + m.feed.View() + "\n" + m.footerView()
}

func (m model) headerView() string {
	left := m.theme.title.Render("courier watch") + "  " + m.theme.faint.Render(m.endpoint)

	counter := fmt.Sprintf("%d updates", m.total)
	if m.dropped > 0 {
		counter += fmt.Sprintf(" (%d scrolled off)", m.dropped)
	}
	right := m.theme.faint.Render(counter)

	pad := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right + "\n" + m.stateView()
}

func (m model) stateView() string {
	switch m.state {
	case client.StateConnected:
		return m.theme.good.Render("● connected")
	case client.StateReconnecting:
		return m.theme.warn.Render(m.pulseDot() + " reconnecting")
	case client.StateFailed:
		return m.theme.bad.Render("✕ failed")
	default:
		return m.theme.warn.Render(m.pulseDot() + " disconnected")
	}
}

func (m model) pulseDot() string {
	if m.pulse {
		return "●"
	}
	return "○"
}

func (m model) footerView() string {
	if m.notice != "" {
		style := m.theme.warn
		if m.noticeLevel >= slog.LevelError {
			style = m.theme.bad
		}
		return style.Render(m.notice)
	}

	follow := "off"
	if m.follow {
		follow = "on"
	}
	return m.theme.faint.Render(
		fmt.Sprintf("j/k scroll · g/G top/bottom · f follow (%s) · q quit", follow))
}
