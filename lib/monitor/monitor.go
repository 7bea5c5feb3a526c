// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package monitor is a terminal view of live readings.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gotmc/labdrivers"
	"github.com/gotmc/labdrivers/lib/poll"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#575B7E")).
			Padding(0, 1)

	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// ReadingsMsg carries a batch of readings into the model.
type ReadingsMsg []labdrivers.Reading

type key struct{ instrument, param string }

// Model shows the latest reading of every instrument parameter.
type Model struct {
	title   string
	table   table.Model
	latest  map[key]labdrivers.Reading
	batches int
	now     func() time.Time
}

var columns = []table.Column{
	{Title: "Instrument", Width: 14},
	{Title: "Parameter", Width: 22},
	{Title: "Value", Width: 18},
	{Title: "Age", Width: 8},
	{Title: "Error", Width: 30},
}

// New returns an empty monitor.
func New(title string) Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	t.SetStyles(s)
	return Model{title: title, table: t, latest: make(map[key]labdrivers.Reading), now: time.Now}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the age refresh.
func (m Model) Init() tea.Cmd { return tick() }

// Update handles readings, keys and resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ReadingsMsg:
		for _, r := range msg {
			m.latest[key{r.Instrument, r.Param}] = r
		}
		m.batches++
		m.table.SetRows(m.rows())
		return m, nil
	case tickMsg:
		m.table.SetRows(m.rows())
		return m, tick()
	case tea.WindowSizeMsg:
		if h := msg.Height - 6; h > 3 {
			m.table.SetHeight(h)
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) rows() []table.Row {
	keys := make([]key, 0, len(m.latest))
	for k := range m.latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].instrument != keys[j].instrument {
			return keys[i].instrument < keys[j].instrument
		}
		return keys[i].param < keys[j].param
	})
	now := m.now()
	rows := make([]table.Row, len(keys))
	for i, k := range keys {
		r := m.latest[k]
		val := r.Text
		if r.Err != "" {
			val = "ERR"
		}
		rows[i] = table.Row{k.instrument, k.param, val, age(now.Sub(r.Time)), r.Err}
	}
	return rows
}

func age(d time.Duration) string {
	if d < time.Second {
		return "now"
	}
	return d.Truncate(time.Second).String()
}

// Errors counts parameters whose latest reading failed.
func (m Model) Errors() int {
	n := 0
	for _, r := range m.latest {
		if r.Err != "" {
			n++
		}
	}
	return n
}

// View renders the title, table and status line.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(baseStyle.Render(m.table.View()))
	b.WriteString("\n")
	status := fmt.Sprintf("%d parameters, %d updates", len(m.latest), m.batches)
	b.WriteString(statusStyle.Render(status))
	if n := m.Errors(); n > 0 {
		b.WriteString("  ")
		b.WriteString(errStyle.Render(fmt.Sprintf("%d failing", n)))
	}
	b.WriteString(statusStyle.Render("  q to quit"))
	b.WriteString("\n")
	return b.String()
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Sink forwards poll batches to a running program.
func Sink(s Sender) poll.Sink {
	return poll.SinkFunc(func(_ context.Context, rs []labdrivers.Reading) error {
		s.Send(ReadingsMsg(append([]labdrivers.Reading(nil), rs...)))
		return nil
	})
}
