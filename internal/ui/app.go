package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/store"
)

// Commands connects the viewer to a session. Each returns a Cmd whose
// message reports the outcome. Any may be nil.
type Commands struct {
	LoadOlder  func() tea.Cmd // → RowsLoaded
	ToggleLive func() tea.Cmd // → LiveToggled
	Reset      func() tea.Cmd // → SessionReset
}

// App is the root Bubble Tea model.
// App does NOT hold the assembler. It receives rows via messages.
type App struct {
	cmds    Commands
	ring    *otel.RingBuffer
	spinner spinner.Model

	rows      []store.Row
	cursor    int
	err       error
	width     int
	height    int
	ready     bool
	loading   bool
	live      bool
	exhausted bool
	debug     bool
}

// NewApp creates a new App. ring feeds the debug overlay and may be nil.
func NewApp(cmds Commands, ring *otel.RingBuffer) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StatusBarKey
	return App{cmds: cmds, ring: ring, spinner: s}
}

// Init loads the first history page.
func (a App) Init() tea.Cmd {
	if a.cmds.LoadOlder == nil {
		return nil
	}
	return tea.Batch(a.cmds.LoadOlder(), a.spinner.Tick)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case RowsLoaded:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		if msg.Result.Stale {
			return a, nil
		}
		a.applyRows(msg.Rows)
		if msg.Result.Exhausted {
			a.exhausted = true
		}
		return a, nil

	case LiveToggled:
		a.live = msg.On
		return a, nil

	case SessionReset:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.rows = nil
		a.cursor = 0
		a.exhausted = false
		if a.cmds.LoadOlder != nil {
			a.loading = true
			return a, a.cmds.LoadOlder()
		}
		return a, nil
	}

	return a, nil
}

// applyRows replaces the row list, keeping the selection on the same row
// when newer rows arrive above it.
func (a *App) applyRows(rows []store.Row) {
	if a.cursor > 0 && a.cursor < len(a.rows) {
		selected := a.rows[a.cursor].Key()
		for i, r := range rows {
			if r.Key() == selected {
				a.cursor = i
				break
			}
		}
	}
	a.rows = rows
	a.err = nil
	if a.cursor >= len(a.rows) && len(a.rows) > 0 {
		a.cursor = len(a.rows) - 1
	}
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear any existing error on key press
	if a.err != nil {
		a.err = nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.cursor < len(a.rows)-1 {
			a.cursor++
		}
		return a, nil

	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil

	case "g", "home":
		a.cursor = 0
		return a, nil

	case "G", "end":
		if len(a.rows) > 0 {
			a.cursor = len(a.rows) - 1
		}
		return a, nil

	case "m":
		if a.exhausted || a.cmds.LoadOlder == nil {
			return a, nil
		}
		a.loading = true
		return a, tea.Batch(a.cmds.LoadOlder(), a.spinner.Tick)

	case "l":
		if a.cmds.ToggleLive != nil {
			return a, a.cmds.ToggleLive()
		}
		return a, nil

	case "r":
		if a.cmds.Reset != nil {
			a.loading = true
			return a, a.cmds.Reset()
		}
		return a, nil

	case "D":
		a.debug = !a.debug
		return a, nil
	}

	return a, nil
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.debug && a.ring != nil {
		return debugOverlay(a.ring, a.width, a.height-1, time.Now()) + "\n" + debugStatusBar(a.width)
	}

	// Subtract status bar (1 line) and error bar if present (1 line)
	contentHeight := a.height - 1
	if a.err != nil {
		contentHeight--
	}

	out := RenderRows(a.rows, a.cursor, a.width, contentHeight, a.exhausted)
	if a.err != nil {
		out += ErrorStyle.Width(a.width).Render("Error: "+a.err.Error()+" (press any key to dismiss)") + "\n"
	}
	return out + RenderStatusBar(a.cursor, len(a.rows), a.width, a.loading, a.spinner.View(), a.live, a.exhausted)
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Rows returns the current rows (for testing).
func (a App) Rows() []store.Row {
	return a.rows
}

// Live reports whether live mode is shown as on.
func (a App) Live() bool {
	return a.live
}
