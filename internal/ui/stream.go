package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/livelog/internal/store"
)

// timeLayout renders row timestamps with millisecond precision.
const timeLayout = "2006-01-02 15:04:05.000"

// RenderRows renders the row list, keeping the cursor visible.
func RenderRows(rows []store.Row, cursor, width, height int, exhausted bool) string {
	if len(rows) == 0 {
		return HelpStyle.Render("No rows yet. Press 'm' to load history or 'l' for live mode.")
	}

	available := height
	if exhausted {
		available--
	}
	if available < 1 {
		available = 1
	}

	offset := calcScrollOffset(cursor, len(rows), available)
	var b strings.Builder
	for i := offset; i < len(rows) && i < offset+available; i++ {
		b.WriteString(renderRowLine(rows[i], i == cursor, width))
		b.WriteString("\n")
	}
	if exhausted && offset+available >= len(rows) {
		b.WriteString(EndMarker.Render("(end of history)"))
		b.WriteString("\n")
	}
	return b.String()
}

// calcScrollOffset returns the first visible index so that cursor fits in
// a window of the given height.
func calcScrollOffset(cursor, total, height int) int {
	if total == 0 || cursor < 0 {
		return 0
	}
	if cursor >= total {
		cursor = total - 1
	}
	if cursor >= height {
		return cursor - height + 1
	}
	return 0
}

// statusStyle picks a style for a row status.
func statusStyle(status string) lipgloss.Style {
	switch strings.ToLower(status) {
	case "up", "ok":
		return StatusUp
	case "down", "error":
		return StatusDown
	case "degraded", "slow":
		return StatusDegraded
	}
	return StatusOther
}

// renderRowLine renders a single row.
func renderRowLine(r store.Row, selected bool, width int) string {
	ts := TimeColumn.Render(r.Time().Format(timeLayout))
	badge := MonitorBadge.Render(r.Monitor)
	status := statusStyle(r.Status).Render(fmt.Sprintf("%-8s", r.Status))

	detail := r.Message
	if r.StatusCode != 0 {
		detail = fmt.Sprintf("%d %s", r.StatusCode, detail)
	}
	if r.LatencyMs > 0 {
		detail = fmt.Sprintf("%s (%dms)", strings.TrimSpace(detail), r.LatencyMs)
	}
	if r.Region != "" {
		detail = "[" + r.Region + "] " + detail
	}

	left := ts + " " + badge + status + " "
	room := width - lipgloss.Width(left) - 1
	detail = truncateRunes(detail, room)

	if selected {
		plain := r.Time().Format(timeLayout) + " " + r.Monitor + " " + fmt.Sprintf("%-8s", r.Status) + " " + detail
		return SelectedRow.Width(width).Render(truncateRunes(plain, width))
	}
	return left + NormalRow.Render(detail)
}

// RenderStatusBar renders the bottom bar.
func RenderStatusBar(cursor, total, width int, loading bool, spin string, live bool, exhausted bool) string {
	var parts []string
	if live {
		parts = append(parts, LiveBadge.Render("LIVE"))
	}
	if loading {
		parts = append(parts, spin)
	}

	pos := fmt.Sprintf("%d/%d", cursor+1, total)
	if total == 0 {
		pos = "0/0"
	}
	if exhausted {
		pos += " (all)"
	}
	parts = append(parts, StatusBarText.Render(pos))

	keys := []string{
		StatusBarKey.Render("m") + StatusBarText.Render(":more"),
		StatusBarKey.Render("l") + StatusBarText.Render(":live"),
		StatusBarKey.Render("r") + StatusBarText.Render(":reset"),
		StatusBarKey.Render("D") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	parts = append(parts, strings.Join(keys, " "))

	return StatusBar.Width(width).Render(strings.Join(parts, "  "))
}

// truncateRunes shortens s to at most n runes, marking the cut with "…".
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}
