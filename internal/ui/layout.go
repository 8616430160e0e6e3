package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/quanghm/mailcheck/internal/theme"
)

// Chrome row heights. The header and status bar are each a single
// terminal row; everything between belongs to the active view.
const (
	headerRows    = 1
	statusBarRows = 1
)

// Layout tracks the terminal dimensions and derives the space left for
// the content area after the header and status bar chrome.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout for the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows available for the main content area.
// Never negative, so views can size blindly on tiny terminals.
func (l Layout) ContentHeight() int {
	h := l.Height - headerRows - statusBarRows
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the top bar: title on the left, mailbox sync
// state on the right, one style across the full width.
func (l Layout) RenderHeader(title, syncStatus string) string {
	inner := l.Width - theme.HeaderStyle.GetHorizontalFrameSize()
	return theme.HeaderStyle.Render(spread(inner, title, syncStatus))
}

// RenderStatusBar renders the bottom bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	inner := l.Width - theme.StatusBarStyle.GetHorizontalFrameSize()
	return theme.StatusBarStyle.Render(spread(inner, hints, ""))
}

// RenderWithFrame stacks header, content, and status bar into the full
// terminal view.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// spread lays left and right text on a single line padded to width.
// The right segment is dropped before the left is crowded out.
func spread(width int, left, right string) string {
	lw := lipgloss.Width(left)
	rw := lipgloss.Width(right)

	gap := width - lw - rw
	if gap < 1 && right != "" {
		right = ""
		gap = width - lw
	}
	if gap < 0 {
		gap = 0
	}

	return left + strings.Repeat(" ", gap) + right
}
