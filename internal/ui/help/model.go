package help

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quanghm/mailcheck/internal/keys"
	"github.com/quanghm/mailcheck/internal/theme"
)

// Section labels shown above each binding group, in the order
// KeyMap.FullHelp returns them.
var sectionTitles = []string{
	"Navigation",
	"Inbox",
	"Message actions",
	"Accounts",
}

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(k *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   k,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the shortcut reference, one labelled block per binding
// group.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite)

	sectionStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorBlue).
		MarginTop(1)

	blocks := []string{titleStyle.Render("Keyboard Shortcuts")}
	for i, group := range m.keys.FullHelp() {
		label := "Other"
		if i < len(sectionTitles) {
			label = sectionTitles[i]
		}
		blocks = append(blocks,
			sectionStyle.Render(label),
			m.renderGroup(group),
		)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, blocks...)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// renderGroup renders one binding group as aligned key/description rows.
func (m Model) renderGroup(group []key.Binding) string {
	keyStyle := m.help.Styles.FullKey
	descStyle := m.help.Styles.FullDesc

	widest := 0
	for _, b := range group {
		if !b.Enabled() {
			continue
		}
		if w := lipgloss.Width(b.Help().Key); w > widest {
			widest = w
		}
	}

	pad := lipgloss.NewStyle().Width(widest + 2)
	rows := make([]string, 0, len(group))
	for _, b := range group {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		rows = append(rows, lipgloss.JoinHorizontal(
			lipgloss.Top,
			pad.Render(keyStyle.Render(h.Key)),
			descStyle.Render(h.Desc),
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
