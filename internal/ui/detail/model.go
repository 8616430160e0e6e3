package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quanghm/mailcheck/internal/keys"
	"github.com/quanghm/mailcheck/internal/mailbox"
	"github.com/quanghm/mailcheck/internal/theme"
)

// BackMsg signals the parent to navigate back to the inbox.
type BackMsg struct{}

// MessageLoadedMsg carries the fully assembled message to display.
type MessageLoadedMsg struct {
	AccountID string
	Record    *mailbox.MessageRecord
}

// ActionMsg signals the parent to execute an action on the current
// message.
type ActionMsg struct {
	Action    string
	AccountID string
	UID       uint32
}

// Model is the message detail view component.
type Model struct {
	accountID string
	record    *mailbox.MessageRecord
	viewport  viewport.Model
	keys      *keys.KeyMap
	width     int
	height    int
	loading   bool
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessageLoadedMsg:
		m.accountID = msg.AccountID
		m.record = msg.Record
		m.loading = false
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.ToggleRead):
			if m.record != nil {
				return m, m.actionCmd("toggle-read")
			}

		case key.Matches(msg, m.keys.Archive):
			if m.record != nil {
				return m, m.actionCmd("archive")
			}

		case key.Matches(msg, m.keys.Delete):
			if m.record != nil {
				return m, m.actionCmd("delete")
			}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) actionCmd(action string) tea.Cmd {
	accountID := m.accountID
	uid := m.record.UID
	return func() tea.Msg {
		return ActionMsg{Action: action, AccountID: accountID, UID: uid}
	}
}

// View renders the detail view.
func (m Model) View() string {
	if m.loading {
		loadingStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return loadingStyle.Render("Loading message...")
	}

	if m.record == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No message selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.record == nil {
		return ""
	}

	rec := m.record
	var sections []string

	// Subject line
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	subject := rec.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	sections = append(sections, titleStyle.Render(subject))

	// Badges: unseen state + token + attachment count
	var badges []string
	if rec.Unseen {
		badges = append(badges, theme.UnseenStyle.Render("UNSEEN"))
	}
	if rec.Token != "" {
		badges = append(badges, theme.TokenBadgeStyle.Render("#"+rec.Token))
	}
	if n := len(rec.Attachments); n > 0 {
		badges = append(badges, theme.AttachmentStyle.Render(
			fmt.Sprintf("%d attachment(s)", n),
		))
	}
	if len(badges) > 0 {
		sections = append(sections, strings.Join(badges, "  "))
	}
	sections = append(sections, "")

	// Metadata table
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	if rec.FromDisplay != "" {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("From:"),
			valStyle.Render(rec.FromDisplay),
		))
	}
	if len(rec.To) > 0 {
		sections = append(sections, fmt.Sprintf(
			"%s    %s",
			metaStyle.Render("To:"),
			valStyle.Render(strings.Join(rec.To, ", ")),
		))
	}
	if len(rec.Cc) > 0 {
		sections = append(sections, fmt.Sprintf(
			"%s    %s",
			metaStyle.Render("Cc:"),
			valStyle.Render(strings.Join(rec.Cc, ", ")),
		))
	}
	if rec.Date != nil {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("Date:"),
			valStyle.Render(rec.Date.Format("2006-01-02 15:04")),
		))
	}
	if rec.MessageID != "" {
		sections = append(sections, fmt.Sprintf(
			"%s    %s",
			metaStyle.Render("ID:"),
			valStyle.Render(rec.MessageID),
		))
	}

	// Separator
	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", min(m.width-4, 80)))
	sections = append(sections, "")
	sections = append(sections, separator)
	sections = append(sections, "")

	// Body
	body := rec.Body
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No readable body")
	}
	sections = append(sections, body)

	// Attachments list
	if len(rec.Attachments) > 0 {
		sections = append(sections, "")
		sections = append(sections, separator)
		sections = append(sections, "")

		attachHeaderStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorWhite)

		sections = append(sections, attachHeaderStyle.Render(
			fmt.Sprintf("Attachments (%d)", len(rec.Attachments)),
		))
		sections = append(sections, "")

		nameStyle := lipgloss.NewStyle().Foreground(theme.ColorYellow)
		sizeStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)

		for _, a := range rec.Attachments {
			line := fmt.Sprintf(
				"%s  %s",
				nameStyle.Render(a.Filename),
				sizeStyle.Render(fmt.Sprintf("%s, %d bytes", a.MIMEType, len(a.Content))),
			)
			sections = append(sections, line)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetRecord updates the message being displayed and re-renders.
func (m *Model) SetRecord(accountID string, rec *mailbox.MessageRecord) {
	m.accountID = accountID
	m.record = rec
	m.loading = false
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Record returns the currently displayed message, nil when none.
func (m Model) Record() *mailbox.MessageRecord {
	return m.record
}

// AccountID returns the owning account of the displayed message.
func (m Model) AccountID() string {
	return m.accountID
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}
