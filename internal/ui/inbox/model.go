package inbox

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quanghm/mailcheck/internal/keys"
	"github.com/quanghm/mailcheck/internal/model"
	"github.com/quanghm/mailcheck/internal/store"
	"github.com/quanghm/mailcheck/internal/theme"
)

// MessagesLoadedMsg is sent when messages have been loaded from the cache.
type MessagesLoadedMsg struct {
	Messages []model.MessageSummary
}

// SelectedMessageMsg is sent when a user opens a message.
type SelectedMessageMsg struct {
	AccountID string
	UID       uint32
}

// sortModes defines the available sort modes cycled by Tab.
var sortModes = []string{
	"date",
	"uid",
	"subject",
	"fetched_at",
}

// Model is the inbox list view component.
type Model struct {
	list         list.Model
	delegate     ItemDelegate
	store        store.Store
	keys         *keys.KeyMap
	filter       store.MessageFilter
	accountNames map[string]string
	unseenOnly   bool
	sortIndex    int
	searchMode   bool
	searchInput  textinput.Model
	width        int
	height       int
}

// New creates a new inbox model. accountNames maps account IDs to their
// display labels for the row badges.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	delegate := ItemDelegate{staleAccounts: make(map[string]bool)}
	l := list.New([]list.Item{}, delegate, width, height-2)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search messages..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:     l,
		delegate: delegate,
		store:    s,
		keys:     k,
		filter: store.MessageFilter{
			SortBy:   "date",
			SortDesc: true,
		},
		accountNames: make(map[string]string),
		searchInput:  si,
		width:        width,
		height:       height,
	}
}

// Init returns a command that loads the initial set of messages.
func (m Model) Init() tea.Cmd {
	return m.LoadMessages()
}

// SetAccountNames replaces the account ID to label mapping.
func (m *Model) SetAccountNames(names map[string]string) {
	m.accountNames = names
}

// MarkAccountStale flags an account, by ID, as unreachable in the row
// renderer.
func (m *Model) MarkAccountStale(id string) {
	m.delegate.staleAccounts[id] = true
}

// ClearAccountStale clears an account's unreachable flag.
func (m *Model) ClearAccountStale(id string) {
	delete(m.delegate.staleAccounts, id)
}

// InputFocused reports whether the search input currently captures
// keystrokes, so global shortcuts can step aside.
func (m Model) InputFocused() bool {
	return m.searchMode
}

// SelectedMessage returns the currently highlighted message, if any.
func (m Model) SelectedMessage() (model.MessageSummary, bool) {
	item, ok := m.list.SelectedItem().(MessageItem)
	if !ok {
		return model.MessageSummary{}, false
	}
	return item.Message, true
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessagesLoadedMsg:
		items := make([]list.Item, len(msg.Messages))
		for i, sum := range msg.Messages {
			items[i] = MessageItem{
				Message:     sum,
				AccountName: m.accountNames[sum.AccountID],
			}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	// Delegate to list model for other messages
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		query := m.searchInput.Value()
		if query != "" {
			m.filter.Query = &query
		} else {
			m.filter.Query = nil
		}
		return m, m.LoadMessages()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.filter.Query = nil
		return m, m.LoadMessages()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(MessageItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedMessageMsg{
				AccountID: item.Message.AccountID,
				UID:       item.Message.UID,
			}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.FilterUnseen):
		m.unseenOnly = !m.unseenOnly
		if m.unseenOnly {
			u := true
			m.filter.Unseen = &u
		} else {
			m.filter.Unseen = nil
		}
		return m, m.LoadMessages()

	case key.Matches(msg, m.keys.CycleSort):
		m.sortIndex = (m.sortIndex + 1) % len(sortModes)
		m.filter.SortBy = sortModes[m.sortIndex]
		return m, m.LoadMessages()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the inbox view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when no messages are cached.
func (m Model) renderEmptyState() string {
	hasFilters := m.filter.Unseen != nil || m.filter.Query != nil

	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if hasFilters {
		return style.Render("No matching messages.\nTry adjusting your filters.")
	}

	return style.Render(
		"No messages yet.\n\n" +
			"Press 'c' to add an account, or 'r' to check mail.",
	)
}

// FilterSummary describes active filters for the status bar, empty when
// none are active.
func (m Model) FilterSummary() string {
	switch {
	case m.unseenOnly && m.filter.Query != nil:
		return "unseen + search"
	case m.unseenOnly:
		return "unseen only"
	case m.filter.Query != nil:
		return "search: " + *m.filter.Query
	default:
		return ""
	}
}

// LoadMessages returns a tea.Cmd that queries the cache with the
// current filter.
func (m Model) LoadMessages() tea.Cmd {
	filter := m.filter
	s := m.store
	return func() tea.Msg {
		msgs, err := s.GetMessages(context.Background(), filter)
		if err != nil {
			return MessagesLoadedMsg{Messages: nil}
		}
		return MessagesLoadedMsg{Messages: msgs}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
