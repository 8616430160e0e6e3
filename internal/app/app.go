package app

import (
	"context"
	"fmt"
	"sort"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quanghm/mailcheck/internal/mailbox"
	"github.com/quanghm/mailcheck/internal/model"
	"github.com/quanghm/mailcheck/internal/store"
	appsync "github.com/quanghm/mailcheck/internal/sync"
	"github.com/quanghm/mailcheck/internal/ui"
	configview "github.com/quanghm/mailcheck/internal/ui/config"
	"github.com/quanghm/mailcheck/internal/ui/detail"
	helpview "github.com/quanghm/mailcheck/internal/ui/help"
	"github.com/quanghm/mailcheck/internal/ui/inbox"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewDetail
	ViewConfig
	ViewHelp
)

// messageActionDoneMsg is sent after a mailbox action (read toggle,
// archive, delete) completes. For a successful read toggle, record
// carries the refreshed record for the detail view.
type messageActionDoneMsg struct {
	action    string
	accountID string
	record    *mailbox.MessageRecord
	err       error
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and access to the persistence layer.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	store        *store.SQLiteStore
	keys         *KeyMap
	inbox        inbox.Model
	detail       detail.Model
	helpView     helpview.Model
	configView   configview.Model
	poller       *appsync.Poller

	// checkers holds one live mailbox session per registered account,
	// used for detail loading and message actions. Shared with the
	// poller's registered entries.
	checkers    map[string]*mailbox.Checker
	accountCfgs map[string]model.AccountConfig

	ready            bool
	newMessageCount  int
	authErrorMessage string
	statusMessage    string
}

// New creates a new root application model with the given store.
func New(s *store.SQLiteStore) Model {
	keys := DefaultKeyMap()
	p := appsync.New(s)

	return Model{
		currentView: ViewInbox,
		store:       s,
		keys:        keys,
		inbox:       inbox.New(s, keys, 80, 24),
		detail:      detail.New(keys, 80, 24),
		helpView:    helpview.New(keys, 80, 24),
		configView:  configview.New(s, keys, 80, 24),
		poller:      p,
		checkers:    make(map[string]*mailbox.Checker),
		accountCfgs: make(map[string]model.AccountConfig),
	}
}

// Init registers configured accounts before starting the poller so
// every mailbox session is available for the first sync.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.inbox.Init(),
		m.registerAccounts(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.inbox.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.configView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case accountsRegisteredMsg:
		m.checkers = msg.checkers
		m.accountCfgs = msg.configs
		m.inbox.SetAccountNames(msg.names)
		// If no accounts are configured, enter first-run setup.
		if msg.count == 0 {
			m.previousView = m.currentView
			m.currentView = ViewConfig
			return m, m.configView.Init()
		}
		return m, m.poller.Start()

	case appsync.SyncResultMsg:
		if msg.AuthError != nil {
			m.authErrorMessage = msg.AuthError.Message
		} else if msg.Error == nil {
			m.authErrorMessage = ""
		}

		if msg.Error != nil || msg.AuthError != nil {
			m.inbox.MarkAccountStale(msg.AccountID)
		} else {
			m.inbox.ClearAccountStale(msg.AccountID)
		}
		if msg.NewMessageCount > 0 {
			m.newMessageCount += msg.NewMessageCount
		}

		return m, tea.Batch(
			m.inbox.LoadMessages(),
			m.poller.WaitForNextResult(),
		)

	case inbox.SelectedMessageMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetLoading(true)
		return m, m.loadMessageDetail(msg.AccountID, msg.UID)

	case detail.MessageLoadedMsg:
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case detail.BackMsg:
		m.currentView = ViewInbox
		m.newMessageCount = 0
		return m, m.inbox.LoadMessages()

	case detail.ActionMsg:
		return m, m.performMessageAction(msg)

	case messageActionDoneMsg:
		if msg.err != nil {
			m.statusMessage = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			return m, nil
		}
		m.statusMessage = ""
		// Archive and delete remove the message, so fall back to the
		// inbox. Read toggles keep the detail view open with the
		// refreshed record, so the next toggle flips back.
		if msg.action == "archive" || msg.action == "delete" {
			m.currentView = ViewInbox
		} else if msg.record != nil {
			m.detail.SetRecord(msg.accountID, msg.record)
		}
		return m, m.inbox.LoadMessages()

	case configview.ConfigDoneMsg:
		m.currentView = ViewInbox
		return m, tea.Batch(
			m.inbox.LoadMessages(),
			m.registerAccounts(),
		)

	case configview.AccountSavedMsg:
		return m, tea.Batch(
			m.inbox.LoadMessages(),
			m.registerAccounts(),
		)

	case configview.AccountDeletedMsg:
		if c, ok := m.checkers[msg.ID]; ok {
			_ = c.Close()
			delete(m.checkers, msg.ID)
		}
		return m, tea.Batch(
			m.inbox.LoadMessages(),
			m.registerAccounts(),
		)

	case tea.KeyMsg:
		// Global keys that work regardless of current view
		switch msg.String() {
		case "ctrl+c":
			m.poller.Stop()
			return m, tea.Quit

		case "q":
			if m.currentView == ViewInbox && !m.inbox.InputFocused() {
				m.poller.Stop()
				return m, tea.Quit
			}

		case "?":
			// Leave '?' alone while a text input owns the keyboard.
			if m.currentView == ViewConfig ||
				(m.currentView == ViewInbox && m.inbox.InputFocused()) {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case "c":
			if m.currentView == ViewInbox && !m.inbox.InputFocused() {
				m.previousView = m.currentView
				m.currentView = ViewConfig
				return m, m.configView.Init()
			}

		case "r":
			if m.currentView == ViewInbox && !m.inbox.InputFocused() {
				m.poller.RefreshAll()
				return m, m.inbox.LoadMessages()
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewConfig:
		m.configView, cmd = m.configView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := "Mailcheck"
	if m.newMessageCount > 0 {
		headerTitle = fmt.Sprintf("Mailcheck [%d new]", m.newMessageCount)
	}
	header := m.layout.RenderHeader(headerTitle, m.syncStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewInbox:
		return m.inbox.View()
	case ViewDetail:
		return m.detail.View()
	case ViewConfig:
		return m.configView.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the combined sync state.
func (m Model) syncStatus() string {
	statuses := m.poller.GetStatuses()
	if len(statuses) == 0 {
		return "no accounts"
	}

	running := 0
	var staleIDs []string
	for _, s := range statuses {
		switch s.State {
		case appsync.SyncRunning:
			running++
		case appsync.SyncError:
			staleIDs = append(staleIDs, s.AccountID)
		}
	}

	if running > 0 {
		return fmt.Sprintf("checking (%d)", running)
	}
	if len(staleIDs) > 0 {
		sort.Strings(staleIDs)
		return fmt.Sprintf("unreachable (%d)", len(staleIDs))
	}
	return "idle"
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	// Show auth errors and action failures prominently when present.
	if m.authErrorMessage != "" && m.currentView == ViewInbox {
		return m.authErrorMessage
	}
	if m.statusMessage != "" && m.currentView == ViewInbox {
		return m.statusMessage
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | m toggle read | a archive | d delete | j/k scroll"
	case ViewConfig:
		return "a add | e edit | d delete | enter test | esc back"
	default:
		filterSummary := m.inbox.FilterSummary()
		if filterSummary != "" {
			return filterSummary
		}
		return "q quit | ? help | / search | u unseen | tab sort | r refresh"
	}
}

// loadMessageDetail returns a command that fetches and assembles the
// full message from the account's live session.
func (m Model) loadMessageDetail(accountID string, uid uint32) tea.Cmd {
	checker := m.checkers[accountID]
	return func() tea.Msg {
		if checker == nil {
			return detail.MessageLoadedMsg{AccountID: accountID, Record: nil}
		}
		records := checker.FetchMessagesByIDs([]uint32{uid}, true)
		return detail.MessageLoadedMsg{
			AccountID: accountID,
			Record:    records[uid],
		}
	}
}

// performMessageAction executes a detail-view action against the
// account's mailbox and mirrors the result into the local cache.
func (m Model) performMessageAction(msg detail.ActionMsg) tea.Cmd {
	checker := m.checkers[msg.AccountID]
	s := m.store
	rec := m.detail.Record()
	cfg, hasCfg := m.accountCfgs[msg.AccountID]

	return func() tea.Msg {
		if checker == nil {
			return messageActionDoneMsg{
				action: msg.Action,
				err:    fmt.Errorf("account %s has no active session", msg.AccountID),
			}
		}

		ctx := context.Background()
		var err error
		var updated *mailbox.MessageRecord
		switch msg.Action {
		case "toggle-read":
			unseen := rec != nil && rec.Unseen
			// Mark read when currently unseen, and vice versa.
			err = checker.SetMessageReadStatus([]uint32{msg.UID}, unseen)
			if err == nil {
				err = s.SetMessageUnseen(ctx, msg.AccountID, msg.UID, !unseen)
			}
			if err == nil && rec != nil {
				flipped := *rec
				flipped.Unseen = !unseen
				updated = &flipped
			}

		case "archive":
			folder := mailbox.DefaultArchiveFolder
			if hasCfg && cfg.ArchiveFolder != "" {
				folder = cfg.ArchiveFolder
			}
			err = checker.ArchiveEmail(msg.UID, folder)
			if err == nil {
				err = s.DeleteMessage(ctx, msg.AccountID, msg.UID)
			}

		case "delete":
			err = checker.DeleteEmail(msg.UID)
			if err == nil {
				err = s.DeleteMessage(ctx, msg.AccountID, msg.UID)
			}

		default:
			err = fmt.Errorf("unknown action %q", msg.Action)
		}

		return messageActionDoneMsg{
			action:    msg.Action,
			accountID: msg.AccountID,
			record:    updated,
			err:       err,
		}
	}
}
