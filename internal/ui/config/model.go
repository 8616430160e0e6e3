package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/quanghm/mailcheck/internal/credential"
	"github.com/quanghm/mailcheck/internal/keys"
	"github.com/quanghm/mailcheck/internal/mailbox"
	"github.com/quanghm/mailcheck/internal/model"
	"github.com/quanghm/mailcheck/internal/store"
	"github.com/quanghm/mailcheck/internal/theme"
)

// ConfigMode represents the current state of the account setup view.
type ConfigMode int

const (
	ModeList           ConfigMode = iota // List configured accounts
	ModeForm                             // Account add/edit form
	ModeValidating                       // Testing connection
	ModeValidateResult                   // Show validation result
	ModeConfirmDelete                    // Confirm account deletion
)

// ConfigDoneMsg signals the setup view should close and return to the
// main app.
type ConfigDoneMsg struct{}

// AccountSavedMsg signals an account was saved successfully.
type AccountSavedMsg struct {
	Account model.AccountConfig
}

// AccountDeletedMsg signals an account was deleted.
type AccountDeletedMsg struct {
	ID string
}

// ValidateResultMsg carries the result of a connection validation
// attempt. Status is the mailbox summary on success.
type ValidateResultMsg struct {
	Status *mailbox.MailboxStatus
	Err    error
}

// accountsLoadedMsg is sent when accounts have been loaded from the store.
type accountsLoadedMsg struct {
	accounts []model.AccountConfig
	err      error
}

// accountSavedInternalMsg is sent after an account is persisted.
type accountSavedInternalMsg struct {
	account model.AccountConfig
	err     error
}

// accountDeletedInternalMsg is sent after an account is removed.
type accountDeletedInternalMsg struct {
	id  string
	err error
}

// Model is the Bubble Tea model for the account setup UI.
type Model struct {
	mode        ConfigMode
	store       store.Store
	accounts    []model.AccountConfig
	selectedIdx int
	editingID   string

	form *huh.Form

	// Form field values (huh binds to these)
	formName          string
	formHost          string
	formPort          string
	formMailbox       string
	formUsername      string
	formPassword      string
	formTLS           bool
	formTokenPattern  string
	formArchiveFolder string

	// Validation
	validating  bool
	validStatus *mailbox.MailboxStatus
	validError  error
	spinner     spinner.Model

	// Delete confirmation
	confirmDelete *huh.Form
	deleteConfirm bool

	// Status message for transient feedback
	statusMsg string

	keys          *keys.KeyMap
	width, height int
}

// New creates a new account setup view model.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		mode:    ModeList,
		store:   s,
		keys:    k,
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Init loads accounts from the store on first render.
func (m Model) Init() tea.Cmd {
	return m.loadAccounts()
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case accountsLoadedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error loading accounts: %v", msg.err)
			return m, nil
		}
		m.accounts = msg.accounts
		return m, nil

	case accountSavedInternalMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving account: %v", msg.err)
			m.mode = ModeList
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("Account %q saved", msg.account.Name)
		m.mode = ModeList
		return m, tea.Batch(
			m.loadAccounts(),
			func() tea.Msg { return AccountSavedMsg{Account: msg.account} },
		)

	case accountDeletedInternalMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error deleting account: %v", msg.err)
			m.mode = ModeList
			return m, nil
		}
		m.statusMsg = "Account deleted"
		m.mode = ModeList
		if m.selectedIdx >= len(m.accounts)-1 && m.selectedIdx > 0 {
			m.selectedIdx--
		}
		return m, tea.Batch(
			m.loadAccounts(),
			func() tea.Msg { return AccountDeletedMsg{ID: msg.id} },
		)

	case ValidateResultMsg:
		m.validating = false
		m.validStatus = msg.Status
		m.validError = msg.Err
		m.mode = ModeValidateResult
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	// Delegate to active form
	return m.updateActiveForm(msg)
}

// handleKeyMsg processes key messages based on the current mode.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeList:
		return m.handleListKeys(msg)
	case ModeForm:
		return m.updateForm(msg)
	case ModeValidateResult:
		return m.handleValidateResultKeys(msg)
	case ModeConfirmDelete:
		return m.updateConfirmDelete(msg)
	case ModeValidating:
		// Only allow escape during validation
		if msg.String() == "esc" {
			m.mode = ModeList
			m.validating = false
			return m, nil
		}
		return m, nil
	}
	return m, nil
}

// handleListKeys processes key events in the account list mode.
func (m Model) handleListKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return ConfigDoneMsg{} }

	case msg.String() == "a":
		m.editingID = ""
		m.resetFormFields()
		m.mode = ModeForm
		m.form = m.buildAccountForm()
		return m, m.form.Init()

	case msg.String() == "e":
		if len(m.accounts) == 0 {
			return m, nil
		}
		acct := m.accounts[m.selectedIdx]
		m.editingID = acct.ID
		m.fillFormFields(acct)
		m.mode = ModeForm
		m.form = m.buildAccountForm()
		return m, m.form.Init()

	case msg.String() == "d":
		if len(m.accounts) == 0 {
			return m, nil
		}
		m.deleteConfirm = false
		m.confirmDelete = m.buildDeleteConfirmForm()
		m.mode = ModeConfirmDelete
		return m, m.confirmDelete.Init()

	case msg.String() == "enter":
		if len(m.accounts) == 0 {
			return m, nil
		}
		acct := m.accounts[m.selectedIdx]
		m.mode = ModeValidating
		m.validating = true
		return m, tea.Batch(
			m.spinner.Tick,
			m.validateAccount(acct),
		)

	case key.Matches(msg, m.keys.Down):
		if len(m.accounts) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(m.accounts)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.accounts) > 0 {
			m.selectedIdx--
			if m.selectedIdx < 0 {
				m.selectedIdx = len(m.accounts) - 1
			}
		}
		return m, nil
	}

	return m, nil
}

// handleValidateResultKeys processes key events on the validation
// result screen.
func (m Model) handleValidateResultKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.mode = ModeList
		m.validStatus = nil
		m.validError = nil
		return m, nil
	case "r":
		if m.validError != nil && len(m.accounts) > 0 {
			acct := m.accounts[m.selectedIdx]
			m.mode = ModeValidating
			m.validating = true
			return m, tea.Batch(
				m.spinner.Tick,
				m.validateAccount(acct),
			)
		}
		return m, nil
	}
	return m, nil
}

// updateActiveForm dispatches non-key messages to the currently active form.
func (m Model) updateActiveForm(msg tea.Msg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeForm:
		return m.updateForm(msg)
	case ModeConfirmDelete:
		return m.updateConfirmDelete(msg)
	}
	return m, nil
}

// --- Account Form ---

func (m *Model) buildAccountForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("A label for this account").
				Placeholder("Work").
				Value(&m.formName).
				Validate(validateRequired("Name")),
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&m.formHost).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("Leave empty for the protocol default").
				Placeholder("993").
				Value(&m.formPort).
				Validate(validateOptionalPort),
			huh.NewInput().
				Title("Mailbox").
				Description("Folder to monitor; empty means INBOX").
				Placeholder("INBOX").
				Value(&m.formMailbox),
			huh.NewInput().
				Title("Username").
				Description("Account username").
				Placeholder("user@example.com").
				Value(&m.formUsername).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Account password or app password").
				EchoMode(huh.EchoModePassword).
				Value(&m.formPassword).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Implicit TLS; otherwise STARTTLS is used").
				Affirmative("Yes").
				Negative("No").
				Value(&m.formTLS),
			huh.NewInput().
				Title("Token Pattern").
				Description("Optional subject pattern with one capture group").
				Placeholder(mailbox.DefaultTokenPattern).
				Value(&m.formTokenPattern).
				Validate(validateTokenPattern),
			huh.NewInput().
				Title("Archive Folder").
				Description("Target of the archive action; empty means Archive").
				Placeholder(mailbox.DefaultArchiveFolder).
				Value(&m.formArchiveFolder),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m.saveAccount()
	}
	if m.form.State == huh.StateAborted {
		m.mode = ModeList
		return m, nil
	}

	return m, cmd
}

func (m Model) saveAccount() (Model, tea.Cmd) {
	acct := model.AccountConfig{
		ID:              m.editingID,
		Name:            m.formName,
		Host:            m.formHost,
		Mailbox:         m.formMailbox,
		Username:        m.formUsername,
		TLS:             m.formTLS,
		Enabled:         true,
		PollIntervalSec: 120,
		TokenPattern:    strings.TrimSpace(m.formTokenPattern),
		ArchiveFolder:   strings.TrimSpace(m.formArchiveFolder),
	}
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	if p := strings.TrimSpace(m.formPort); p != "" {
		port, err := strconv.Atoi(p)
		if err == nil {
			acct.Port = port
		}
	}

	// Store the password in the keyring; only a reference lives in the
	// account row.
	if err := credential.Set(credential.PasswordKey(acct.ID), m.formPassword); err != nil {
		m.statusMsg = fmt.Sprintf("Error saving credential: %v", err)
		m.mode = ModeList
		return m, nil
	}

	m.mode = ModeValidating
	m.validating = true
	return m, tea.Batch(
		m.spinner.Tick,
		m.validateAndSave(acct),
	)
}

// --- Delete Confirmation ---

func (m *Model) buildDeleteConfirmForm() *huh.Form {
	accountName := ""
	if m.selectedIdx < len(m.accounts) {
		accountName = m.accounts[m.selectedIdx].Name
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete account %q?", accountName)).
				Description(
					"This will remove the account configuration and " +
						"clear cached messages.",
				).
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(&m.deleteConfirm),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateConfirmDelete(msg tea.Msg) (Model, tea.Cmd) {
	if m.confirmDelete == nil {
		return m, nil
	}

	mdl, cmd := m.confirmDelete.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.confirmDelete = f
	}

	if m.confirmDelete.State == huh.StateCompleted {
		if m.deleteConfirm {
			acct := m.accounts[m.selectedIdx]
			return m, m.deleteAccount(acct)
		}
		m.mode = ModeList
		return m, nil
	}
	if m.confirmDelete.State == huh.StateAborted {
		m.mode = ModeList
		return m, nil
	}

	return m, cmd
}

// --- View ---

// View renders the setup UI based on the current mode.
func (m Model) View() string {
	switch m.mode {
	case ModeList:
		return m.viewList()
	case ModeForm:
		return m.viewForm(m.form)
	case ModeValidating:
		return m.viewValidating()
	case ModeValidateResult:
		return m.viewValidateResult()
	case ModeConfirmDelete:
		return m.viewForm(m.confirmDelete)
	default:
		return ""
	}
}

func (m Model) viewList() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	b.WriteString(titleStyle.Render("Accounts"))
	b.WriteString("\n\n")

	if len(m.accounts) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true)
		b.WriteString(emptyStyle.Render(
			"No accounts configured.\nPress 'a' to add a new account.",
		))
	} else {
		for i, acct := range m.accounts {
			b.WriteString(m.renderAccountItem(i, acct))
			b.WriteString("\n")
		}
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		statusStyle := lipgloss.NewStyle().
			Foreground(theme.ColorYellow).
			Italic(true)
		b.WriteString(statusStyle.Render(m.statusMsg))
	}

	b.WriteString("\n\n")
	hintStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	b.WriteString(hintStyle.Render(
		"a add | e edit | d delete | enter test | esc back",
	))

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(b.String())
}

func (m Model) renderAccountItem(idx int, acct model.AccountConfig) string {
	enabledLabel := "enabled"
	enabledColor := theme.ColorGreen
	if !acct.Enabled {
		enabledLabel = "disabled"
		enabledColor = theme.ColorGray
	}

	name := acct.Name
	if name == "" {
		name = "(unnamed)"
	}

	statusLabel := lipgloss.NewStyle().
		Foreground(enabledColor).
		Render(enabledLabel)

	mbox := acct.Mailbox
	if mbox == "" {
		mbox = "INBOX"
	}

	line := fmt.Sprintf("%s  %s@%s/%s  %s",
		name, acct.Username, acct.Host, mbox, statusLabel,
	)

	if idx == m.selectedIdx {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

func (m Model) viewForm(f *huh.Form) string {
	if f == nil {
		return ""
	}

	content := f.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m Model) viewValidating() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	content := fmt.Sprintf(
		"%s Testing connection...\n\nPress esc to cancel.",
		m.spinner.View(),
	)

	return style.Render(content)
}

func (m Model) viewValidateResult() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	var content string
	if m.validError != nil {
		errStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorRed)
		content = errStyle.Render("Connection failed") + "\n\n" +
			m.validError.Error() + "\n\n" +
			lipgloss.NewStyle().Foreground(theme.ColorGray).
				Render("r retry | enter/esc back")
	} else {
		okStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorGreen)
		summary := ""
		if m.validStatus != nil {
			summary = fmt.Sprintf(
				"%d message(s), %d unseen",
				m.validStatus.TotalMessages,
				len(m.validStatus.UnseenUIDs),
			)
		}
		content = okStyle.Render("Connection successful") + "\n\n" +
			summary + "\n\n" +
			lipgloss.NewStyle().Foreground(theme.ColorGray).
				Render("enter/esc back")
	}

	return style.Render(content)
}

// --- Helpers ---

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m *Model) resetFormFields() {
	m.formName = ""
	m.formHost = ""
	m.formPort = ""
	m.formMailbox = ""
	m.formUsername = ""
	m.formPassword = ""
	m.formTLS = true
	m.formTokenPattern = ""
	m.formArchiveFolder = ""
}

func (m *Model) fillFormFields(acct model.AccountConfig) {
	m.formName = acct.Name
	m.formHost = acct.Host
	if acct.Port > 0 {
		m.formPort = strconv.Itoa(acct.Port)
	} else {
		m.formPort = ""
	}
	m.formMailbox = acct.Mailbox
	m.formUsername = acct.Username
	m.formPassword = "" // Never pre-fill credentials
	m.formTLS = acct.TLS
	m.formTokenPattern = acct.TokenPattern
	m.formArchiveFolder = acct.ArchiveFolder
}

// loadAccounts returns a command that loads all accounts from the store.
func (m Model) loadAccounts() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx := context.Background()
		accounts, err := s.GetAccounts(ctx)
		return accountsLoadedMsg{accounts: accounts, err: err}
	}
}

// deleteAccount returns a command that removes an account, its cached
// messages, and its credential.
func (m Model) deleteAccount(acct model.AccountConfig) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx := context.Background()

		// Remove credential from keyring
		_ = credential.Delete(credential.PasswordKey(acct.ID)) // Best-effort deletion

		err := s.DeleteAccount(ctx, acct.ID)
		return accountDeletedInternalMsg{id: acct.ID, err: err}
	}
}

// validateAccount tests the connection for an existing account.
func (m Model) validateAccount(acct model.AccountConfig) tea.Cmd {
	return func() tea.Msg {
		status, err := testConnection(acct)
		return ValidateResultMsg{Status: status, Err: err}
	}
}

// validateAndSave validates the connection then saves the account if
// successful.
func (m Model) validateAndSave(acct model.AccountConfig) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		status, err := testConnection(acct)
		if err != nil {
			return ValidateResultMsg{Err: err}
		}

		// Validation passed; persist the account
		if saveErr := s.UpsertAccount(context.Background(), acct); saveErr != nil {
			return ValidateResultMsg{
				Status: status,
				Err:    fmt.Errorf("connection OK but save failed: %w", saveErr),
			}
		}

		return accountSavedInternalMsg{account: acct, err: nil}
	}
}

// testConnection opens a session for the account and fetches the
// mailbox status, closing the session before returning.
func testConnection(acct model.AccountConfig) (*mailbox.MailboxStatus, error) {
	password, err := credential.Get(credential.PasswordKey(acct.ID))
	if err != nil {
		return nil, fmt.Errorf("credential not found: %w", err)
	}

	sess, err := mailbox.Dial(mailbox.DialConfig{
		Host:     acct.Host,
		Port:     acct.Port,
		Username: acct.Username,
		Password: password,
		Mailbox:  acct.Mailbox,
		TLS:      acct.TLS,
	})
	if err != nil {
		return nil, err
	}

	opts := []mailbox.CheckerOption{}
	if acct.TokenPattern != "" {
		opts = append(opts, mailbox.WithTokenPattern(acct.TokenPattern))
	}
	checker, err := mailbox.NewChecker(sess, opts...)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	defer checker.Close()

	return checker.MailboxStatus()
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateOptionalPort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}

func validateTokenPattern(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if err := mailbox.ValidateTokenPattern(s); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}
