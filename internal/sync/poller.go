package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/quanghm/mailcheck/internal/mailbox"
	"github.com/quanghm/mailcheck/internal/model"
	"github.com/quanghm/mailcheck/internal/store"
)

// SyncState represents the current state of an account sync operation.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the sync state for a single account.
type SyncStatus struct {
	AccountID string
	State     SyncState
	LastSync  time.Time
	Error     error
}

// SyncResultMsg is a tea.Msg sent when a sync operation completes.
type SyncResultMsg struct {
	AccountID       string
	Messages        []model.MessageSummary
	Error           error
	AuthError       *AuthErrorMsg
	NewMessageCount int
}

// SyncStatusMsg is a tea.Msg with the current statuses of all accounts.
type SyncStatusMsg struct {
	Statuses []SyncStatus
}

// AuthErrorMsg is a tea.Msg sent when an account's session fails, which
// usually means expired credentials.
type AuthErrorMsg struct {
	AccountID string
	Message   string
}

// Checker is the slice of the mailbox surface the poller needs: the
// incremental batch call plus the watermark it advances.
type Checker interface {
	CheckSinceLastUID(uid uint32) (map[uint32]*mailbox.MessageRecord, error)
	LastUID() uint32
	Close() error
}

// accountEntry holds a registered account's checker, configuration,
// and the trigger channel its polling loop listens on. A dedicated
// channel per account means a manual refresh can never be consumed by
// another account's loop.
type accountEntry struct {
	checker Checker
	cfg     model.AccountConfig
	trigger chan struct{}
}

// Poller orchestrates background polling of registered accounts. Each
// poll cycle fetches everything above the persisted watermark, caches
// the results, and advances the watermark.
type Poller struct {
	store    store.Store
	accounts []accountEntry
	statuses map[string]*SyncStatus
	resultCh chan SyncResultMsg
	stopCh   chan struct{}
	mu       gosync.Mutex
	running  bool
}

// New creates a new Poller with the given store.
func New(s store.Store) *Poller {
	return &Poller{
		store:    s,
		statuses: make(map[string]*SyncStatus),
		resultCh: make(chan SyncResultMsg, 16),
		stopCh:   make(chan struct{}),
	}
}

// RegisterAccount adds an account's checker and configuration to the
// poller.
func (p *Poller) RegisterAccount(checker Checker, cfg model.AccountConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.accounts = append(p.accounts, accountEntry{
		checker: checker,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	})
	p.statuses[cfg.ID] = &SyncStatus{
		AccountID: cfg.ID,
		State:     SyncIdle,
	}
}

// Start returns a tea.Cmd that starts all polling goroutines and
// subscribes to results. The returned command waits on the result
// channel and returns SyncResultMsg messages to the Bubble Tea runtime.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	// Start a polling goroutine for each account
	for _, entry := range p.accounts {
		go p.pollAccount(entry)
	}

	// Return a subscription command that listens for results
	return p.waitForResult()
}

// Stop halts all polling goroutines and closes every checker.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false

	for _, entry := range p.accounts {
		_ = entry.checker.Close()
	}
}

// RefreshAll triggers an immediate poll of all registered accounts.
func (p *Poller) RefreshAll() tea.Cmd {
	p.mu.Lock()
	accounts := make([]accountEntry, len(p.accounts))
	copy(accounts, p.accounts)
	p.mu.Unlock()

	for _, entry := range accounts {
		select {
		case entry.trigger <- struct{}{}:
		default:
			// A refresh is already pending for this account
		}
	}

	return nil
}

// RefreshAccount triggers an immediate poll of a single account.
func (p *Poller) RefreshAccount(accountID string) tea.Cmd {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.accounts {
		if entry.cfg.ID != accountID {
			continue
		}
		select {
		case entry.trigger <- struct{}{}:
		default:
		}
		return nil
	}
	return nil
}

// GetStatuses returns the current sync status of all registered accounts.
func (p *Poller) GetStatuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

// pollAccount runs the polling loop for a single account.
func (p *Poller) pollAccount(entry accountEntry) {
	interval := time.Duration(entry.cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 120 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do an initial fetch immediately
	p.fetchAndUpsert(entry)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.fetchAndUpsert(entry)
		case <-entry.trigger:
			p.fetchAndUpsert(entry)
		}
	}
}

// storeTimeout is the maximum time allowed for the local cache writes
// of one poll cycle.
const storeTimeout = 30 * time.Second

// fetchAndUpsert performs a single incremental check, caches the
// results, advances the persisted watermark, and sends a SyncResultMsg
// on the result channel.
func (p *Poller) fetchAndUpsert(entry accountEntry) {
	acctID := entry.cfg.ID
	p.setStatus(acctID, SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	watermark, err := p.store.GetLastUID(ctx, acctID)
	if err != nil {
		p.setStatus(acctID, SyncError, err)
		p.sendResult(SyncResultMsg{AccountID: acctID, Error: err})
		return
	}

	records, err := entry.checker.CheckSinceLastUID(watermark)
	if err != nil {
		p.setStatus(acctID, SyncError, err)

		// A dead session usually means expired credentials.
		var sessErr *mailbox.SessionError
		if errors.As(err, &sessErr) {
			p.sendResult(SyncResultMsg{
				AccountID: acctID,
				Error:     err,
				AuthError: &AuthErrorMsg{
					AccountID: acctID,
					Message: fmt.Sprintf(
						"%s: connection failed. Press 'c' to reconfigure.",
						entry.cfg.Name,
					),
				},
			})
			return
		}

		p.sendResult(SyncResultMsg{AccountID: acctID, Error: err})
		return
	}

	// Everything above the watermark is new by definition.
	msgs := summarize(acctID, records)
	if len(msgs) > 0 {
		if upsertErr := p.store.UpsertMessages(ctx, msgs); upsertErr != nil {
			p.setStatus(acctID, SyncError, upsertErr)
			p.sendResult(SyncResultMsg{AccountID: acctID, Error: upsertErr})
			return
		}
	}

	if newWM := entry.checker.LastUID(); newWM > watermark {
		if wmErr := p.store.SetLastUID(ctx, acctID, newWM); wmErr != nil {
			p.setStatus(acctID, SyncError, wmErr)
			p.sendResult(SyncResultMsg{AccountID: acctID, Error: wmErr})
			return
		}
	}

	p.setStatus(acctID, SyncIdle, nil)
	p.sendResult(SyncResultMsg{
		AccountID:       acctID,
		Messages:        msgs,
		NewMessageCount: len(msgs),
	})
}

// summarize converts a batch result into cache rows.
func summarize(accountID string, records map[uint32]*mailbox.MessageRecord) []model.MessageSummary {
	msgs := make([]model.MessageSummary, 0, len(records))
	now := time.Now().UTC()
	for _, rec := range records {
		msgs = append(msgs, model.MessageSummary{
			ID:              uuid.New().String(),
			AccountID:       accountID,
			UID:             rec.UID,
			MessageID:       rec.MessageID,
			Subject:         rec.Subject,
			FromAddress:     rec.FromAddress,
			FromDisplay:     rec.FromDisplay,
			Token:           rec.Token,
			Date:            rec.Date,
			Unseen:          rec.Unseen,
			AttachmentCount: len(rec.Attachments),
			FetchedAt:       now,
		})
	}
	return msgs
}

// setStatus updates the sync status for an account.
func (p *Poller) setStatus(accountID string, state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[accountID]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}

// sendResult sends a SyncResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel. After receiving a result, it returns both the
// result message and a new waitForResult command to keep listening.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next sync result.
// This should be called after processing a SyncResultMsg to continue
// listening for future results.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
