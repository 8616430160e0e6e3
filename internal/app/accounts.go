package app

import (
	"context"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quanghm/mailcheck/internal/credential"
	"github.com/quanghm/mailcheck/internal/mailbox"
	"github.com/quanghm/mailcheck/internal/model"
)

// accountsRegisteredMsg is sent when all configured accounts have been
// registered with the poller.
type accountsRegisteredMsg struct {
	count    int
	checkers map[string]*mailbox.Checker
	configs  map[string]model.AccountConfig
	names    map[string]string
}

// registerAccounts queries the store for configured accounts and opens
// a mailbox session for each enabled one, registering it with the
// poller. Credentials are loaded from the system keyring. Accounts
// whose session cannot be opened are skipped; the poller will surface
// the failure on its next cycle for accounts that were reachable at
// startup and fail later.
func (m *Model) registerAccounts() tea.Cmd {
	s := m.store
	p := m.poller
	existing := m.checkers

	return func() tea.Msg {
		ctx := context.Background()

		accounts, err := s.GetAccounts(ctx)
		if err != nil {
			log.Printf("failed to load accounts: %v", err)
			return accountsRegisteredMsg{count: 0}
		}

		checkers := make(map[string]*mailbox.Checker)
		configs := make(map[string]model.AccountConfig)
		names := make(map[string]string)

		registered := 0
		for _, acct := range accounts {
			names[acct.ID] = acct.Name
			if !acct.Enabled {
				continue
			}
			configs[acct.ID] = acct

			// Reuse a session opened by an earlier registration pass.
			if c, ok := existing[acct.ID]; ok {
				checkers[acct.ID] = c
				registered++
				continue
			}

			checker := openChecker(ctx, s, acct)
			if checker == nil {
				continue
			}
			checkers[acct.ID] = checker
			p.RegisterAccount(checker, acct)
			registered++
		}

		return accountsRegisteredMsg{
			count:    registered,
			checkers: checkers,
			configs:  configs,
			names:    names,
		}
	}
}

// openChecker dials the account's server and wraps the session in a
// checker seeded with the persisted watermark. Returns nil when the
// credential is missing or the session cannot be established.
func openChecker(ctx context.Context, s lastUIDReader, acct model.AccountConfig) *mailbox.Checker {
	password, err := credential.Get(credential.PasswordKey(acct.ID))
	if err != nil {
		log.Printf(
			"skipping account %q (%s): credential not found: %v",
			acct.Name, acct.ID, err,
		)
		return nil
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
		log.Printf("skipping account %q (%s): %v", acct.Name, acct.ID, err)
		return nil
	}

	opts := []mailbox.CheckerOption{}
	if acct.TokenPattern != "" {
		opts = append(opts, mailbox.WithTokenPattern(acct.TokenPattern))
	}
	if lastUID, err := s.GetLastUID(ctx, acct.ID); err == nil && lastUID > 0 {
		opts = append(opts, mailbox.WithLastUID(lastUID))
	}

	checker, err := mailbox.NewChecker(sess, opts...)
	if err != nil {
		_ = sess.Close()
		log.Printf("skipping account %q (%s): %v", acct.Name, acct.ID, err)
		return nil
	}
	return checker
}

// lastUIDReader is the slice of the store openChecker needs.
type lastUIDReader interface {
	GetLastUID(ctx context.Context, accountID string) (uint32, error)
}
