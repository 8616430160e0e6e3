package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quanghm/mailcheck/internal/app"
	"github.com/quanghm/mailcheck/internal/credential"
	"github.com/quanghm/mailcheck/internal/mailbox"
	"github.com/quanghm/mailcheck/internal/model"
	"github.com/quanghm/mailcheck/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", model.DefaultConfigPath(), "path to the YAML configuration file")
		dbPath     = flag.String("db", defaultDBPath(), "path to the message cache database")
		once       = flag.Bool("once", false, "check for new mail since the last run, print results, and exit")
		since      = flag.String("since", "", "print all mail received on or after this date (YYYY-MM-DD) and exit")
		unseen     = flag.Bool("unseen", false, "print unread mail and exit")
	)
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	s, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer s.Close()

	// Accounts declared in the YAML file are mirrored into the store so
	// the UI and the one-shot modes see a single account list.
	if err := seedAccounts(s, cfg); err != nil {
		log.Fatalf("Failed to register configured accounts: %v", err)
	}

	switch {
	case *once:
		runOneShot(s, checkSinceWatermark)
	case *since != "":
		date, err := time.Parse("2006-01-02", *since)
		if err != nil {
			log.Fatalf("Invalid -since date %q: expected YYYY-MM-DD", *since)
		}
		runOneShot(s, func(c *mailbox.Checker) (map[uint32]*mailbox.MessageRecord, error) {
			return c.CheckSinceDate(date)
		})
	case *unseen:
		runOneShot(s, func(c *mailbox.Checker) (map[uint32]*mailbox.MessageRecord, error) {
			return c.CheckUnreadEmails()
		})
	default:
		p := tea.NewProgram(app.New(s), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			log.Fatalf("Error running program: %v", err)
		}
	}
}

// defaultDBPath places the cache next to the default config file.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mailcheck.db")
	}
	return filepath.Join(home, ".config", "mailcheck", "mailcheck.db")
}

// seedAccounts mirrors YAML-declared accounts into the store. Accounts
// added through the UI live only in the store and are left untouched.
func seedAccounts(s *store.SQLiteStore, cfg *model.AppConfig) error {
	ctx := context.Background()
	for _, acct := range cfg.Accounts {
		if acct.ID == "" {
			// A stable ID keeps the keyring entry and watermark attached
			// across runs; derive one from the account coordinates.
			acct.ID = fmt.Sprintf("%s@%s", acct.Username, acct.Host)
		}
		if err := s.UpsertAccount(ctx, acct); err != nil {
			return err
		}
	}
	return nil
}

// checkSinceWatermark is the -once batch: everything above the account's
// persisted watermark.
func checkSinceWatermark(c *mailbox.Checker) (map[uint32]*mailbox.MessageRecord, error) {
	return c.CheckSinceLastUID(c.LastUID())
}

// runOneShot opens a session per enabled account, runs the batch, prints
// the results, and persists any advanced watermark.
func runOneShot(s *store.SQLiteStore, batch func(*mailbox.Checker) (map[uint32]*mailbox.MessageRecord, error)) {
	ctx := context.Background()

	accounts, err := s.GetAccounts(ctx)
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts configured. Add one to the config file or run the UI and press 'c'.")
		return
	}

	exitCode := 0
	for _, acct := range accounts {
		if !acct.Enabled {
			continue
		}

		checker, err := openAccount(ctx, s, acct)
		if err != nil {
			log.Printf("Account %q: %v", acct.Name, err)
			exitCode = 1
			continue
		}

		records, err := batch(checker)
		if err != nil {
			log.Printf("Account %q: %v", acct.Name, err)
			_ = checker.Close()
			exitCode = 1
			continue
		}

		printRecords(acct, records)

		if err := s.SetLastUID(ctx, acct.ID, checker.LastUID()); err != nil {
			log.Printf("Account %q: persisting watermark: %v", acct.Name, err)
			exitCode = 1
		}
		_ = checker.Close()
	}
	os.Exit(exitCode)
}

// openAccount dials the account and seeds the checker with its
// persisted watermark and token pattern.
func openAccount(ctx context.Context, s *store.SQLiteStore, acct model.AccountConfig) (*mailbox.Checker, error) {
	password, err := credential.Get(credential.PasswordKey(acct.ID))
	if err != nil {
		return nil, fmt.Errorf("credential not found (run the UI to set it): %w", err)
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
	if lastUID, err := s.GetLastUID(ctx, acct.ID); err == nil && lastUID > 0 {
		opts = append(opts, mailbox.WithLastUID(lastUID))
	}

	checker, err := mailbox.NewChecker(sess, opts...)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	return checker, nil
}

// printRecords writes one block per message, newest first.
func printRecords(acct model.AccountConfig, records map[uint32]*mailbox.MessageRecord) {
	fmt.Printf("== %s: %d message(s)\n", acct.Name, len(records))

	uids := make([]uint32, 0, len(records))
	for uid := range records {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })

	for _, uid := range uids {
		rec := records[uid]

		marker := " "
		if rec.Unseen {
			marker = "*"
		}
		date := rec.RawDate
		if rec.Date != nil {
			date = rec.Date.Local().Format("2006-01-02 15:04")
		}

		fmt.Printf("%s [%d] %s  %s\n", marker, uid, date, rec.FromDisplay)
		fmt.Printf("    %s\n", rec.Subject)
		if rec.Token != "" {
			fmt.Printf("    token: %s\n", rec.Token)
		}
		for _, att := range rec.Attachments {
			fmt.Printf("    attachment: %s (%s, %d bytes)\n", att.Filename, att.MIMEType, len(att.Content))
		}
	}
}
