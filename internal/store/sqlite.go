package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/quanghm/mailcheck/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertAccount inserts or replaces an account configuration.
// If the account has no ID, a new UUID is generated.
func (s *SQLiteStore) UpsertAccount(
	ctx context.Context,
	acct model.AccountConfig,
) error {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts (
			id, name, host, port, username, mailbox, tls,
			enabled, poll_interval_sec, token_pattern, archive_folder, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.Name, acct.Host, acct.Port,
		acct.Username, acct.Mailbox, boolToInt(acct.TLS),
		boolToInt(acct.Enabled), acct.PollIntervalSec,
		acct.TokenPattern, acct.ArchiveFolder, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", acct.ID, err)
	}

	return nil
}

// GetAccounts retrieves all configured accounts ordered by name.
func (s *SQLiteStore) GetAccounts(
	ctx context.Context,
) ([]model.AccountConfig, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM accounts ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.AccountConfig
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// GetAccountByID retrieves a single account by its ID, returning nil
// without error when it does not exist.
func (s *SQLiteStore) GetAccountByID(
	ctx context.Context,
	id string,
) (*model.AccountConfig, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM accounts WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	acct, err := scanAccount(rows)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// DeleteAccount removes an account with its watermark and cached
// messages.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM messages WHERE account_id = ?",
		"DELETE FROM watermarks WHERE account_id = ?",
		"DELETE FROM accounts WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("deleting account %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// GetLastUID returns the persisted watermark for an account, zero when
// none has been recorded.
func (s *SQLiteStore) GetLastUID(
	ctx context.Context,
	accountID string,
) (uint32, error) {
	var uid uint32
	err := s.db.GetContext(ctx, &uid,
		"SELECT last_uid FROM watermarks WHERE account_id = ?", accountID,
	)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading watermark for %s: %w", accountID, err)
	}
	return uid, nil
}

// SetLastUID records the watermark for an account.
func (s *SQLiteStore) SetLastUID(
	ctx context.Context,
	accountID string,
	uid uint32,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO watermarks (account_id, last_uid, updated_at)
		VALUES (?, ?, ?)`,
		accountID, uid, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing watermark for %s: %w", accountID, err)
	}
	return nil
}

// UpsertMessages inserts or replaces a batch of cached message
// summaries. Rows are keyed by (account, uid), so refetching a message
// updates its cached row in place.
func (s *SQLiteStore) UpsertMessages(
	ctx context.Context,
	msgs []model.MessageSummary,
) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO messages (
			id, account_id, uid, message_id, subject,
			from_address, from_display, token, date,
			unseen, attachment_count, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, uid) DO UPDATE SET
			message_id = excluded.message_id,
			subject = excluded.subject,
			from_address = excluded.from_address,
			from_display = excluded.from_display,
			token = excluded.token,
			date = excluded.date,
			unseen = excluded.unseen,
			attachment_count = excluded.attachment_count,
			fetched_at = excluded.fetched_at`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		var date interface{}
		if m.Date != nil {
			date = m.Date.UTC()
		}
		_, err = stmt.ExecContext(ctx,
			m.ID, m.AccountID, m.UID, m.MessageID, m.Subject,
			m.FromAddress, m.FromDisplay, m.Token, date,
			boolToInt(m.Unseen), m.AttachmentCount, m.FetchedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("upserting message %d for %s: %w", m.UID, m.AccountID, err)
		}
	}

	return tx.Commit()
}

// GetMessages retrieves cached messages matching the provided filter.
func (s *SQLiteStore) GetMessages(
	ctx context.Context,
	filter MessageFilter,
) ([]model.MessageSummary, error) {
	var conditions []string
	var args []interface{}

	if filter.AccountID != nil {
		conditions = append(conditions, "account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.Unseen != nil {
		conditions = append(conditions, "unseen = ?")
		args = append(args, boolToInt(*filter.Unseen))
	}
	if filter.Token != nil {
		conditions = append(conditions, "token = ?")
		args = append(args, *filter.Token)
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(subject LIKE ? OR from_display LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q)
	}

	query := "SELECT * FROM messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	// Determine sort column.
	sortBy := "date"
	if filter.SortBy != "" {
		allowedSorts := map[string]bool{
			"date":       true,
			"uid":        true,
			"subject":    true,
			"fetched_at": true,
		}
		if allowedSorts[filter.SortBy] {
			sortBy = filter.SortBy
		}
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.MessageSummary
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// GetMessageByUID retrieves one cached message, returning nil without
// error when it is not cached.
func (s *SQLiteStore) GetMessageByUID(
	ctx context.Context,
	accountID string,
	uid uint32,
) (*model.MessageSummary, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM messages WHERE account_id = ? AND uid = ?", accountID, uid,
	)
	if err != nil {
		return nil, fmt.Errorf("getting message %d for %s: %w", uid, accountID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	m, err := scanMessage(rows)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetMessageUnseen updates the cached unseen state of one message.
func (s *SQLiteStore) SetMessageUnseen(
	ctx context.Context,
	accountID string,
	uid uint32,
	unseen bool,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE messages SET unseen = ? WHERE account_id = ? AND uid = ?",
		boolToInt(unseen), accountID, uid,
	)
	if err != nil {
		return fmt.Errorf("updating unseen for %d: %w", uid, err)
	}
	return nil
}

// DeleteMessage removes one cached message.
func (s *SQLiteStore) DeleteMessage(
	ctx context.Context,
	accountID string,
	uid uint32,
) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE account_id = ? AND uid = ?", accountID, uid,
	)
	if err != nil {
		return fmt.Errorf("deleting message %d: %w", uid, err)
	}
	return nil
}

// DeleteMessagesForAccount removes every cached message of one account.
func (s *SQLiteStore) DeleteMessagesForAccount(
	ctx context.Context,
	accountID string,
) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE account_id = ?", accountID,
	)
	if err != nil {
		return fmt.Errorf("deleting messages for %s: %w", accountID, err)
	}
	return nil
}

// scanAccount scans an account row from a sqlx.Rows result set.
func scanAccount(rows *sqlx.Rows) (model.AccountConfig, error) {
	var (
		acct      model.AccountConfig
		tls       int
		enabled   int
		createdAt time.Time
		updatedAt time.Time
	)

	err := rows.Scan(
		&acct.ID, &acct.Name, &acct.Host, &acct.Port,
		&acct.Username, &acct.Mailbox, &tls,
		&enabled, &acct.PollIntervalSec,
		&acct.TokenPattern, &acct.ArchiveFolder,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return model.AccountConfig{}, fmt.Errorf("scanning account row: %w", err)
	}

	acct.TLS = tls != 0
	acct.Enabled = enabled != 0

	return acct, nil
}

// scanMessage scans a message row from a sqlx.Rows result set.
func scanMessage(rows *sqlx.Rows) (model.MessageSummary, error) {
	var (
		m         model.MessageSummary
		date      sql.NullTime
		unseen    int
		fetchedAt time.Time
	)

	err := rows.Scan(
		&m.ID, &m.AccountID, &m.UID, &m.MessageID, &m.Subject,
		&m.FromAddress, &m.FromDisplay, &m.Token, &date,
		&unseen, &m.AttachmentCount, &fetchedAt,
	)
	if err != nil {
		return model.MessageSummary{}, fmt.Errorf("scanning message row: %w", err)
	}

	if date.Valid {
		t := date.Time
		m.Date = &t
	}
	m.Unseen = unseen != 0
	m.FetchedAt = fetchedAt

	return m, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
