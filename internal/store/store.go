package store

import (
	"context"

	"github.com/quanghm/mailcheck/internal/model"
)

// MessageFilter controls filtering, sorting, and pagination for cached
// message queries.
type MessageFilter struct {
	AccountID *string
	Unseen    *bool
	Token     *string
	Query     *string // search subject + sender
	SortBy    string  // "date", "uid", "subject", "fetched_at"
	SortDesc  bool
	Limit     int
	Offset    int
}

// Store defines the persistence interface for accounts, their UID
// watermarks, and the cached message summaries the UI renders from.
type Store interface {
	// === Accounts ===

	UpsertAccount(ctx context.Context, acct model.AccountConfig) error
	GetAccounts(ctx context.Context) ([]model.AccountConfig, error)
	GetAccountByID(ctx context.Context, id string) (*model.AccountConfig, error)
	DeleteAccount(ctx context.Context, id string) error

	// === Watermarks ===

	// GetLastUID returns the persisted watermark for an account, zero if
	// none has been recorded yet.
	GetLastUID(ctx context.Context, accountID string) (uint32, error)
	SetLastUID(ctx context.Context, accountID string, uid uint32) error

	// === Cached messages ===

	UpsertMessages(ctx context.Context, msgs []model.MessageSummary) error
	GetMessages(ctx context.Context, filter MessageFilter) ([]model.MessageSummary, error)
	GetMessageByUID(ctx context.Context, accountID string, uid uint32) (*model.MessageSummary, error)
	SetMessageUnseen(ctx context.Context, accountID string, uid uint32, unseen bool) error
	DeleteMessage(ctx context.Context, accountID string, uid uint32) error
	DeleteMessagesForAccount(ctx context.Context, accountID string) error
}
