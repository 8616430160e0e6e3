package model

import "time"

// MessageSummary is the locally cached view of one fetched message,
// enough to render list rows and drive notifications without another
// round trip to the server.
type MessageSummary struct {
	// ID is the local UUID primary key; AccountID ties the row to the
	// account that fetched it.
	ID        string
	AccountID string

	// UID is the server-assigned identifier within the account's
	// monitored mailbox.
	UID uint32

	MessageID   string
	Subject     string
	FromAddress string
	FromDisplay string

	// Token is the correlation token extracted from the subject, empty
	// if none matched.
	Token string

	// Date is the resolved message date; nil when unknown.
	Date *time.Time

	Unseen          bool
	AttachmentCount int

	FetchedAt time.Time
}
