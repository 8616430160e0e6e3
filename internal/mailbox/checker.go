package mailbox

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
)

// Checker owns one mailbox session and exposes the retrieval and
// mutation surface on top of it. A Checker is safe for concurrent use;
// every operation takes an internal lock, so all network traffic is
// serialized through the one session it owns.
type Checker struct {
	mu      sync.Mutex
	sess    Session
	sink    Sink
	pattern *regexp.Regexp

	// lastUID is the highest UID successfully processed by the most
	// recent batch call; messages is that call's full result set.
	lastUID  uint32
	messages map[uint32]*MessageRecord

	closed bool
}

// CheckerOption customizes a Checker at construction.
type CheckerOption func(*Checker) error

// WithSink supplies the sink that receives non-fatal decode notes.
func WithSink(sink Sink) CheckerOption {
	return func(c *Checker) error {
		if sink != nil {
			c.sink = sink
		}
		return nil
	}
}

// WithTokenPattern overrides the correlation-token pattern. The pattern
// must be non-empty and contain at least one capture group.
func WithTokenPattern(pattern string) CheckerOption {
	return func(c *Checker) error {
		re, err := compileTokenPattern(pattern)
		if err != nil {
			return err
		}
		c.pattern = re
		return nil
	}
}

// WithLastUID seeds the watermark, typically from persisted state.
func WithLastUID(uid uint32) CheckerOption {
	return func(c *Checker) error {
		c.lastUID = uid
		return nil
	}
}

// NewChecker wraps an open session. Construction fails if the session is
// missing or does not answer a liveness check, or if a supplied token
// pattern is invalid.
func NewChecker(sess Session, opts ...CheckerOption) (*Checker, error) {
	if sess == nil {
		return nil, &SessionError{Reason: "missing"}
	}

	c := &Checker{
		sess:     sess,
		sink:     NopSink(),
		messages: map[uint32]*MessageRecord{},
	}
	c.pattern = regexp.MustCompile(DefaultTokenPattern)

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := sess.Ping(); err != nil {
		return nil, &SessionError{Reason: "not alive", Err: err}
	}
	return c, nil
}

// Close releases the session. Only the first call closes; later calls
// are no-ops.
func (c *Checker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.sess.Close()
}

// LastUID returns the current watermark.
func (c *Checker) LastUID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUID
}

// Messages returns the result collection of the most recent batch call.
func (c *Checker) Messages() map[uint32]*MessageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

// MailboxStatus reports mailbox-level metadata: message count, highest
// UID, and the recent/unseen UID sets. Any underlying failure fails the
// whole call.
func (c *Checker) MailboxStatus() (*MailboxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, err := c.sess.TotalMessages()
	if err != nil {
		return nil, &BatchError{Op: "mailbox status", Err: err}
	}

	all, err := c.sess.Search(&imap.SearchCriteria{}, true)
	if err != nil {
		return nil, &BatchError{Op: "mailbox status", Err: err}
	}
	var highest uint32
	for _, uid := range all {
		if uid > highest {
			highest = uid
		}
	}

	recent, err := c.sess.Search(&imap.SearchCriteria{
		Flag: []imap.Flag{imap.Flag(flagRecent)},
	}, true)
	if err != nil {
		return nil, &BatchError{Op: "mailbox status", Err: err}
	}

	unseen, err := c.sess.Search(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, true)
	if err != nil {
		return nil, &BatchError{Op: "mailbox status", Err: err}
	}

	return &MailboxStatus{
		TotalMessages: int(total),
		HighestUID:    highest,
		RecentUIDs:    recent,
		UnseenUIDs:    unseen,
	}, nil
}

// Search runs a text search against the mailbox and returns the sorted
// matching identifiers, UIDs by default.
func (c *Checker) Search(query string, uid bool) ([]uint32, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &InvalidInputError{Field: "search criteria", Reason: "must not be empty"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.sess.Search(&imap.SearchCriteria{Text: []string{query}}, uid)
	if err != nil {
		return nil, &BatchError{Op: "search", Err: err}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// FetchMessagesByIDs assembles the explicitly listed identifiers and
// returns whatever succeeded, keyed by the supplied identifier. It never
// touches the watermark or the retained collection, and identifiers that
// are not positive are silently skipped.
func (c *Checker) FetchMessagesByIDs(ids []uint32, uidMode bool) map[uint32]*MessageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[uint32]*MessageRecord)
	for _, id := range ids {
		if id == 0 {
			continue
		}
		rec, err := c.assemble(id, uidMode)
		if err != nil {
			c.sink.Notef("mailbox: %v, skipping", err)
			continue
		}
		out[id] = rec
	}
	return out
}

// CheckAllEmail processes every message in the mailbox by sequence
// number. Failing to obtain the message count fails the whole call.
func (c *Checker) CheckAllEmail() (map[uint32]*MessageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, err := c.sess.TotalMessages()
	if err != nil {
		return nil, &BatchError{Op: "check all", Err: err}
	}
	ids := make([]uint32, 0, total)
	for seq := uint32(1); seq <= total; seq++ {
		ids = append(ids, seq)
	}
	return c.runBatch(ids, false), nil
}

// CheckSinceDate processes every message received on or after the given
// calendar date. Matching is at day granularity; the time of day is
// ignored. Zero matches is a valid empty result.
func (c *Checker) CheckSinceDate(date time.Time) (map[uint32]*MessageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	uids, err := c.sess.Search(&imap.SearchCriteria{Since: day}, true)
	if err != nil {
		return nil, &BatchError{Op: "search since date", Err: err}
	}
	return c.runBatch(uids, true), nil
}

// CheckSinceLastUID processes every message with a UID strictly greater
// than the supplied watermark. Zero matches is a valid empty result and
// leaves the watermark unchanged.
func (c *Checker) CheckSinceLastUID(uid uint32) (map[uint32]*MessageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	uids, err := c.sess.UIDsAbove(uid)
	if err != nil {
		return nil, &BatchError{Op: "uid overview", Err: err}
	}
	return c.runBatch(uids, true), nil
}

// CheckUnreadEmails processes every message currently flagged unseen.
func (c *Checker) CheckUnreadEmails() (map[uint32]*MessageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	uids, err := c.sess.Search(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, true)
	if err != nil {
		return nil, &BatchError{Op: "search unseen", Err: err}
	}
	return c.runBatch(uids, true), nil
}

// runBatch assembles each identifier in ascending order, skipping
// per-message failures, and replaces the retained collection with the
// results. The watermark advances to the highest UID among successes
// only; a batch with zero successes leaves it where it was. Callers
// must hold c.mu.
func (c *Checker) runBatch(ids []uint32, uidMode bool) map[uint32]*MessageRecord {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make(map[uint32]*MessageRecord, len(ids))
	var maxUID uint32
	for _, id := range ids {
		rec, err := c.assemble(id, uidMode)
		if err != nil {
			c.sink.Notef("mailbox: %v, skipping", err)
			continue
		}
		out[rec.UID] = rec
		if rec.UID > maxUID {
			maxUID = rec.UID
		}
	}

	if maxUID > c.lastUID {
		c.lastUID = maxUID
	}
	c.messages = out
	return out
}

// SetMessageReadStatus adds or clears the seen flag on the given UIDs.
// Zero UIDs are filtered out first; an input with nothing left to do is
// invalid.
func (c *Checker) SetMessageReadStatus(uids []uint32, read bool) error {
	valid := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if uid > 0 {
			valid = append(valid, uid)
		}
	}
	if len(valid) == 0 {
		return &InvalidInputError{Field: "uids", Reason: "no positive uids supplied"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.StoreFlags(valid, imap.FlagSeen, read)
}

// DeleteEmail flags one message deleted and expunges. An expunge with
// nothing to remove is not an error; only a real server failure fails
// the call.
func (c *Checker) DeleteEmail(uid uint32) error {
	if uid == 0 {
		return &InvalidInputError{Field: "uid", Reason: "must be positive"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sess.StoreFlags([]uint32{uid}, imap.FlagDeleted, true); err != nil {
		return err
	}
	return c.sess.Expunge()
}

// DefaultArchiveFolder is the target used when ArchiveEmail is given an
// empty folder name.
const DefaultArchiveFolder = "Archive"

// ArchiveEmail moves one message to the target folder, then expunges,
// with the same failure policy as DeleteEmail.
func (c *Checker) ArchiveEmail(uid uint32, folder string) error {
	if uid == 0 {
		return &InvalidInputError{Field: "uid", Reason: "must be positive"}
	}
	if folder == "" {
		folder = DefaultArchiveFolder
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sess.Move(uid, folder); err != nil {
		return err
	}
	return c.sess.Expunge()
}
