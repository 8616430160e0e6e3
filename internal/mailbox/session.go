package mailbox

import (
	"bytes"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
)

// IMAP has no explicit unseen flag (unseen is the absence of \Seen) and
// IMAP4rev2 dropped \Recent, but servers still report it. The session
// layer normalizes both into the flag snapshot so the assembler can apply
// one uniform rule.
const (
	flagSeen    = "\\Seen"
	flagRecent  = "\\Recent"
	flagUnseen  = "\\Unseen"
	flagDeleted = "\\Deleted"
)

// Session is the mailbox capability the checker is built on: structure,
// body and header fetches in peek mode, searches, identifier resolution,
// and the one-shot mutation commands. The production implementation wraps
// a go-imap client; tests substitute fakes.
//
// Implementations are not required to be safe for concurrent use; the
// checker serializes all calls through the single session it owns.
type Session interface {
	// Ping verifies the session is still alive.
	Ping() error

	// TotalMessages returns the number of messages in the selected
	// mailbox.
	TotalMessages() (uint32, error)

	// FetchStructure retrieves the MIME part tree of one message.
	FetchStructure(id uint32, uid bool) (*MimePart, error)

	// FetchBodyPart retrieves the raw payload of one part, addressed by
	// its section path. The fetch must not set the \Seen flag.
	FetchBodyPart(id uint32, path []int, uid bool) ([]byte, error)

	// FetchHeader retrieves header metadata for one message, including
	// both identifiers and the flag snapshot.
	FetchHeader(id uint32, uid bool) (*HeaderInfo, error)

	// Search runs a mailbox search and returns matching identifiers.
	Search(criteria *imap.SearchCriteria, uid bool) ([]uint32, error)

	// UIDsAbove returns every UID strictly greater than the given
	// watermark, open-ended.
	UIDsAbove(uid uint32) ([]uint32, error)

	// ResolveUID and ResolveSeq cross-resolve the two identifier kinds.
	ResolveUID(seq uint32) (uint32, error)
	ResolveSeq(uid uint32) (uint32, error)

	// StoreFlags adds or removes a flag on the given UIDs.
	StoreFlags(uids []uint32, flag imap.Flag, add bool) error

	// Move transfers a message to another folder.
	Move(uid uint32, folder string) error

	// Expunge removes messages flagged \Deleted. Having nothing to
	// remove is not an error.
	Expunge() error

	// Close tears the session down. Safe to call once only.
	Close() error
}

// DialConfig carries everything needed to open an authenticated session
// on one mailbox.
type DialConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// Mailbox defaults to INBOX.
	Mailbox string

	// TLS selects implicit TLS; otherwise STARTTLS is used.
	TLS bool

	DialTimeout time.Duration
}

type imapSession struct {
	client  *imapclient.Client
	mailbox string
}

// Dial connects to an IMAP server, authenticates, and selects the
// configured mailbox. The returned session is ready for use by a single
// checker and must be closed by it.
func Dial(cfg DialConfig) (Session, error) {
	if cfg.Host == "" {
		return nil, &SessionError{Reason: "config missing host"}
	}
	port := cfg.Port
	if port == 0 {
		if cfg.TLS {
			port = 993
		} else {
			port = 143
		}
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: timeout}}

	var client *imapclient.Client
	var err error
	if cfg.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, &SessionError{Reason: "connect " + addr, Err: err}
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &SessionError{Reason: "auth for " + cfg.Username, Err: err}
	}

	mbox := cfg.Mailbox
	if mbox == "" {
		mbox = "INBOX"
	}
	if _, err := client.Select(mbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &SessionError{Reason: "select " + mbox, Err: err}
	}

	return &imapSession{client: client, mailbox: mbox}, nil
}

func (s *imapSession) Ping() error {
	return s.client.Noop().Wait()
}

func (s *imapSession) TotalMessages() (uint32, error) {
	if mbox := s.client.Mailbox(); mbox != nil {
		return mbox.NumMessages, nil
	}
	data, err := s.client.Status(s.mailbox, &imap.StatusOptions{NumMessages: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("status %s: %w", s.mailbox, err)
	}
	if data.NumMessages == nil {
		return 0, nil
	}
	return *data.NumMessages, nil
}

func numSetFor(id uint32, uid bool) imap.NumSet {
	if uid {
		return imap.UIDSetNum(imap.UID(id))
	}
	return imap.SeqSetNum(id)
}

func (s *imapSession) fetchOne(id uint32, uid bool, opts *imap.FetchOptions) (*imapclient.FetchMessageBuffer, error) {
	bufs, err := s.client.Fetch(numSetFor(id, uid), opts).Collect()
	if err != nil {
		return nil, err
	}
	if len(bufs) == 0 {
		return nil, fmt.Errorf("message %d not found", id)
	}
	return bufs[0], nil
}

func (s *imapSession) FetchStructure(id uint32, uid bool) (*MimePart, error) {
	buf, err := s.fetchOne(id, uid, &imap.FetchOptions{
		UID:           true,
		BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching bodystructure: %w", err)
	}
	if buf.BodyStructure == nil {
		return nil, fmt.Errorf("server returned no bodystructure for %d", id)
	}
	return convertStructure(buf.BodyStructure), nil
}

func (s *imapSession) FetchBodyPart(id uint32, path []int, uid bool) ([]byte, error) {
	section := &imap.FetchItemBodySection{Part: path, Peek: true}
	buf, err := s.fetchOne(id, uid, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching part %s: %w", pathString(path), err)
	}
	body := buf.FindBodySection(section)
	if body == nil {
		return nil, fmt.Errorf("server returned no data for part %s", pathString(path))
	}
	return body, nil
}

func (s *imapSession) FetchHeader(id uint32, uid bool) (*HeaderInfo, error) {
	section := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}
	buf, err := s.fetchOne(id, uid, &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		Flags:        true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{section},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching header: %w", err)
	}

	h := &HeaderInfo{
		SeqNum:       buf.SeqNum,
		UID:          uint32(buf.UID),
		InternalDate: buf.InternalDate,
	}

	seen := false
	for _, f := range buf.Flags {
		h.Flags = append(h.Flags, string(f))
		if strings.EqualFold(string(f), flagSeen) {
			seen = true
		}
	}
	if !seen {
		h.Flags = append(h.Flags, flagUnseen)
	}

	if env := buf.Envelope; env != nil {
		h.MessageID = stripAngles(env.MessageID)
		h.From = convertAddresses(env.From)
		h.Sender = convertAddresses(env.Sender)
		h.To = convertAddresses(env.To)
		h.Cc = convertAddresses(env.Cc)
		h.Bcc = convertAddresses(env.Bcc)
		if len(env.From) > 0 {
			h.FromAddress = env.From[0].Addr()
		}
		if len(env.Sender) > 0 {
			h.SenderAddress = env.Sender[0].Addr()
		}
	}

	if raw := buf.FindBodySection(section); raw != nil {
		fillRawHeaders(h, raw)
	}
	return h, nil
}

// fillRawHeaders extracts the raw Subject and Date header values from a
// fetched header section. Envelope data is already decoded by the server,
// but the pipeline owns its own decoding with documented fallbacks, so
// the raw values are preserved here.
func fillRawHeaders(h *HeaderInfo, raw []byte) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && entity == nil {
		return
	}
	hdr := gomail.Header{Header: entity.Header}
	h.RawSubject = hdr.Get("Subject")
	h.RawDate = hdr.Get("Date")
	if h.MessageID == "" {
		h.MessageID = stripAngles(hdr.Get("Message-Id"))
	}
}

func convertAddresses(addrs []imap.Address) []Address {
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Address{Name: a.Name, Mailbox: a.Mailbox, Host: a.Host})
	}
	return out
}

// convertStructure maps a server-reported body structure onto the
// MimePart tree the walker consumes, validating shapes once at this
// boundary so decoding logic never deals with optional fields.
func convertStructure(bs imap.BodyStructure) *MimePart {
	switch part := bs.(type) {
	case *imap.BodyStructureSinglePart:
		mp := &MimePart{
			Type:      ParsePartType(part.Type),
			Subtype:   strings.ToLower(part.Subtype),
			Encoding:  ParseEncoding(part.Encoding),
			Params:    copyParams(part.Params),
			ContentID: part.ID,
		}
		if ext := part.Extended; ext != nil && ext.Disposition != nil {
			mp.Disposition = strings.ToLower(ext.Disposition.Value)
			mp.DispositionParams = copyParams(ext.Disposition.Params)
		}
		if part.MessageRFC822 != nil && part.MessageRFC822.BodyStructure != nil {
			mp.Children = []*MimePart{convertStructure(part.MessageRFC822.BodyStructure)}
		}
		return mp
	case *imap.BodyStructureMultiPart:
		mp := &MimePart{
			Type:    PartMultipart,
			Subtype: strings.ToLower(part.Subtype),
		}
		if ext := part.Extended; ext != nil {
			mp.Params = copyParams(ext.Params)
			if ext.Disposition != nil {
				mp.Disposition = strings.ToLower(ext.Disposition.Value)
				mp.DispositionParams = copyParams(ext.Disposition.Params)
			}
		}
		for _, child := range part.Children {
			mp.Children = append(mp.Children, convertStructure(child))
		}
		return mp
	default:
		return &MimePart{Type: PartOther}
	}
}

func copyParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func (s *imapSession) Search(criteria *imap.SearchCriteria, uid bool) ([]uint32, error) {
	if uid {
		data, err := s.client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return nil, err
		}
		return sortedNums(uidsToNums(data.AllUIDs())), nil
	}
	data, err := s.client.Search(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}
	return sortedNums(data.AllSeqNums()), nil
}

func (s *imapSession) UIDsAbove(uid uint32) ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{{imap.UIDRange{Start: imap.UID(uid + 1), Stop: 0}}},
	}
	return s.Search(criteria, true)
}

func (s *imapSession) ResolveUID(seq uint32) (uint32, error) {
	buf, err := s.fetchOne(seq, false, &imap.FetchOptions{UID: true})
	if err != nil {
		return 0, fmt.Errorf("resolving uid for seq %d: %w", seq, err)
	}
	return uint32(buf.UID), nil
}

func (s *imapSession) ResolveSeq(uid uint32) (uint32, error) {
	buf, err := s.fetchOne(uid, true, &imap.FetchOptions{UID: true})
	if err != nil {
		return 0, fmt.Errorf("resolving seq for uid %d: %w", uid, err)
	}
	return buf.SeqNum, nil
}

func (s *imapSession) StoreFlags(uids []uint32, flag imap.Flag, add bool) error {
	op := imap.StoreFlagsAdd
	if !add {
		op = imap.StoreFlagsDel
	}
	uidSet := imap.UIDSetNum(numsToUIDs(uids)...)
	store := &imap.StoreFlags{Op: op, Silent: true, Flags: []imap.Flag{flag}}
	if err := s.client.Store(uidSet, store, nil).Close(); err != nil {
		return fmt.Errorf("storing %s: %w", flag, err)
	}
	return nil
}

func (s *imapSession) Move(uid uint32, folder string) error {
	if _, err := s.client.Move(imap.UIDSetNum(imap.UID(uid)), folder).Wait(); err != nil {
		return fmt.Errorf("moving uid %d to %s: %w", uid, folder, err)
	}
	return nil
}

func (s *imapSession) Expunge() error {
	if err := s.client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

func (s *imapSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		// Logout failing still warrants dropping the connection.
		_ = s.client.Close()
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func uidsToNums(uids []imap.UID) []uint32 {
	out := make([]uint32, 0, len(uids))
	for _, u := range uids {
		out = append(out, uint32(u))
	}
	return out
}

func numsToUIDs(nums []uint32) []imap.UID {
	out := make([]imap.UID, 0, len(nums))
	for _, n := range nums {
		out = append(out, imap.UID(n))
	}
	return out
}

func sortedNums(nums []uint32) []uint32 {
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}
