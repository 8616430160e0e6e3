package mailbox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessage is one message held by a fakeSession: its identifiers,
// header metadata, structure tree and raw part payloads keyed by dotted
// section path.
type fakeMessage struct {
	uid    uint32
	seq    uint32
	header *HeaderInfo
	root   *MimePart
	bodies map[string][]byte
}

type storeCall struct {
	uids []uint32
	flag imap.Flag
	add  bool
}

type moveCall struct {
	uid    uint32
	folder string
}

// fakeSession is an in-memory Session backed by a fixed message set.
// Error maps inject per-message failures; mutation commands are recorded
// for inspection.
type fakeSession struct {
	msgs map[uint32]*fakeMessage

	pingErr      error
	headerErr    map[uint32]error
	structureErr map[uint32]error
	searchErr    error

	recentUIDs  []uint32
	textResults []uint32

	stores   []storeCall
	moves    []moveCall
	expunges int
	closes   int

	// inFlight and overlaps detect callers entering session methods
	// while another call is still running.
	inFlight atomic.Int32
	overlaps atomic.Int32
}

func newFakeSession(msgs ...*fakeMessage) *fakeSession {
	s := &fakeSession{
		msgs:         make(map[uint32]*fakeMessage),
		headerErr:    make(map[uint32]error),
		structureErr: make(map[uint32]error),
	}
	for _, m := range msgs {
		s.msgs[m.uid] = m
	}
	return s
}

func (s *fakeSession) sortedUIDs() []uint32 {
	uids := make([]uint32, 0, len(s.msgs))
	for uid := range s.msgs {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// enter marks one session call in flight and returns the matching exit.
// Call it as defer s.enter()() at the top of every session method.
func (s *fakeSession) enter() func() {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *fakeSession) Ping() error {
	defer s.enter()()
	return s.pingErr
}

func (s *fakeSession) TotalMessages() (uint32, error) {
	defer s.enter()()
	return uint32(len(s.msgs)), nil
}

func (s *fakeSession) byID(id uint32, uid bool) (*fakeMessage, error) {
	if uid {
		if m, ok := s.msgs[id]; ok {
			return m, nil
		}
	} else {
		for _, m := range s.msgs {
			if m.seq == id {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("message %d not found", id)
}

func (s *fakeSession) FetchStructure(id uint32, uid bool) (*MimePart, error) {
	defer s.enter()()
	m, err := s.byID(id, uid)
	if err != nil {
		return nil, err
	}
	if err := s.structureErr[m.uid]; err != nil {
		return nil, err
	}
	return m.root, nil
}

func (s *fakeSession) FetchBodyPart(id uint32, path []int, uid bool) ([]byte, error) {
	defer s.enter()()
	m, err := s.byID(id, uid)
	if err != nil {
		return nil, err
	}
	body, ok := m.bodies[pathString(path)]
	if !ok {
		return nil, fmt.Errorf("no data for part %s", pathString(path))
	}
	return body, nil
}

func (s *fakeSession) FetchHeader(id uint32, uid bool) (*HeaderInfo, error) {
	defer s.enter()()
	m, err := s.byID(id, uid)
	if err != nil {
		return nil, err
	}
	if err := s.headerErr[m.uid]; err != nil {
		return nil, err
	}
	h := *m.header
	h.UID = m.uid
	h.SeqNum = m.seq
	return &h, nil
}

func (s *fakeSession) Search(criteria *imap.SearchCriteria, uid bool) ([]uint32, error) {
	defer s.enter()()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if !uid {
		return nil, errors.New("fake only searches uids")
	}
	if len(criteria.Text) > 0 {
		return append([]uint32(nil), s.textResults...), nil
	}
	if len(criteria.Flag) == 1 && criteria.Flag[0] == imap.Flag(flagRecent) {
		return append([]uint32(nil), s.recentUIDs...), nil
	}

	var out []uint32
	for _, u := range s.sortedUIDs() {
		m := s.msgs[u]
		if len(criteria.NotFlag) == 1 && criteria.NotFlag[0] == imap.FlagSeen {
			if m.header.HasFlag(flagSeen) {
				continue
			}
		}
		if !criteria.Since.IsZero() {
			if m.header.InternalDate.Before(criteria.Since) {
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeSession) UIDsAbove(uid uint32) ([]uint32, error) {
	defer s.enter()()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var out []uint32
	for _, u := range s.sortedUIDs() {
		if u > uid {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeSession) ResolveUID(seq uint32) (uint32, error) {
	defer s.enter()()
	m, err := s.byID(seq, false)
	if err != nil {
		return 0, err
	}
	return m.uid, nil
}

func (s *fakeSession) ResolveSeq(uid uint32) (uint32, error) {
	defer s.enter()()
	m, err := s.byID(uid, true)
	if err != nil {
		return 0, err
	}
	return m.seq, nil
}

func (s *fakeSession) StoreFlags(uids []uint32, flag imap.Flag, add bool) error {
	defer s.enter()()
	s.stores = append(s.stores, storeCall{uids: uids, flag: flag, add: add})
	return nil
}

func (s *fakeSession) Move(uid uint32, folder string) error {
	defer s.enter()()
	s.moves = append(s.moves, moveCall{uid: uid, folder: folder})
	return nil
}

func (s *fakeSession) Expunge() error {
	defer s.enter()()
	s.expunges++
	return nil
}

func (s *fakeSession) Close() error {
	defer s.enter()()
	s.closes++
	return nil
}

// plainMessage builds a single-part text/plain message whose body is
// fetchable at section 1.
func plainMessage(uid, seq uint32, subject, body string) *fakeMessage {
	return &fakeMessage{
		uid: uid,
		seq: seq,
		header: &HeaderInfo{
			RawSubject: subject,
			From:       []Address{{Name: "Alice", Mailbox: "alice", Host: "example.com"}},
			Flags:      []string{flagUnseen},
		},
		root:   &MimePart{Type: PartText, Subtype: "plain", Params: map[string]string{"charset": "utf-8"}},
		bodies: map[string][]byte{"1": []byte(body)},
	}
}

func mustChecker(t *testing.T, sess Session, opts ...CheckerOption) *Checker {
	t.Helper()
	c, err := NewChecker(sess, opts...)
	require.NoError(t, err)
	return c
}

func TestNewChecker_Validation(t *testing.T) {
	t.Run("nil session", func(t *testing.T) {
		_, err := NewChecker(nil)
		var sessErr *SessionError
		require.ErrorAs(t, err, &sessErr)
	})

	t.Run("dead session", func(t *testing.T) {
		sess := newFakeSession()
		sess.pingErr = errors.New("connection reset")
		_, err := NewChecker(sess)
		var sessErr *SessionError
		require.ErrorAs(t, err, &sessErr)
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("bad token pattern", func(t *testing.T) {
		_, err := NewChecker(newFakeSession(), WithTokenPattern("no groups"))
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("defaults", func(t *testing.T) {
		c := mustChecker(t, newFakeSession())
		assert.Zero(t, c.LastUID())
		assert.Empty(t, c.Messages())
	})
}

func TestChecker_Close_OnceOnly(t *testing.T) {
	sess := newFakeSession()
	c := mustChecker(t, sess)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, sess.closes)
}

func TestCheckSinceLastUID_SkipsFailuresAndAdvancesWatermark(t *testing.T) {
	sess := newFakeSession(
		plainMessage(21, 1, "broken", "x"),
		plainMessage(25, 2, "Re: order #482", "thanks"),
	)
	sess.headerErr[21] = errors.New("header fetch failed")

	sink := &captureSink{}
	c := mustChecker(t, sess, WithSink(sink), WithLastUID(20))

	got, err := c.CheckSinceLastUID(20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Contains(t, got, uint32(25))

	rec := got[25]
	assert.Equal(t, "Re: order #482", rec.Subject)
	assert.Equal(t, "thanks", rec.Body)
	assert.Equal(t, "482", rec.Token)
	assert.Equal(t, "alice@example.com", rec.FromAddress)
	assert.True(t, rec.Unseen)

	assert.Equal(t, uint32(25), c.LastUID())
	assert.Equal(t, got, c.Messages())
	assert.True(t, sink.containing("header fetch failed"))
}

func TestCheckSinceLastUID_EmptyResultKeepsWatermark(t *testing.T) {
	c := mustChecker(t, newFakeSession(), WithLastUID(100))

	got, err := c.CheckSinceLastUID(100)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, uint32(100), c.LastUID())
}

func TestCheckSinceLastUID_SearchFailure(t *testing.T) {
	sess := newFakeSession()
	c := mustChecker(t, sess)
	sess.searchErr = errors.New("server gone")

	_, err := c.CheckSinceLastUID(0)
	assert.True(t, IsBatchError(err))
}

func TestRunBatch_ReplacesCollection(t *testing.T) {
	sess := newFakeSession(
		plainMessage(10, 1, "first", "a"),
		plainMessage(11, 2, "second", "b"),
	)
	c := mustChecker(t, sess)

	first, err := c.CheckSinceLastUID(0)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := c.CheckSinceLastUID(10)
	require.NoError(t, err)
	require.Len(t, second, 1)

	// The retained collection is the latest result, not a merge.
	assert.Equal(t, second, c.Messages())
	assert.NotContains(t, c.Messages(), uint32(10))
}

func TestCheckAllEmail_SequenceMode(t *testing.T) {
	sess := newFakeSession(
		plainMessage(40, 1, "one", "a"),
		plainMessage(41, 2, "two", "b"),
	)
	c := mustChecker(t, sess)

	got, err := c.CheckAllEmail()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got, uint32(40))
	assert.Contains(t, got, uint32(41))
	assert.Equal(t, uint32(2), got[41].SeqNum)
	assert.Equal(t, uint32(41), c.LastUID())
}

func TestCheckSinceDate_DayGranularity(t *testing.T) {
	old := plainMessage(1, 1, "old", "a")
	old.header.InternalDate = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	recent := plainMessage(2, 2, "new", "b")
	recent.header.InternalDate = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	c := mustChecker(t, newFakeSession(old, recent))

	// A mid-day cutoff still matches everything received that day.
	got, err := c.CheckSinceDate(time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, uint32(2))
}

func TestCheckUnreadEmails(t *testing.T) {
	read := plainMessage(5, 1, "read", "a")
	read.header.Flags = []string{flagSeen}
	unread := plainMessage(6, 2, "unread", "b")

	c := mustChecker(t, newFakeSession(read, unread))

	got, err := c.CheckUnreadEmails()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, uint32(6))
}

func TestFetchMessagesByIDs_NoStateMutation(t *testing.T) {
	sess := newFakeSession(plainMessage(30, 3, "hello", "body"))
	c := mustChecker(t, sess, WithLastUID(12))

	got := c.FetchMessagesByIDs([]uint32{0, 30, 99}, true)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[30].Subject)

	assert.Equal(t, uint32(12), c.LastUID())
	assert.Empty(t, c.Messages())
}

func TestFetchMessagesByIDs_SequenceMode(t *testing.T) {
	sess := newFakeSession(plainMessage(30, 3, "hello", "body"))
	c := mustChecker(t, sess)

	got := c.FetchMessagesByIDs([]uint32{3}, false)
	require.Len(t, got, 1)
	// Keyed by the supplied sequence number, not the resolved UID.
	rec := got[3]
	require.NotNil(t, rec)
	assert.Equal(t, uint32(30), rec.UID)
	assert.Equal(t, uint32(3), rec.SeqNum)
}

func TestAssemble_HTMLWinsRegardlessOfOrder(t *testing.T) {
	multipart := func(order ...string) *fakeMessage {
		root := &MimePart{Type: PartMultipart, Subtype: "alternative"}
		bodies := map[string][]byte{}
		for i, sub := range order {
			root.Children = append(root.Children, &MimePart{Type: PartText, Subtype: sub})
			if sub == "html" {
				bodies[fmt.Sprint(i+1)] = []byte("<p>rich</p>")
			} else {
				bodies[fmt.Sprint(i+1)] = []byte("plain " + fmt.Sprint(i+1))
			}
		}
		return &fakeMessage{
			uid:    50,
			seq:    1,
			header: &HeaderInfo{RawSubject: "s"},
			root:   root,
			bodies: bodies,
		}
	}

	t.Run("html after plain", func(t *testing.T) {
		c := mustChecker(t, newFakeSession(multipart("plain", "html")))
		rec, err := c.assemble(50, true)
		require.NoError(t, err)
		assert.Equal(t, "<p>rich</p>", rec.Body)
	})

	t.Run("html before plain", func(t *testing.T) {
		c := mustChecker(t, newFakeSession(multipart("html", "plain")))
		rec, err := c.assemble(50, true)
		require.NoError(t, err)
		assert.Equal(t, "<p>rich</p>", rec.Body)
	})

	t.Run("plain fragments joined", func(t *testing.T) {
		c := mustChecker(t, newFakeSession(multipart("plain", "plain")))
		rec, err := c.assemble(50, true)
		require.NoError(t, err)
		assert.Equal(t, "plain 1\nplain 2", rec.Body)
	})
}

func TestAssemble_InlineResourcesEmbeddedNotAttached(t *testing.T) {
	logo := []byte{0x89, 'P', 'N', 'G'}
	msg := &fakeMessage{
		uid:    60,
		seq:    1,
		header: &HeaderInfo{RawSubject: "s"},
		root: &MimePart{
			Type:    PartMultipart,
			Subtype: "related",
			Children: []*MimePart{
				{Type: PartText, Subtype: "html"},
				{
					Type:        PartImage,
					Subtype:     "png",
					Disposition: "inline",
					ContentID:   "<logo@host>",
				},
				{
					Type:              PartApplication,
					Subtype:           "pdf",
					Disposition:       "attachment",
					DispositionParams: map[string]string{"filename": "report.pdf"},
				},
			},
		},
		bodies: map[string][]byte{
			"1": []byte(`<img src="cid:logo@host">`),
			"2": logo,
			"3": []byte("%PDF"),
		},
	}

	c := mustChecker(t, newFakeSession(msg))
	rec, err := c.assemble(60, true)
	require.NoError(t, err)

	want := fmt.Sprintf(`<img src="data:image/png;base64,%s">`,
		base64.StdEncoding.EncodeToString(logo))
	assert.Equal(t, want, rec.Body)

	require.Len(t, rec.Attachments, 1)
	assert.Equal(t, "report.pdf", rec.Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF"), rec.Attachments[0].Content)
}

func TestAssemble_StructureFailureDegradesToEmptyBody(t *testing.T) {
	msg := plainMessage(70, 1, "subject survives", "never fetched")
	sess := newFakeSession(msg)
	sess.structureErr[70] = errors.New("bodystructure truncated")

	sink := &captureSink{}
	c := mustChecker(t, sess, WithSink(sink))

	rec, err := c.assemble(70, true)
	require.NoError(t, err)
	assert.Equal(t, "subject survives", rec.Subject)
	assert.Empty(t, rec.Body)
	assert.Empty(t, rec.Attachments)
	assert.True(t, sink.containing("bodystructure truncated"))
}

func TestAssemble_MissingMessage(t *testing.T) {
	c := mustChecker(t, newFakeSession())

	_, err := c.assemble(999, true)
	assert.True(t, IsMessageProcessingError(err))
}

func TestMailboxStatus(t *testing.T) {
	read := plainMessage(3, 1, "a", "x")
	read.header.Flags = []string{flagSeen}
	unread := plainMessage(9, 2, "b", "y")

	sess := newFakeSession(read, unread)
	sess.recentUIDs = []uint32{9}
	c := mustChecker(t, sess)

	status, err := c.MailboxStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalMessages)
	assert.Equal(t, uint32(9), status.HighestUID)
	assert.Equal(t, []uint32{9}, status.RecentUIDs)
	assert.Equal(t, []uint32{9}, status.UnseenUIDs)
}

func TestMailboxStatus_SearchFailure(t *testing.T) {
	sess := newFakeSession()
	c := mustChecker(t, sess)
	sess.searchErr = errors.New("down")

	_, err := c.MailboxStatus()
	assert.True(t, IsBatchError(err))
}

func TestChecker_Search(t *testing.T) {
	c := mustChecker(t, newFakeSession())

	t.Run("empty query invalid", func(t *testing.T) {
		_, err := c.Search("   ", true)
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("failure wraps as batch error", func(t *testing.T) {
		sess := newFakeSession()
		c := mustChecker(t, sess)
		sess.searchErr = errors.New("down")
		_, err := c.Search("invoice", true)
		assert.True(t, IsBatchError(err))
	})

	t.Run("results sorted even when server is not", func(t *testing.T) {
		sess := newFakeSession()
		sess.textResults = []uint32{9, 2, 14}
		c := mustChecker(t, sess)

		got, err := c.Search("invoice", true)
		require.NoError(t, err)
		assert.Equal(t, []uint32{2, 9, 14}, got)
	})
}

func TestChecker_SerializesConcurrentCallers(t *testing.T) {
	sess := newFakeSession(
		plainMessage(1, 1, "one", "a"),
		plainMessage(2, 2, "two", "b"),
		plainMessage(3, 3, "three", "c"),
	)
	c := mustChecker(t, sess)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				switch g {
				case 0:
					_, _ = c.CheckSinceLastUID(0)
				case 1:
					_ = c.FetchMessagesByIDs([]uint32{1, 2, 3}, true)
				case 2:
					_ = c.SetMessageReadStatus([]uint32{2}, i%2 == 0)
				default:
					_ = c.LastUID()
					_, _ = c.MailboxStatus()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Zero(t, sess.overlaps.Load(), "session calls overlapped")
}

func TestSetMessageReadStatus(t *testing.T) {
	sess := newFakeSession()
	c := mustChecker(t, sess)

	t.Run("filters zero uids", func(t *testing.T) {
		require.NoError(t, c.SetMessageReadStatus([]uint32{0, 7, 0, 8}, true))
		require.Len(t, sess.stores, 1)
		assert.Equal(t, []uint32{7, 8}, sess.stores[0].uids)
		assert.Equal(t, imap.FlagSeen, sess.stores[0].flag)
		assert.True(t, sess.stores[0].add)
	})

	t.Run("mark unread clears flag", func(t *testing.T) {
		require.NoError(t, c.SetMessageReadStatus([]uint32{7}, false))
		assert.False(t, sess.stores[len(sess.stores)-1].add)
	})

	t.Run("nothing left is invalid", func(t *testing.T) {
		err := c.SetMessageReadStatus([]uint32{0, 0}, true)
		assert.True(t, IsInvalidInput(err))
	})
}

func TestDeleteEmail(t *testing.T) {
	sess := newFakeSession()
	c := mustChecker(t, sess)

	assert.True(t, IsInvalidInput(c.DeleteEmail(0)))

	require.NoError(t, c.DeleteEmail(42))
	require.Len(t, sess.stores, 1)
	assert.Equal(t, []uint32{42}, sess.stores[0].uids)
	assert.Equal(t, imap.FlagDeleted, sess.stores[0].flag)
	assert.Equal(t, 1, sess.expunges)
}

func TestArchiveEmail(t *testing.T) {
	sess := newFakeSession()
	c := mustChecker(t, sess)

	assert.True(t, IsInvalidInput(c.ArchiveEmail(0, "Done")))

	require.NoError(t, c.ArchiveEmail(42, ""))
	require.Len(t, sess.moves, 1)
	assert.Equal(t, moveCall{uid: 42, folder: DefaultArchiveFolder}, sess.moves[0])
	assert.Equal(t, 1, sess.expunges)

	require.NoError(t, c.ArchiveEmail(43, "Done"))
	assert.Equal(t, "Done", sess.moves[1].folder)
}
