package app

import (
	"errors"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanghm/mailcheck/internal/mailbox"
	"github.com/quanghm/mailcheck/internal/store"
	"github.com/quanghm/mailcheck/internal/ui/detail"
)

type stubFlagCall struct {
	uids []uint32
	flag imap.Flag
	add  bool
}

// stubSession is a minimal live session for action tests. It answers
// the liveness check and records flag stores; everything else is inert.
type stubSession struct {
	stores []stubFlagCall
}

func (s *stubSession) Ping() error                    { return nil }
func (s *stubSession) TotalMessages() (uint32, error) { return 0, nil }

func (s *stubSession) FetchStructure(uint32, bool) (*mailbox.MimePart, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSession) FetchBodyPart(uint32, []int, bool) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSession) FetchHeader(uint32, bool) (*mailbox.HeaderInfo, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSession) Search(*imap.SearchCriteria, bool) ([]uint32, error) { return nil, nil }
func (s *stubSession) UIDsAbove(uint32) ([]uint32, error)                  { return nil, nil }
func (s *stubSession) ResolveUID(seq uint32) (uint32, error)               { return seq, nil }
func (s *stubSession) ResolveSeq(uid uint32) (uint32, error)               { return uid, nil }

func (s *stubSession) StoreFlags(uids []uint32, flag imap.Flag, add bool) error {
	s.stores = append(s.stores, stubFlagCall{uids: uids, flag: flag, add: add})
	return nil
}

func (s *stubSession) Move(uint32, string) error { return nil }
func (s *stubSession) Expunge() error            { return nil }
func (s *stubSession) Close() error              { return nil }

func TestToggleRead_RefreshesDetailRecord(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sess := &stubSession{}
	checker, err := mailbox.NewChecker(sess)
	require.NoError(t, err)

	m := New(st)
	m.checkers["acct"] = checker
	m.detail.SetRecord("acct", &mailbox.MessageRecord{UID: 7, Subject: "hi", Unseen: true})

	toggle := func() {
		t.Helper()
		cmd := m.performMessageAction(detail.ActionMsg{
			Action:    "toggle-read",
			AccountID: "acct",
			UID:       7,
		})
		require.NotNil(t, cmd)
		updated, _ := m.Update(cmd())
		m = updated.(Model)
	}

	// First press marks the unseen message read.
	toggle()
	require.Len(t, sess.stores, 1)
	assert.True(t, sess.stores[0].add)
	assert.Equal(t, imap.FlagSeen, sess.stores[0].flag)
	rec := m.detail.Record()
	require.NotNil(t, rec)
	assert.False(t, rec.Unseen)

	// Second press sees the refreshed record and flips back to unread.
	toggle()
	require.Len(t, sess.stores, 2)
	assert.False(t, sess.stores[1].add)
	require.NotNil(t, m.detail.Record())
	assert.True(t, m.detail.Record().Unseen)
}
