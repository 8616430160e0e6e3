package mailbox

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHeaderValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "utf-8 quoted-printable",
			input:    "=?UTF-8?Q?Invitaci=C3=B3n?=",
			expected: "Invitación",
		},
		{
			name:     "utf-8 base64",
			input:    "=?UTF-8?B?SW52aXRhY2nDs24=?=",
			expected: "Invitación",
		},
		{
			name:     "latin-1 encoded word",
			input:    "=?ISO-8859-1?Q?caf=E9?=",
			expected: "café",
		},
		{
			name:     "multiple encoded words",
			input:    "=?UTF-8?Q?Invitaci=C3=B3n:?= =?UTF-8?Q?_Reuni=C3=B3n?=",
			expected: "Invitación: Reunión",
		},
		{
			name:     "plain text untouched",
			input:    "Re: Order #482 shipped",
			expected: "Re: Order #482 shipped",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "malformed encoded word returned raw",
			input:    "=?UTF-8?X?broken?=",
			expected: "=?UTF-8?X?broken?=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeHeaderValue(tt.input, NopSink())
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecodeHeaderValue_NeverPanicsAlwaysString(t *testing.T) {
	inputs := []string{
		"=?garbage?=",
		"=??B??=",
		"=?UTF-8?B?not base64!!!?=",
		"=?x-unknown-charset?Q?abc?=",
		string([]byte{0xff, 0xfe}),
	}
	for _, in := range inputs {
		got := decodeHeaderValue(in, NopSink())
		assert.NotNil(t, got)
	}
}

func TestFormatAddress(t *testing.T) {
	sink := NopSink()

	assert.Equal(t, "joe@example.com",
		formatAddress(Address{Mailbox: "joe", Host: "example.com"}, sink))
	assert.Equal(t, "",
		formatAddress(Address{Mailbox: "", Host: "example.com"}, sink))
	assert.Equal(t, "",
		formatAddress(Address{Mailbox: "joe", Host: ""}, sink))
	// Group syntax markers have no host and are dropped.
	assert.Equal(t, "",
		formatAddress(Address{Mailbox: "undisclosed-recipients", Host: ""}, sink))
}

func TestFormatAddressList_DropsEmptyPreservesOrder(t *testing.T) {
	addrs := []Address{
		{Mailbox: "a", Host: "example.com"},
		{Mailbox: "group-marker"},
		{Mailbox: "b", Host: "example.org"},
	}
	got := formatAddressList(addrs, NopSink())
	assert.Equal(t, []string{"a@example.com", "b@example.org"}, got)
}

func TestResolveFrom_Precedence(t *testing.T) {
	sink := NopSink()

	t.Run("from with display name", func(t *testing.T) {
		addr, display := resolveFrom(&HeaderInfo{
			From: []Address{{Name: "Jane Doe", Mailbox: "jane", Host: "example.com"}},
		}, sink)
		assert.Equal(t, "jane@example.com", addr)
		assert.Equal(t, `"Jane Doe" <jane@example.com>`, display)
	})

	t.Run("sender fallback", func(t *testing.T) {
		addr, display := resolveFrom(&HeaderInfo{
			Sender: []Address{{Mailbox: "bot", Host: "example.com"}},
		}, sink)
		assert.Equal(t, "bot@example.com", addr)
		assert.Equal(t, "bot@example.com", display)
	})

	t.Run("name only", func(t *testing.T) {
		addr, display := resolveFrom(&HeaderInfo{
			From: []Address{{Name: "Mailer Daemon"}},
		}, sink)
		assert.Equal(t, "", addr)
		assert.Equal(t, "Mailer Daemon", display)
	})

	t.Run("preformatted fallback with angle scrape", func(t *testing.T) {
		addr, display := resolveFrom(&HeaderInfo{
			FromAddress: "Ops <ops@example.com>",
		}, sink)
		assert.Equal(t, "ops@example.com", addr)
		assert.Equal(t, "Ops <ops@example.com>", display)
	})

	t.Run("bare address in display", func(t *testing.T) {
		addr, display := resolveFrom(&HeaderInfo{
			SenderAddress: "alerts@example.com",
		}, sink)
		assert.Equal(t, "alerts@example.com", addr)
		assert.Equal(t, "alerts@example.com", display)
	})

	t.Run("nothing resolvable", func(t *testing.T) {
		addr, display := resolveFrom(&HeaderInfo{}, sink)
		assert.Equal(t, "", addr)
		assert.Equal(t, "", display)
	})
}

func TestStripAngles(t *testing.T) {
	assert.Equal(t, "id@example.com", stripAngles("<id@example.com>"))
	assert.Equal(t, "id@example.com", stripAngles("id@example.com"))
	assert.Equal(t, "", stripAngles(""))
}

func TestResolveDate(t *testing.T) {
	t.Run("internal date wins", func(t *testing.T) {
		internal := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		got := resolveDate(internal, "Mon, 1 Jan 2024 10:00:00 +0000")
		require.NotNil(t, got)
		assert.Equal(t, internal, *got)
	})

	t.Run("strict header parse", func(t *testing.T) {
		got := resolveDate(time.Time{}, "Mon, 1 Jan 2024 10:00:00 +0000")
		require.NotNil(t, got)
		assert.Equal(t, 2024, got.Year())
		assert.Equal(t, time.January, got.Month())
	})

	t.Run("lenient fallback", func(t *testing.T) {
		got := resolveDate(time.Time{}, "1 Jan 2024 10:00:00 GMT")
		require.NotNil(t, got)
		assert.Equal(t, 2024, got.Year())
	})

	t.Run("unparsable is nil", func(t *testing.T) {
		assert.Nil(t, resolveDate(time.Time{}, "sometime last week"))
		assert.Nil(t, resolveDate(time.Time{}, ""))
	})
}

func TestDecodeHeaderValue_ResultUsableAsUTF8(t *testing.T) {
	got := decodeHeaderValue("=?UTF-8?Q?Gr=C3=BC=C3=9Fe?=", NopSink())
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "Grüße", got)
}
