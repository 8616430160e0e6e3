package mailbox

import (
	"bytes"
	"io"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

// decodeHeaderValue decodes RFC 2047 encoded words in a header value.
// Decoding is total: on any failure the raw input is returned unchanged,
// and a decode that produced invalid UTF-8 is retried as ISO-8859-1
// before falling back to the best available value.
func decodeHeaderValue(raw string, sink Sink) string {
	if raw == "" {
		return ""
	}

	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		sink.Notef("mailbox: header decode failed, keeping raw value: %v", err)
		decoded = raw
	}

	if !utf8.ValidString(decoded) {
		latin, lerr := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(
			bytes.NewReader([]byte(decoded))))
		if lerr == nil && utf8.Valid(latin) {
			return string(latin)
		}
	}
	return decoded
}

// formatAddress returns "localpart@host" for a structurally complete
// address, with the local part run through header decoding. Partial
// entries such as group markers ("undisclosed-recipients:;") produce an
// empty string and are meant to be dropped, not substituted.
func formatAddress(a Address, sink Sink) string {
	if a.Mailbox == "" || a.Host == "" {
		return ""
	}
	return decodeHeaderValue(a.Mailbox, sink) + "@" + a.Host
}

// formatAddressList maps addresses through formatAddress, discarding
// entries that format to empty and preserving the order of the rest.
func formatAddressList(addrs []Address, sink Sink) []string {
	var out []string
	for _, a := range addrs {
		if s := formatAddress(a, sink); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var angleAddrPattern = regexp.MustCompile(`<([^<>]+)>`)

// resolveFrom derives the bare sender address and the display form from
// header metadata. The From list is preferred over Sender; a display name
// composes as `"Name" <address>`; pre-formatted fallback fields and a
// final angle-bracket scrape cover malformed entries.
func resolveFrom(h *HeaderInfo, sink Sink) (address, display string) {
	var entry *Address
	if len(h.From) > 0 {
		entry = &h.From[0]
	} else if len(h.Sender) > 0 {
		entry = &h.Sender[0]
	}

	var name string
	if entry != nil {
		address = formatAddress(*entry, sink)
		name = strings.TrimSpace(decodeHeaderValue(entry.Name, sink))
	}

	switch {
	case name != "" && address != "":
		display = `"` + name + `" <` + address + `>`
	case address != "":
		display = address
	case name != "":
		display = name
	}

	if display == "" {
		if h.FromAddress != "" {
			display = h.FromAddress
		} else if h.SenderAddress != "" {
			display = h.SenderAddress
		}
	}

	if address == "" && display != "" {
		if m := angleAddrPattern.FindStringSubmatch(display); m != nil {
			address = strings.TrimSpace(m[1])
		} else if strings.Contains(display, "@") {
			address = strings.TrimSpace(display)
		}
	}

	return address, display
}

// stripAngles removes one pair of surrounding angle brackets from a
// message identifier.
func stripAngles(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return s
}

// lenientDateLayouts are tried, in order, when strict RFC 5322 parsing of
// a Date header fails.
var lenientDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2006-01-02 15:04:05 -0700",
}

// resolveDate picks the message timestamp: a positive server-supplied
// internal date wins; otherwise the raw Date header is parsed strictly,
// then leniently. nil means neither attempt succeeded; the raw string is
// retained on the record regardless.
func resolveDate(internal time.Time, rawDate string) *time.Time {
	if !internal.IsZero() && internal.Unix() > 0 {
		t := internal
		return &t
	}

	rawDate = strings.TrimSpace(rawDate)
	if rawDate == "" {
		return nil
	}

	if t, err := mail.ParseDate(rawDate); err == nil {
		return &t
	}
	for _, layout := range lenientDateLayouts {
		if t, err := time.Parse(layout, rawDate); err == nil {
			return &t
		}
	}
	return nil
}
