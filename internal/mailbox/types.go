package mailbox

import (
	"strings"
	"time"
)

// PartType is the top-level MIME type of a message part.
type PartType int

const (
	PartOther PartType = iota
	PartText
	PartMultipart
	PartMessage
	PartApplication
	PartAudio
	PartImage
	PartVideo
	PartModel
)

// ParsePartType maps a media type string (e.g. "TEXT") to a PartType.
func ParsePartType(s string) PartType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return PartText
	case "multipart":
		return PartMultipart
	case "message":
		return PartMessage
	case "application":
		return PartApplication
	case "audio":
		return PartAudio
	case "image":
		return PartImage
	case "video":
		return PartVideo
	case "model":
		return PartModel
	default:
		return PartOther
	}
}

func (t PartType) String() string {
	switch t {
	case PartText:
		return "text"
	case PartMultipart:
		return "multipart"
	case PartMessage:
		return "message"
	case PartApplication:
		return "application"
	case PartAudio:
		return "audio"
	case PartImage:
		return "image"
	case PartVideo:
		return "video"
	case PartModel:
		return "model"
	default:
		return "other"
	}
}

// Encoding is the declared content transfer encoding of a part.
type Encoding int

const (
	EncodingOther Encoding = iota
	Encoding7Bit
	Encoding8Bit
	EncodingBinary
	EncodingBase64
	EncodingQuotedPrintable
)

// ParseEncoding maps a transfer encoding string (e.g. "BASE64") to an
// Encoding. Unrecognized values map to EncodingOther, which the decoder
// treats as already decoded.
func ParseEncoding(s string) Encoding {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "7bit", "":
		return Encoding7Bit
	case "8bit":
		return Encoding8Bit
	case "binary":
		return EncodingBinary
	case "base64":
		return EncodingBase64
	case "quoted-printable":
		return EncodingQuotedPrintable
	default:
		return EncodingOther
	}
}

// MimePart is one node of a message's body structure as reported by the
// server. Container parts (multipart/*) carry children; leaves carry the
// metadata needed to fetch and decode their payload.
type MimePart struct {
	Type              PartType
	Subtype           string
	Encoding          Encoding
	Disposition       string
	Params            map[string]string
	DispositionParams map[string]string
	ContentID         string
	Children          []*MimePart
}

// MediaType returns the full "type/subtype" string in lowercase.
func (p *MimePart) MediaType() string {
	return p.Type.String() + "/" + strings.ToLower(p.Subtype)
}

// Param looks up a content-type parameter, falling back to the
// content-disposition parameters. Keys are matched case-insensitively.
func (p *MimePart) Param(key string) string {
	if v, ok := lookupParam(p.Params, key); ok {
		return v
	}
	if v, ok := lookupParam(p.DispositionParams, key); ok {
		return v
	}
	return ""
}

func lookupParam(params map[string]string, key string) (string, bool) {
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Attachment is one non-inline file attached to a message. Content holds
// the fully decoded payload bytes.
type Attachment struct {
	Filename    string
	Content     []byte
	Subtype     string
	MIMEType    string
	Disposition string
}

// filePart is an attachment or inline resource collected while walking a
// message's structure. Entries with a ContentID are inline resources: they
// are consumed by cid: resolution and never surface in the public
// attachment list.
type filePart struct {
	Attachment
	ContentID string
}

// Address is one parsed mailbox address from a header address list.
type Address struct {
	Name    string
	Mailbox string
	Host    string
}

// HeaderInfo is the validated header metadata handed from the session to
// the assembler. Optional fields default to their zero value.
type HeaderInfo struct {
	SeqNum     uint32
	UID        uint32
	MessageID  string
	RawSubject string
	RawDate    string

	// InternalDate is the server-side received timestamp; zero if the
	// server did not report one.
	InternalDate time.Time

	From   []Address
	Sender []Address
	To     []Address
	Cc     []Address
	Bcc    []Address

	// FromAddress and SenderAddress are pre-formatted fallbacks some
	// header sources supply when the structured lists are unusable.
	FromAddress   string
	SenderAddress string

	Flags []string
}

// HasFlag reports whether the header carries the given flag, compared
// case-insensitively.
func (h *HeaderInfo) HasFlag(flag string) bool {
	for _, f := range h.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// MessageRecord is one fully processed message. Records are created fresh
// per retrieval call and never mutated afterwards.
type MessageRecord struct {
	// UID is the server-assigned persistent identifier, stable within a
	// mailbox. SeqNum is the session-scoped position and may change
	// across reconnects and expunges.
	UID    uint32
	SeqNum uint32

	// MessageID is the Message-Id header value with angle brackets
	// stripped, empty if absent.
	MessageID string

	Subject string

	// Body is the normalized UTF-8 body. HTML is preferred over plain
	// text and inline cid: resources are embedded as data URIs. Empty if
	// no part decoded.
	Body string

	// RawDate preserves the original Date header text; Date is nil when
	// neither the server timestamp nor the header could be parsed.
	RawDate string
	Date    *time.Time

	// FromAddress is the bare address; FromDisplay is the display name
	// plus address, or whichever of the two is available.
	FromAddress string
	FromDisplay string

	To  []string
	Cc  []string
	Bcc []string

	Attachments []Attachment

	// Token is the correlation token extracted from the subject via the
	// configured pattern, empty if the pattern did not match.
	Token string

	// Unseen is a snapshot of the unseen state at fetch time.
	Unseen bool
}

// MailboxStatus summarizes mailbox-level metadata.
type MailboxStatus struct {
	TotalMessages int

	// HighestUID is 0 for an empty mailbox.
	HighestUID uint32

	RecentUIDs []uint32
	UnseenUIDs []uint32
}
