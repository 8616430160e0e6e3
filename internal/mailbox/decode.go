package mailbox

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register charsets commonly seen in mail that go-message does not
	// know out of the box.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// decodeTransfer reverses a part's content transfer encoding. It never
// fails: undecodable base64 or quoted-printable input and unrecognized
// encodings are returned unchanged, on the policy that such payloads are
// treated as already decoded.
func decodeTransfer(raw []byte, enc Encoding) []byte {
	switch enc {
	case EncodingBase64:
		// Servers report base64 bodies with whitespace/CRLF folding.
		cleaned := strings.Map(func(r rune) rune {
			switch r {
			case '\r', '\n', ' ', '\t':
				return -1
			}
			return r
		}, string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		}
		if err != nil {
			return raw
		}
		return decoded
	case EncodingQuotedPrintable:
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
		if err != nil {
			// The reader may error after emitting valid output; keep
			// whatever decoded cleanly if there is any.
			if len(decoded) > 0 {
				return decoded
			}
			return raw
		}
		return decoded
	default:
		// 7bit, 8bit, binary and unknown encodings pass through.
		return raw
	}
}

// normalizeCharsetName uppercases a declared charset and strips quotes
// and surrounding whitespace. "DEFAULT" is an alias some servers emit for
// ISO-8859-1.
func normalizeCharsetName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "DEFAULT" {
		return "ISO-8859-1"
	}
	return name
}

// detectCharset guesses the charset of undeclared text among the
// candidates {UTF-8, ISO-8859-1, Windows-1252}. Bytes in 0x80-0x9F are
// printable in Windows-1252 but control characters in ISO-8859-1, which
// is the only signal separating the two.
func detectCharset(b []byte) string {
	if utf8.Valid(b) {
		return "UTF-8"
	}
	for _, c := range b {
		if c >= 0x80 && c <= 0x9F {
			return "WINDOWS-1252"
		}
	}
	return "ISO-8859-1"
}

// normalizeText converts a decoded payload to UTF-8, honoring the part's
// declared charset and falling back to detection when none is declared.
// This operation never fails the caller: conversion errors leave the text
// unconverted (noted via the sink) and invalid byte sequences are
// scrubbed so the result is always valid UTF-8.
func normalizeText(raw []byte, part *MimePart, sink Sink) string {
	name := ""
	if part != nil {
		name = part.Param("charset")
	}
	if name == "" {
		name = detectCharset(raw)
	}
	name = normalizeCharsetName(name)

	switch name {
	case "UTF-8", "US-ASCII":
		// US-ASCII is a strict subset of UTF-8; no conversion needed.
	default:
		r, err := charset.Reader(strings.ToLower(name), bytes.NewReader(raw))
		if err == nil {
			var converted []byte
			converted, err = io.ReadAll(r)
			if err == nil {
				raw = converted
			}
		}
		if err != nil {
			sink.Notef("mailbox: charset %s conversion failed, keeping raw text: %v", name, err)
		}
	}

	return scrubUTF8(string(raw))
}

// scrubUTF8 replaces invalid byte sequences so downstream consumers can
// rely on the string being valid UTF-8.
func scrubUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
