// Package wincodec converts request parameters and response bodies
// between UTF-8 and the windows-1252 encoding the forum software
// still speaks.
//
// Characters with no windows-1252 representation are rewritten as
// decimal numeric character references (`&#NNNN;`) instead of being
// rejected, so a request body can always be serialized.
package wincodec

import (
	"fmt"
	"mime"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Representable reports whether r survives a round trip through
// windows-1252.
func Representable(r rune) bool {
	if r < 0x80 {
		return true
	}
	_, ok := charmap.Windows1252.EncodeRune(r)
	return ok
}

// Escape rewrites every rune outside the windows-1252 repertoire as a
// decimal numeric character reference. The result contains only
// representable characters and is never empty for non-empty input.
func Escape(s string) string {
	// fast path: ASCII-only strings need no rewriting
	clean := true
	for _, r := range s {
		if !Representable(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if Representable(r) {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "&#%d;", r)
		}
	}
	return b.String()
}

// EscapeValues applies Escape to every key and value independently.
func EscapeValues(params url.Values) url.Values {
	escaped := make(url.Values, len(params))
	for key, values := range params {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = Escape(v)
		}
		escaped[Escape(key)] = out
	}
	return escaped
}

// EncodeForm escapes params and serializes them as an
// application/x-www-form-urlencoded body in windows-1252.
// Key order follows url.Values.Encode (sorted by key).
func EncodeForm(params url.Values) (string, error) {
	escaped := EscapeValues(params)

	keys := make([]string, 0, len(escaped))
	for k := range escaped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	encoder := charmap.Windows1252.NewEncoder()
	var b strings.Builder
	for _, k := range keys {
		ek, _, err := transform.String(encoder, k)
		if err != nil {
			return "", fmt.Errorf("encode form key %q: %w", k, err)
		}
		for _, v := range escaped[k] {
			ev, _, err := transform.String(encoder, v)
			if err != nil {
				return "", fmt.Errorf("encode form value for %q: %w", k, err)
			}
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(ek))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(ev))
		}
	}
	return b.String(), nil
}

// DecodeBody converts a response body to UTF-8 based on the charset
// declared in the Content-Type header. The forum declares either
// windows-1252 (sometimes under its latin1 alias) or nothing at all,
// in which case windows-1252 is assumed.
func DecodeBody(body []byte, contentType string) ([]byte, error) {
	charset := "windows-1252"
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if cs, ok := params["charset"]; ok {
				charset = strings.ToLower(cs)
			}
		}
	}

	switch charset {
	case "utf-8", "utf8":
		return body, nil
	case "windows-1252", "cp1252", "iso-8859-1", "latin1":
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), body)
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", charset, err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported response charset %q", charset)
	}
}
