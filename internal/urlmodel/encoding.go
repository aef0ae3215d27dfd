package urlmodel

import (
	"fmt"
	"strconv"
	"strings"
)

// safeSet enumerates the characters that MUST be encoded in a given context,
// per spec.md §6's percent-encoding safe-set table. <0x20, 0x7f and >=0x80
// are always encoded regardless of set, so they are not repeated per table;
// '%' is always encoded too, so decoding an encoded string gives it back.
type safeSet map[byte]bool

func newSafeSet(chars string) safeSet {
	s := make(safeSet, len(chars))
	for i := 0; i < len(chars); i++ {
		s[chars[i]] = true
	}
	return s
}

var (
	safeUsername      = newSafeSet(" \"':;<=>@[]^`{}|/\\?#")
	safePassword      = safeUsername
	safePathSegment   = newSafeSet(" \"<>^`{}|/\\?#")
	safeQuery         = newSafeSet(" \"'<>#")
	safeQueryComponent = newSafeSet(" !\"#$&'(),/:;<=>?@[]\\^`{|}~")
	safeFragment      = safeSet{}
)

func mustEncode(b byte, set safeSet) bool {
	if b < 0x20 || b == 0x7f || b >= 0x80 || b == '%' {
		return true
	}
	return set[b]
}

const hexDigits = "0123456789ABCDEF"

// encode percent-encodes every byte of s that must be encoded under set.
func encode(s string, set safeSet) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if mustEncode(c, set) {
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// decodeComponent decodes a path/fragment component: "%HH" -> byte, and (per
// spec.md §4.1) does NOT treat '+' as a space — that rule is query-only.
func decodeComponent(s string, strict bool) (string, error) {
	return percentDecode(s, false, strict)
}

// decodeQueryComponent decodes a query name/value: "%HH" -> byte, '+' -> ' '.
func decodeQueryComponent(s string, strict bool) (string, error) {
	return percentDecode(s, true, strict)
}

func percentDecode(s string, plusIsSpace bool, strict bool) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			if plusIsSpace {
				b.WriteByte(' ')
			} else {
				b.WriteByte('+')
			}
		case '%':
			if i+2 >= len(s) {
				if strict {
					return "", fmt.Errorf("urlmodel: truncated percent-escape in %q", s)
				}
				b.WriteByte('%')
				continue
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				if strict {
					return "", fmt.Errorf("urlmodel: invalid percent-escape %q", s[i:i+3])
				}
				b.WriteByte('%')
				continue
			}
			b.WriteByte(byte(v))
			i += 2
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// Builder assembles a URL fluently as a plain struct whose methods return
// the same struct, rather than nested builder classes.
type Builder struct {
	u URL
}

func NewBuilder() *Builder {
	return &Builder{u: URL{scheme: SchemeHTTP, port: 80}}
}

func (b *Builder) Scheme(s Scheme) *Builder { b.u.scheme = s; return b }
func (b *Builder) Host(h string) *Builder   { b.u.host = h; return b }
func (b *Builder) Port(p int) *Builder      { b.u.port = p; return b }
func (b *Builder) AddPathSegment(seg string) *Builder {
	b.u.segments = append(b.u.segments, seg)
	return b
}
func (b *Builder) AddQueryParameter(name string, value *string) *Builder {
	b.u.hasQuery = true
	b.u.query = append(b.u.query, QueryPair{Name: name, Value: value})
	return b
}
func (b *Builder) Fragment(f string) *Builder { b.u.fragment = f; return b }

func (b *Builder) Build() (URL, error) {
	if b.u.host == "" {
		return URL{}, fmt.Errorf("urlmodel: builder missing host")
	}
	if b.u.port < 1 || b.u.port > 65535 {
		return URL{}, fmt.Errorf("urlmodel: builder port %d out of range", b.u.port)
	}
	return b.u, nil
}
