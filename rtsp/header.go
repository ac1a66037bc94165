package rtsp

import (
	"strings"
)

var canonicalKeys = map[string]string{}

func init() {
	for _, k := range []string{
		"CSeq", "Session", "Transport", "Content-Length", "Content-Type", "Content-Base",
		"Authorization", "WWW-Authenticate", "Require", "Proxy-Require", "Range", "RTP-Info",
		"Unsupported", "Public", "Date", "Server", "User-Agent", "Accept", "Location",
	} {
		canonicalKeys[strings.ToUpper(k)] = k
	}
}

// CanonicalKey returns the canonical spelling of a known header key. Unknown keys
// are returned unchanged.
func CanonicalKey(key string) string {
	if c, ok := canonicalKeys[strings.ToUpper(key)]; ok {
		return c
	}

	return key
}

type headerField struct {
	key   string
	value string
}

// Header is a case-insensitive, insertion ordered collection of header lines. A key
// may appear more than once. The zero value is an empty header.
type Header struct {
	fields []headerField
}

// Add appends a header line. Existing values for the key are kept.
func (h *Header) Add(key, value string) {
	h.fields = append(h.fields, headerField{key: CanonicalKey(key), value: value})
}

// Set replaces all values of key with value. The position of the first occurrence
// is kept, otherwise the line is appended.
func (h *Header) Set(key, value string) {
	key = CanonicalKey(key)

	found := false
	fields := h.fields[:0]

	for _, f := range h.fields {
		if !strings.EqualFold(f.key, key) {
			fields = append(fields, f)
			continue
		}

		if found {
			continue
		}

		found = true
		fields = append(fields, headerField{key: key, value: value})
	}

	h.fields = fields

	if !found {
		h.fields = append(h.fields, headerField{key: key, value: value})
	}
}

// Get returns the first value for key or an empty string.
func (h *Header) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Lookup returns the first value for key and whether the key is present.
func (h *Header) Lookup(key string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.key, key) {
			return f.value, true
		}
	}

	return "", false
}

// Values returns all values for key in insertion order.
func (h *Header) Values(key string) []string {
	var values []string

	for _, f := range h.fields {
		if strings.EqualFold(f.key, key) {
			values = append(values, f.value)
		}
	}

	return values
}

func (h *Header) Has(key string) bool {
	_, ok := h.Lookup(key)
	return ok
}

// Del removes all lines for key.
func (h *Header) Del(key string) {
	fields := h.fields[:0]

	for _, f := range h.fields {
		if !strings.EqualFold(f.key, key) {
			fields = append(fields, f)
		}
	}

	h.fields = fields
}

// Len returns the number of header lines.
func (h *Header) Len() int {
	return len(h.fields)
}

// Keys returns the distinct keys in order of their first appearance.
func (h *Header) Keys() []string {
	keys := []string{}

	for _, f := range h.fields {
		dup := false
		for _, k := range keys {
			if strings.EqualFold(k, f.key) {
				dup = true
				break
			}
		}

		if !dup {
			keys = append(keys, f.key)
		}
	}

	return keys
}

// Range calls fn for every header line in order until fn returns false.
func (h *Header) Range(fn func(key, value string) bool) {
	for _, f := range h.fields {
		if !fn(f.key, f.value) {
			return
		}
	}
}

func (h *Header) Clone() Header {
	c := Header{}

	if len(h.fields) != 0 {
		c.fields = make([]headerField, len(h.fields))
		copy(c.fields, h.fields)
	}

	return c
}
