package fits

import (
	"strconv"
	"strings"
)

const (
	recordSize      = 80
	recordsPerBlock = 36
	blockSize       = recordSize * recordsPerBlock
)

// Record is a single header card. Value keeps the raw FITS notation
// (strings stay quoted), matching what a keyword dump shows.
type Record struct {
	Keyword string
	Value   string
	Comment string
}

// Header holds the cards of one HDU in file order.
type Header struct {
	records []Record
	index   map[string]int
}

func newHeader() *Header {
	return &Header{index: make(map[string]int)}
}

func (h *Header) add(r Record) {
	h.records = append(h.records, r)
	key := strings.ToUpper(r.Keyword)
	if _, ok := h.index[key]; !ok && key != "" {
		h.index[key] = len(h.records) - 1
	}
}

// Len returns the number of records.
func (h *Header) Len() int { return len(h.records) }

// Record returns the i-th record.
func (h *Header) Record(i int) (Record, bool) {
	if i < 0 || i >= len(h.records) {
		return Record{}, false
	}
	return h.records[i], true
}

// Records returns a copy of all records.
func (h *Header) Records() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Raw returns the raw value of the first card named key.
func (h *Header) Raw(key string) (string, bool) {
	i, ok := h.index[strings.ToUpper(key)]
	if !ok {
		return "", false
	}
	return h.records[i].Value, true
}

// String returns the unquoted string value of key. Empty values count as missing.
func (h *Header) String(key string) (string, bool) {
	raw, ok := h.Raw(key)
	if !ok {
		return "", false
	}
	v := unquote(raw)
	if v == "" {
		return "", false
	}
	return v, true
}

func (h *Header) Float(key string) (float64, bool) {
	raw, ok := h.Raw(key)
	if !ok {
		return 0, false
	}
	return parseNumber(raw)
}

// Int accepts integral values written in either integer or real notation.
func (h *Header) Int(key string) (int, bool) {
	raw, ok := h.Raw(key)
	if !ok {
		return 0, false
	}
	if i, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return i, true
	}
	f, ok := parseNumber(raw)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func (h *Header) Bool(key string) (bool, bool) {
	raw, ok := h.Raw(key)
	if !ok {
		return false, false
	}
	switch strings.TrimSpace(raw) {
	case "T":
		return true, true
	case "F":
		return false, true
	}
	return false, false
}

// FirstString returns the first non-empty string value among candidates.
func (h *Header) FirstString(candidates ...string) (string, bool) {
	for _, key := range candidates {
		if v, ok := h.String(key); ok {
			return v, true
		}
	}
	return "", false
}

func (h *Header) FirstFloat(candidates ...string) (float64, bool) {
	for _, key := range candidates {
		if v, ok := h.Float(key); ok {
			return v, true
		}
	}
	return 0, false
}

func (h *Header) FirstInt(candidates ...string) (int, bool) {
	for _, key := range candidates {
		if v, ok := h.Int(key); ok {
			return v, true
		}
	}
	return 0, false
}

func parseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "'") {
		s = unquote(s)
	}
	// FITS allows Fortran-style exponents.
	s = strings.Replace(s, "D", "E", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func unquote(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "'") {
		return s
	}
	end := strings.LastIndex(s, "'")
	if end <= 0 {
		return strings.TrimRight(strings.TrimLeft(s, "'"), " ")
	}
	return strings.TrimRight(strings.ReplaceAll(s[1:end], "''", "'"), " ")
}

// parseRecord splits an 80-column card into keyword, value and comment.
func parseRecord(card []byte) Record {
	line := string(card)
	if len(line) < recordSize {
		line += strings.Repeat(" ", recordSize-len(line))
	}

	if strings.HasPrefix(line, "HIERARCH ") {
		if eq := strings.IndexByte(line, '='); eq > 0 {
			value, comment := splitValue(line[eq+1:])
			return Record{Keyword: strings.TrimSpace(line[9:eq]), Value: value, Comment: comment}
		}
	}

	keyword := strings.TrimSpace(line[:8])
	if line[8] != '=' || line[9] != ' ' {
		return Record{Keyword: keyword, Comment: strings.TrimSpace(line[8:])}
	}
	value, comment := splitValue(line[10:])
	return Record{Keyword: keyword, Value: value, Comment: comment}
}

func splitValue(field string) (string, string) {
	s := strings.TrimLeft(field, " ")
	if strings.HasPrefix(s, "'") {
		i := 1
		for i < len(s) {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					i += 2
					continue
				}
				break
			}
			i++
		}
		if i >= len(s) {
			return strings.TrimRight(s, " "), ""
		}
		value := s[:i+1]
		rest := s[i+1:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			return value, strings.TrimSpace(rest[slash+1:])
		}
		return value, ""
	}
	if slash := strings.IndexByte(s, '/'); slash >= 0 {
		return strings.TrimSpace(s[:slash]), strings.TrimSpace(s[slash+1:])
	}
	return strings.TrimSpace(s), ""
}

// First returns the record of the first candidate keyword present.
func (h *Header) First(candidates ...string) (Record, bool) {
	for _, key := range candidates {
		if i, ok := h.index[strings.ToUpper(key)]; ok {
			return h.records[i], true
		}
	}
	return Record{}, false
}

// Date parses a DATE-style value.
func (h *Header) Date(key string) (Date, bool) {
	s, ok := h.String(key)
	if !ok {
		return Date{}, false
	}
	return parseDate(s)
}
