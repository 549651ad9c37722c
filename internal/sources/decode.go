package sources

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// num is a provider number. It accepts JSON numbers and numeric strings;
// null, absent, or anything else decodes as missing and never fails the
// enclosing document.
type num struct {
	v *float64
}

func (n *num) UnmarshalJSON(b []byte) error {
	n.v = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		s = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n.v = &f
	return nil
}

func (n num) ptr() *float64 { return n.v }

// scaled returns the value multiplied by factor, or nil when missing.
func (n num) scaled(factor float64) *float64 {
	if n.v == nil {
		return nil
	}
	v := *n.v * factor
	return &v
}

func (n num) code() (int, bool) {
	if n.v == nil {
		return 0, false
	}
	return int(*n.v), true
}

// at returns xs[i], or nil when i is out of range.
func at(xs []num, i int) *float64 {
	if i < 0 || i >= len(xs) {
		return nil
	}
	return xs[i].v
}

func atString(xs []*string, i int) *string {
	if i < 0 || i >= len(xs) {
		return nil
	}
	return xs[i]
}

// decode unmarshals raw into v and reports whether it succeeded.
func decode(raw []byte, v any) bool {
	if len(bytes.TrimSpace(raw)) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

const localLayout = "2006-01-02T15:04:05"

// hourKey expands "YYYY-MM-DDTHH:MM" to include seconds.
func hourKey(t string) string {
	t = strings.Replace(strings.TrimSpace(t), " ", "T", 1)
	if len(t) == len("2006-01-02T15:04") {
		return t + ":00"
	}
	return t
}

// hourKeyUTC converts a provider local timestamp at the given UTC offset to
// the canonical UTC hour key. Input that does not parse is keyed as-is.
func hourKeyUTC(local string, offsetSeconds int) string {
	key := hourKey(local)
	ms, ok := parseLocalMillis(key, offsetSeconds)
	if !ok {
		return key
	}
	return time.UnixMilli(ms).UTC().Format(localLayout)
}

// utcTime formats unix seconds as a local-layout UTC timestamp.
func utcTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(localLayout)
}

// parseLocalMillis parses a provider local timestamp; ok is false when it
// cannot be parsed.
func parseLocalMillis(s string, offsetSeconds int) (int64, bool) {
	loc := time.FixedZone("", offsetSeconds)
	for _, layout := range []string{localLayout, "2006-01-02T15:04", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// dateOnly returns the YYYY-MM-DD prefix of an ISO date or timestamp.
func dateOnly(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
