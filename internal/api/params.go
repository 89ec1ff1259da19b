package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/store"
)

// DefaultWindow is how far back start reaches when only end (or nothing) is given.
const DefaultWindow = 24 * time.Hour

// ParseRange reads start, end, limit and offset from q.
// Missing end means now; missing start means end minus DefaultWindow.
// Timestamps without a zone are UTC. Limit and offset are clamped, not rejected.
func ParseRange(q url.Values, now time.Time) (store.Range, error) {
	r := store.Range{End: now.UTC(), Limit: store.DefaultLimit}

	if s := q.Get("end"); s != "" {
		end, err := ParseTimestamp(s)
		if err != nil {
			return store.Range{}, fmt.Errorf("invalid end: %w", err)
		}
		r.End = end
	}

	r.Start = r.End.Add(-DefaultWindow)
	if s := q.Get("start"); s != "" {
		start, err := ParseTimestamp(s)
		if err != nil {
			return store.Range{}, fmt.Errorf("invalid start: %w", err)
		}
		r.Start = start
	}

	if s := q.Get("limit"); s != "" {
		n, err := parseCount(s)
		if err != nil {
			return store.Range{}, fmt.Errorf("invalid limit %q", s)
		}
		r.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := parseCount(s)
		if err != nil {
			return store.Range{}, fmt.Errorf("invalid offset %q", s)
		}
		r.Offset = n
	}

	return r.Clamped(), nil
}

// parseCount reads an integer query value. Integers too large for int
// saturate (Atoi already returns the bound) and are clamped by the caller.
func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if errors.Is(err, strconv.ErrRange) {
		return n, nil
	}
	return n, err
}

// ParseTimestamp accepts ISO-8601 date-times and plain dates (midnight UTC).
// A space may separate date and time, and a "+" that arrived decoded as a
// space in the query string is restored.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	s = strings.ReplaceAll(s, " ", "+")
	if !strings.ContainsAny(s, "tT") {
		s += "T00:00:00"
	}

	t, err := iso8601.ParseString(s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
