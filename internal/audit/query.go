package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Filter selects audit entries. Zero fields match everything.
type Filter struct {
	Event   string
	Caller  string
	Subject string
	Since   time.Time
	Until   time.Time
	// Limit keeps only the last Limit matches.
	Limit int
}

// Match reports whether e passes every set criterion. Entries with an
// unparseable timestamp never match a time bound.
func (f Filter) Match(e Entry) bool {
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.Caller != "" && e.Caller != f.Caller {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.Since.IsZero() && f.Until.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.Since.IsZero() && ts.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ts.After(f.Until) {
		return false
	}
	return true
}

// Query reads the JSONL log at path and returns the matching entries in file
// order.
func Query(path string, f Filter) ([]Entry, error) {
	var out []Entry
	err := eachLine(path, func(n int, line []byte) error {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if f.Match(e) {
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: query %s: %w", path, err)
	}
	return limit(out, f.Limit), nil
}

func limit(entries []Entry, n int) []Entry {
	if n > 0 && len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

// Summary aggregates a set of entries.
type Summary struct {
	Total    int            `json:"total"`
	ByEvent  map[string]int `json:"by_event"`
	ByCaller map[string]int `json:"by_caller"`
	First    string         `json:"first,omitempty"`
	Last     string         `json:"last,omitempty"`
}

// Summarize counts entries per event kind and per caller.
func Summarize(entries []Entry) Summary {
	s := Summary{ByEvent: map[string]int{}, ByCaller: map[string]int{}}
	for _, e := range entries {
		s.Total++
		s.ByEvent[e.Event]++
		s.ByCaller[e.Caller]++
		if s.First == "" || e.Timestamp < s.First {
			s.First = e.Timestamp
		}
		if e.Timestamp > s.Last {
			s.Last = e.Timestamp
		}
	}
	return s
}

// sortedKeys returns m's keys ordered by descending count, then name.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
