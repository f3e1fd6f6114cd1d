package raft

import (
	"encoding/json"
	"fmt"
)

// LogEntry is an ordered pair (term, (key, value)) — spec.md §3.
type LogEntry struct {
	Term  uint64
	Key   string
	Value string
}

// MarshalJSON renders an entry as the wire's [term, [key, value]] pair
// (spec.md §6: "entries is an ordered sequence of [term, [key, value]] pairs").
func (e LogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.Term, [2]string{e.Key, e.Value}})
}

func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &e.Term); err != nil {
		return err
	}
	var kv [2]string
	if err := json.Unmarshal(raw[1], &kv); err != nil {
		return err
	}
	e.Key, e.Value = kv[0], kv[1]
	return nil
}

// Log is the append-only sequence of LogEntry, indexed from zero.
// Index -1 means "before the log" throughout the engine.
type Log struct {
	entries []LogEntry
}

// LastIndex returns the index of the final entry, or -1 if empty.
func (l *Log) LastIndex() int {
	return len(l.entries) - 1
}

// LastTerm returns the term of the final entry, or 0 if empty.
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// Len returns the number of entries in the log.
func (l *Log) Len() int {
	return len(l.entries)
}

// At returns the entry at idx. idx must be within [0, LastIndex()].
func (l *Log) At(idx int) LogEntry {
	return l.entries[idx]
}

// TermAt returns the term of the entry at idx, or 0 if idx == -1.
func (l *Log) TermAt(idx int) uint64 {
	if idx < 0 {
		return 0
	}
	if idx >= len(l.entries) {
		panic(fmt.Sprintf("raft: TermAt(%d) out of range (len=%d)", idx, len(l.entries)))
	}
	return l.entries[idx].Term
}

// Has reports whether idx names a valid position in the log.
func (l *Log) Has(idx int) bool {
	return idx >= 0 && idx < len(l.entries)
}

// Append adds a single entry and returns its new index.
func (l *Log) Append(e LogEntry) int {
	l.entries = append(l.entries, e)
	return l.LastIndex()
}

// TruncateAfter discards every entry strictly after idx.
func (l *Log) TruncateAfter(idx int) {
	if idx+1 < len(l.entries) {
		l.entries = l.entries[:idx+1]
	}
}

// AppendAll appends a batch of entries (used by followers accepting
// AppendEntries, and by tests).
func (l *Log) AppendAll(entries []LogEntry) {
	l.entries = append(l.entries, entries...)
}

// Slice returns the entries in [from, LastIndex()], used to build an
// AppendEntries payload.
func (l *Log) Slice(from int) []LogEntry {
	if from < 0 {
		from = 0
	}
	if from >= len(l.entries) {
		return nil
	}
	out := make([]LogEntry, len(l.entries)-from)
	copy(out, l.entries[from:])
	return out
}

// MatchesAt reports whether entries is non-empty and every one of them,
// placed starting at prevLogIndex+1, is already in the log with the same
// term; it is false if any of them lies past the log's end (used for
// idempotent duplicate AppendEntries handling, spec.md §4.3 case 1).
func (l *Log) MatchesAt(prevLogIndex int, entries []LogEntry) bool {
	for i, e := range entries {
		idx := prevLogIndex + 1 + i
		if idx >= len(l.entries) {
			return false
		}
		if l.entries[idx].Term != e.Term {
			return false
		}
	}
	return len(entries) > 0 && prevLogIndex+len(entries) <= len(l.entries)
}

// StateMachine is the derived key-value map applied from the log in order.
type StateMachine struct {
	data map[string]string
}

// NewStateMachine returns an empty applied state.
func NewStateMachine() *StateMachine {
	return &StateMachine{data: make(map[string]string)}
}

// Apply writes key := value, as applying the entry at some index would.
func (s *StateMachine) Apply(key, value string) {
	s.data[key] = value
}

// Get returns the current value for key, or "" if absent — spec.md §9.4
// treats missing and explicitly-empty identically.
func (s *StateMachine) Get(key string) string {
	return s.data[key]
}
