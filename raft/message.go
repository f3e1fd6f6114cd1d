package raft

import (
	"encoding/json"
	"fmt"
)

// Broadcast is the distinguished identifier meaning "broadcast / unknown leader".
const Broadcast = "FFFF"

// MessageType tags the variant carried by a Message envelope.
type MessageType string

const (
	MsgHello     MessageType = "hello"
	MsgGet       MessageType = "get"
	MsgPut       MessageType = "put"
	MsgOk        MessageType = "ok"
	MsgFail      MessageType = "fail"
	MsgRedirect  MessageType = "redirect"
	MsgCandidacy MessageType = "candidacy"
	MsgVote      MessageType = "vote"
	MsgAppend    MessageType = "AppendEntries"
	MsgAgree     MessageType = "agree"
	MsgInduceMe  MessageType = "induce_me"
)

// Message is the common envelope every datagram carries (spec.md §6).
//
// Not every field is populated for every Type; payload fields are
// documented per type in spec.md §6. "value" is overloaded on the wire
// (a stored string for get/ok, a log index for vote/agree, a commit
// index for induce_me) so it is carried as raw JSON and read back with
// the StringValue/IntValue helpers by whichever handler expects it.
type Message struct {
	Src    string      `json:"src"`
	Dst    string      `json:"dst"`
	Leader string      `json:"leader"`
	Type   MessageType `json:"type"`

	// client <-> leader
	MID      string          `json:"MID,omitempty"`
	Key      string          `json:"key,omitempty"`
	RawValue json.RawMessage `json:"value,omitempty"`

	// election
	Term     uint64 `json:"term,omitempty"`
	LastIdx  int    `json:"lastIndex,omitempty"`
	LastTerm uint64 `json:"lastTerm,omitempty"`

	// replication
	PrevLogIndex int        `json:"prevLogIndex,omitempty"`
	PrevLogTerm  uint64     `json:"prevLogTerm,omitempty"`
	Entries      []LogEntry `json:"entries,omitempty"`
	LeaderCommit int        `json:"leaderCommit,omitempty"`
}

// StringValue sets RawValue to a JSON string (used by get's ok reply).
func StringValue(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// IntValue sets RawValue to a JSON number (used by vote/agree/induce_me).
func IntValue(i int) json.RawMessage {
	b, _ := json.Marshal(i)
	return b
}

// AsString reads RawValue as a string, defaulting to "" if absent or malformed.
func (m Message) AsString() string {
	if len(m.RawValue) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.RawValue, &s); err != nil {
		return ""
	}
	return s
}

// AsInt reads RawValue as an int, defaulting to def if absent or malformed.
func (m Message) AsInt(def int) int {
	if len(m.RawValue) == 0 {
		return def
	}
	var i int
	if err := json.Unmarshal(m.RawValue, &i); err != nil {
		return def
	}
	return i
}

// Encode renders a Message as a single length-framed JSON datagram body.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a raw datagram body into a Message. Malformed packets are
// the caller's responsibility to drop (spec.md §7, DecodeError): a
// decode failure is wrapped in ErrDecode so the caller can log or
// compare against it rather than inspecting the raw json error.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return m, nil
}

// AddressedToMe reports whether a message's dst means this replica should
// process it: its own id, or the broadcast address.
func AddressedToMe(m Message, self string) bool {
	return m.Dst == self || m.Dst == Broadcast
}
