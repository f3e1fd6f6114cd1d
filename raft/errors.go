package raft

import "errors"

// Sentinel errors for the internal failure taxonomy of spec.md §7. Decode
// returns an error wrapping ErrDecode; transport/udp.go wraps read failures in
// ErrTransportClosed. The rest describe purely internal conditions that
// the protocol self-heals (redirect, induction, term-advance) and are
// logged at their call site rather than returned, since the protocol
// itself never surfaces them to a caller.
var (
	// ErrNoLeader: a client request arrived while leader_id == Broadcast.
	ErrNoLeader = errors.New("raft: no known leader")
	// ErrNotLeader: a client request arrived at a replica that knows of a
	// leader but is not it.
	ErrNotLeader = errors.New("raft: not the leader")
	// ErrStaleTerm: a message carried a term older than ours; dropped silently.
	ErrStaleTerm = errors.New("raft: stale term")
	// ErrConsistencyMismatch: AppendEntries failed the prevLogIndex/prevLogTerm check.
	ErrConsistencyMismatch = errors.New("raft: log consistency check failed")
	// ErrDuplicatePut: MID already present in the pending table, or
	// already committed (appliedMIDs).
	ErrDuplicatePut = errors.New("raft: duplicate put suppressed")
	// ErrDecode: a datagram failed to parse as a Message.
	ErrDecode = errors.New("raft: malformed message")
	// ErrTransportClosed: the datagram endpoint is gone.
	ErrTransportClosed = errors.New("raft: transport closed")
)
