package raft

import (
	"time"

	"go.uber.org/zap"
)

// Role is the discriminated role field driving dispatch (spec.md §9:
// "express as a discriminated role field ... not as subclass polymorphism").
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// Transport is the datagram substrate the event loop multiplexes over.
// Recv blocks for at most timeout and reports ok=false on timeout, mirroring
// the "short bounded wait (on the order of 10ms)" of spec.md §5.
type Transport interface {
	Send(m Message) error
	Recv(timeout time.Duration) (m Message, ok bool)
}

// pendingRequest is the leader's bookkeeping for a client put awaiting commit.
type pendingRequest struct {
	msg   Message
	index int
}

// Replica is the owned aggregate for a single cluster member (spec.md §9:
// "package as an owned Replica aggregate held by the event loop; no
// process-wide singletons needed"). All of its state is touched only from
// the single event-loop goroutine that calls Run.
type Replica struct {
	id    string
	peers []string

	transport Transport
	log       *zap.SugaredLogger

	role     Role
	term     uint64
	leaderID string
	votedFor string
	votes    map[string]bool

	entries       Log
	sm            *StateMachine
	lastApplied   int
	commitIndex   int
	matchIndex    map[string]int
	pending       map[string]pendingRequest
	// appliedMIDs records every MID this leader has ever committed, so a
	// retry that arrives after pending has already purged the entry is
	// still recognized as a duplicate instead of being re-appended. Never
	// cleared, mirroring the teacher's ack map (spec.md §4.5, §9.7).
	appliedMIDs   map[string]struct{}
	redirectQueue []Message

	electionDeadline  deadline
	heartbeatDeadline deadline
	progressDeadline  deadline
	redirectDeadline  deadline

	// stopped is set by Stop to end Run's loop after the current tick.
	stopped bool
}

// New constructs a Replica in the initial follower role with an empty log,
// per spec.md §3 ("initial" state, term 0, leader_id FFFF).
func New(id string, peers []string, transport Transport, logger *zap.SugaredLogger) *Replica {
	r := &Replica{
		id:        id,
		peers:     peers,
		transport: transport,
		log:       logger,

		role:     Follower,
		leaderID: Broadcast,
		votedFor: "",

		sm:          NewStateMachine(),
		matchIndex:  make(map[string]int),
		pending:     make(map[string]pendingRequest),
		appliedMIDs: make(map[string]struct{}),

		lastApplied: -1,
		commitIndex: -1,
	}
	r.electionDeadline = newDeadline(ElectionTimeout())
	r.redirectDeadline = newDeadline(RedirectFlushInterval())
	return r
}

// ID returns the replica's own identifier.
func (r *Replica) ID() string { return r.id }

// Role returns the current role (follower/candidate/leader).
func (r *Replica) Role() Role { return r.role }

// Term returns the current term.
func (r *Replica) Term() uint64 { return r.term }

// LastLogIndex returns the index of the last log entry, or -1 if empty.
func (r *Replica) LastLogIndex() int { return r.entries.LastIndex() }

// CommitIndex returns the highest index known to be committed.
func (r *Replica) CommitIndex() int { return r.commitIndex }

// send addresses and emits a message, stamping src/leader from replica state.
func (r *Replica) send(dst string, m Message) {
	m.Src = r.id
	m.Dst = dst
	m.Leader = r.leaderID
	m.Term = r.term
	if err := r.transport.Send(m); err != nil {
		r.log.Warnw("send failed", "dst", dst, "type", m.Type, "err", err)
	}
}

func (r *Replica) broadcast(m Message) {
	for _, p := range r.peers {
		r.send(p, m)
	}
}

// majority is the number of affirmative votes/acks required to act,
// counting the local replica itself. Resolves spec.md §9 Open Question 1:
// "strictly more than half of the full cluster, counting self".
func (r *Replica) majority() int {
	n := len(r.peers) + 1
	return n/2 + 1
}

// maybeStepDownOnTerm implements the term-advance rule (spec.md §4.1):
// any message with a strictly larger term forces demotion to follower and
// adoption of that term, clearing any prior vote. Returns true if it fired.
func (r *Replica) maybeStepDownOnTerm(msgTerm uint64) bool {
	if msgTerm <= r.term {
		return false
	}
	r.term = msgTerm
	r.votedFor = ""
	r.becomeFollower(r.leaderID)
	return true
}

// becomeFollower transitions to follower, optionally adopting a new leader.
// It flushes any pending client requests to the redirect path (spec.md §4.1,
// §4.5 "Pending-log resolution on demotion").
func (r *Replica) becomeFollower(leaderID string) {
	hadOutstanding := r.role != Follower && len(r.pending) > 0
	r.role = Follower
	r.leaderID = leaderID
	r.votes = nil
	r.matchIndex = nil
	if hadOutstanding {
		for _, p := range r.pending {
			r.redirectQueue = append(r.redirectQueue, p.msg)
		}
		r.pending = make(map[string]pendingRequest)
	}
	r.electionDeadline = newDeadline(ElectionTimeout())
}
