package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTransport is an in-memory raft.Transport for unit tests, routed
// through a shared switchboard keyed by replica id.
type fakeTransport struct {
	self  string
	board map[string]chan Message
}

func newFakeCluster(ids []string) map[string]*fakeTransport {
	board := make(map[string]chan Message)
	for _, id := range ids {
		board[id] = make(chan Message, 256)
	}
	out := make(map[string]*fakeTransport)
	for _, id := range ids {
		out[id] = &fakeTransport{self: id, board: board}
	}
	return out
}

func (t *fakeTransport) Send(m Message) error {
	if m.Dst == Broadcast {
		for id, ch := range t.board {
			if id == t.self {
				continue
			}
			select {
			case ch <- m:
			default:
			}
		}
		return nil
	}
	if ch, ok := t.board[m.Dst]; ok {
		select {
		case ch <- m:
		default:
		}
	}
	return nil
}

func (t *fakeTransport) Recv(timeout time.Duration) (Message, bool) {
	select {
	case m := <-t.board[t.self]:
		return m, true
	case <-time.After(timeout):
		return Message{}, false
	}
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestReplica(id string, peers []string, tp Transport) *Replica {
	return New(id, peers, tp, testLogger())
}

func TestCandidateGrantsVoteOnUpToDateLog(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB"})
	r := newTestReplica("AAAA", []string{"BBBB"}, tps["AAAA"])

	r.handleCandidacy(Message{Src: "BBBB", Term: 1, LastIdx: -1, LastTerm: 0})

	require.Equal(t, "BBBB", r.votedFor)
	msg, ok := tps["BBBB"].Recv(time.Second)
	require.True(t, ok)
	require.Equal(t, MsgVote, msg.Type)
	require.Equal(t, -1, msg.AsInt(-99))
}

func TestVotedForIsStickyWithinTerm(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB", "CCCC"})
	r := newTestReplica("AAAA", []string{"BBBB", "CCCC"}, tps["AAAA"])

	r.handleCandidacy(Message{Src: "BBBB", Term: 1, LastIdx: -1, LastTerm: 0})
	require.Equal(t, "BBBB", r.votedFor)
	_, _ = tps["BBBB"].Recv(time.Second)

	// A second candidate in the same term must not also get a vote.
	r.handleCandidacy(Message{Src: "CCCC", Term: 1, LastIdx: -1, LastTerm: 0})
	require.Equal(t, "BBBB", r.votedFor)
	_, ok := tps["CCCC"].Recv(10 * time.Millisecond)
	require.False(t, ok)
}

func TestHigherTermForcesDemotion(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB"})
	r := newTestReplica("AAAA", []string{"BBBB"}, tps["AAAA"])
	r.role = Leader
	r.term = 1

	r.handleAppendEntries(Message{Src: "BBBB", Term: 5})

	require.Equal(t, Follower, r.role)
	require.Equal(t, uint64(5), r.term)
	require.Equal(t, "", r.votedFor)
}

func TestThreeNodeMajorityElectsLeader(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB", "CCCC"})
	r := newTestReplica("AAAA", []string{"BBBB", "CCCC"}, tps["AAAA"])

	r.startElection()
	require.Equal(t, Candidate, r.role)

	r.handleVote(Message{Src: "BBBB", Term: r.term, RawValue: IntValue(-1)})
	require.Equal(t, Leader, r.role, "two votes out of three (including self) is a majority")
}

func TestFiveNodeMajorityRequiresThreeVotes(t *testing.T) {
	ids := []string{"AAAA", "BBBB", "CCCC", "DDDD", "EEEE"}
	tps := newFakeCluster(ids)
	r := newTestReplica("AAAA", ids[1:], tps["AAAA"])

	r.startElection()
	r.handleVote(Message{Src: "BBBB", Term: r.term, RawValue: IntValue(-1)})
	require.Equal(t, Candidate, r.role, "one vote plus self is not a majority of five")

	r.handleVote(Message{Src: "CCCC", Term: r.term, RawValue: IntValue(-1)})
	require.Equal(t, Leader, r.role, "two votes plus self is a majority of five")
}

func TestFollowerAppendsFirstEntryAtEmptyLog(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB"})
	r := newTestReplica("BBBB", []string{"AAAA"}, tps["BBBB"])

	r.handleAppendEntries(Message{
		Src: "AAAA", Term: 1,
		PrevLogIndex: -1, PrevLogTerm: 0,
		Entries:      []LogEntry{{Term: 1, Key: "a", Value: "1"}},
		LeaderCommit: -1,
	})

	require.Equal(t, 0, r.entries.LastIndex())
	require.Equal(t, "AAAA", r.leaderID)
	msg, ok := tps["AAAA"].Recv(time.Second)
	require.True(t, ok)
	require.Equal(t, MsgAgree, msg.Type)
	require.Equal(t, 0, msg.AsInt(-1))
}

func TestFollowerRequestsInductionOnMismatch(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB"})
	r := newTestReplica("BBBB", []string{"AAAA"}, tps["BBBB"])

	r.handleAppendEntries(Message{
		Src: "AAAA", Term: 1,
		PrevLogIndex: 5, PrevLogTerm: 2,
		Entries: []LogEntry{{Term: 2, Key: "x", Value: "y"}},
	})

	msg, ok := tps["AAAA"].Recv(time.Second)
	require.True(t, ok)
	require.Equal(t, MsgInduceMe, msg.Type)
}

func TestDuplicateAppendEntriesIsIdempotent(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB"})
	r := newTestReplica("BBBB", []string{"AAAA"}, tps["BBBB"])
	r.entries.Append(LogEntry{Term: 1, Key: "a", Value: "1"})

	r.handleAppendEntries(Message{
		Src: "AAAA", Term: 1,
		PrevLogIndex: -1, PrevLogTerm: 0,
		Entries: []LogEntry{{Term: 1, Key: "a", Value: "1"}},
	})

	require.Equal(t, 0, r.entries.LastIndex(), "resubmitting an already-present entry must not duplicate it")
}

func TestCommitRequiresCurrentTermEntry(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB", "CCCC"})
	r := newTestReplica("AAAA", []string{"BBBB", "CCCC"}, tps["AAAA"])
	r.role = Leader
	r.term = 2
	r.matchIndex = map[string]int{"BBBB": 0, "CCCC": 0}
	// Entry 0 is from a stale term: must not be committed even though a
	// majority (including self) holds it (spec.md §4.4's anti-anomaly gate).
	r.entries.Append(LogEntry{Term: 1, Key: "a", Value: "1"})

	r.recomputeCommit()

	require.Equal(t, -1, r.commitIndex)
}

func TestCommitAppliesAndAnswersPending(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB", "CCCC"})
	r := newTestReplica("AAAA", []string{"BBBB", "CCCC"}, tps["AAAA"])
	r.role = Leader
	r.term = 1
	idx := r.entries.Append(LogEntry{Term: 1, Key: "a", Value: "1"})
	r.pending["mid-1"] = pendingRequest{msg: Message{Src: "client"}, index: idx}
	r.matchIndex = map[string]int{"BBBB": idx, "CCCC": -1}

	r.recomputeCommit()

	require.Equal(t, 0, r.commitIndex)
	require.Equal(t, "1", r.sm.Get("a"))
	require.Empty(t, r.pending)
}

func TestCommitRequiresMajorityOnEvenClusterSize(t *testing.T) {
	ids := []string{"AAAA", "BBBB", "CCCC", "DDDD"}
	tps := newFakeCluster(ids)
	r := newTestReplica("AAAA", ids[1:], tps["AAAA"])
	r.role = Leader
	r.term = 1
	idx := r.entries.Append(LogEntry{Term: 1, Key: "a", Value: "1"})
	// Four-replica cluster: majority is 3 of 4. Only self (the log tail)
	// and one peer hold the entry; that is 2 of 4, not a majority, so it
	// must not commit.
	r.matchIndex = map[string]int{"BBBB": idx, "CCCC": -1, "DDDD": -1}

	r.recomputeCommit()
	require.Equal(t, -1, r.commitIndex, "2 of 4 replicas holding an entry is not a majority")

	// A third replica now also holds it: 3 of 4 is a majority and the
	// entry must commit.
	r.matchIndex["CCCC"] = idx
	r.recomputeCommit()
	require.Equal(t, idx, r.commitIndex, "3 of 4 replicas holding an entry is a majority")
}

func TestDuplicatePutAfterCommitIsNotReappended(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB", "CCCC"})
	r := newTestReplica("AAAA", []string{"BBBB", "CCCC"}, tps["AAAA"])
	r.role = Leader
	r.term = 1

	r.handlePut(Message{Src: "client", MID: "m1", Key: "a", RawValue: StringValue("1")})
	r.matchIndex = map[string]int{"BBBB": 0, "CCCC": 0}
	r.recomputeCommit()
	require.Equal(t, 0, r.commitIndex)
	require.Empty(t, r.pending, "the committed MID must have been purged from pending")

	// The client retries the same MID after it already committed and
	// pending no longer holds it: this must not append a second entry.
	r.handlePut(Message{Src: "client", MID: "m1", Key: "a", RawValue: StringValue("1")})
	require.Equal(t, 0, r.entries.LastIndex(), "a retry of an already-committed MID must not append again")
}

func TestDuplicatePutMIDIsSuppressed(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB"})
	r := newTestReplica("AAAA", []string{"BBBB"}, tps["AAAA"])
	r.role = Leader

	r.handlePut(Message{Src: "client", MID: "m1", Key: "a", RawValue: StringValue("1")})
	r.handlePut(Message{Src: "client", MID: "m1", Key: "a", RawValue: StringValue("2")})

	require.Equal(t, 0, r.entries.LastIndex(), "the retried duplicate must not append a second entry")
}

func TestNonLeaderEnqueuesRedirect(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB"})
	r := newTestReplica("AAAA", []string{"BBBB"}, tps["AAAA"])
	r.role = Follower
	r.leaderID = Broadcast

	r.handleGet(Message{Src: "client", MID: "m1", Key: "a"})

	require.Len(t, r.redirectQueue, 1)
	_, ok := tps["AAAA"].Recv(10 * time.Millisecond)
	require.False(t, ok, "redirect must be deferred, not sent immediately")
}

func TestGetOnMissingKeyReturnsEmptyString(t *testing.T) {
	tps := newFakeCluster([]string{"AAAA", "BBBB", "client"})
	r := newTestReplica("AAAA", []string{"BBBB"}, tps["AAAA"])
	r.role = Leader

	r.handleGet(Message{Src: "client", MID: "m1", Key: "nope"})

	msg, ok := tps["client"].Recv(time.Second)
	require.True(t, ok)
	require.Equal(t, MsgOk, msg.Type)
	require.Equal(t, "", msg.AsString())
}
