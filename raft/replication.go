package raft

// batchSize bounds each AppendEntries payload (spec.md §4.3). A follower
// more than 50 entries behind receives the following windows one at a
// time, each sent by handleAgree when the previous one is acknowledged.
const batchSize = 50

// sendHeartbeats fans out AppendEntries to every peer, sized per the
// leader's belief about that peer's match index (spec.md §4.3). Called on
// promotion and on every heartbeat tick; it sends at most one 50-entry
// window per peer, and the windows after it are sent by handleAgree as
// the follower's agree replies arrive.
func (r *Replica) sendHeartbeats() {
	for _, p := range r.peers {
		r.sendAppendEntriesTo(p)
	}
	r.heartbeatDeadline = newDeadline(HeartbeatInterval())
}

// sendAppendEntriesTo builds and sends one AppendEntries (or heartbeat)
// datagram to peer p, starting just after our recorded match_index[p].
func (r *Replica) sendAppendEntriesTo(p string) {
	base, ok := r.matchIndex[p]
	if !ok {
		base = max(r.entries.Len()-50, 0)
	}
	if base > r.entries.LastIndex() {
		// Nothing at base yet (e.g. an empty log): start from the log tail,
		// which is -1 with prevLogTerm 0 for an empty log.
		base = r.entries.LastIndex()
	}

	entries := r.entries.Slice(base + 1)
	if len(entries) > batchSize {
		entries = entries[:batchSize]
	}

	prevIdx := base
	prevTerm := r.entries.TermAt(prevIdx)

	r.send(p, Message{
		Type:         MsgAppend,
		PrevLogIndex: prevIdx,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: r.commitIndex,
	})
}

// handleAppendEntries implements follower acceptance (spec.md §4.3) and the
// candidate/leader -> follower demotion on observing a current leader
// (spec.md §4.1).
func (r *Replica) handleAppendEntries(m Message) {
	if m.Term < r.term {
		r.log.Debugw("dropping stale-term AppendEntries", "from", m.Src, "err", ErrStaleTerm)
		return
	}
	r.maybeStepDownOnTerm(m.Term)
	if r.role != Follower {
		// Same-term candidate or leader observing a current leader's
		// AppendEntries: step down and adopt the sender (spec.md §4.1).
		r.becomeFollower(m.Src)
	} else if r.leaderID != m.Src {
		r.leaderID = m.Src
	}
	r.electionDeadline = newDeadline(ElectionTimeout())

	if len(m.Entries) == 0 {
		// Heartbeat: if we believe ourselves behind, solicit catch-up;
		// otherwise still absorb any commit progress the leader carries,
		// since a fully caught-up follower only ever receives empty
		// AppendEntries from then on and must still learn when entries
		// it already holds become committed (spec.md §4.3/§4.4).
		if m.LeaderCommit >= r.entries.Len() {
			r.send(m.Src, Message{Type: MsgInduceMe, RawValue: IntValue(r.commitIndex)})
		} else if m.LeaderCommit > r.commitIndex {
			r.commitIndex = min(m.LeaderCommit, r.entries.LastIndex())
			r.applyUpTo(r.commitIndex)
		}
		return
	}

	if r.entries.MatchesAt(m.PrevLogIndex, m.Entries) {
		r.send(m.Src, Message{Type: MsgAgree, RawValue: IntValue(r.entries.LastIndex())})
		// A retransmitted, already-present batch still carries the
		// leader's current commit progress; apply it the same as a
		// freshly appended batch would (spec.md §4.3 case 2's commit
		// step, generalized to the idempotent-duplicate case too so a
		// follower that never again receives fresh entries still learns
		// of commit progress on an already-matched entry).
		if m.LeaderCommit > r.commitIndex {
			r.commitIndex = min(m.LeaderCommit, r.entries.LastIndex())
			r.applyUpTo(r.commitIndex)
		}
		return
	}

	consistent := m.PrevLogIndex == -1 ||
		(r.entries.Has(m.PrevLogIndex) && r.entries.TermAt(m.PrevLogIndex) == m.PrevLogTerm)
	if !consistent {
		r.log.Debugw("log consistency check failed, requesting induction",
			"from", m.Src, "prevLogIndex", m.PrevLogIndex, "prevLogTerm", m.PrevLogTerm, "err", ErrConsistencyMismatch)
		r.send(m.Src, Message{Type: MsgInduceMe, RawValue: IntValue(r.commitIndex)})
		return
	}

	r.entries.TruncateAfter(m.PrevLogIndex)
	r.entries.AppendAll(m.Entries)
	r.send(m.Src, Message{Type: MsgAgree, RawValue: IntValue(r.entries.LastIndex())})

	if m.LeaderCommit > r.commitIndex {
		r.commitIndex = min(m.LeaderCommit, r.entries.LastIndex())
		r.applyUpTo(r.commitIndex)
	}
}

// applyUpTo applies committed-but-unapplied entries to the state machine,
// strictly in index order (spec.md §3 "Applied state").
func (r *Replica) applyUpTo(target int) {
	for r.lastApplied < target {
		r.lastApplied++
		e := r.entries.At(r.lastApplied)
		r.sm.Apply(e.Key, e.Value)
	}
}

// handleAgree and handleInduceMe are the leader-side reactions to follower
// replies (spec.md §4.3 "Leader handling of replies").
func (r *Replica) handleAgree(m Message) {
	if r.maybeStepDownOnTerm(m.Term) || r.role != Leader {
		return
	}
	idx := m.AsInt(0)
	if cur, ok := r.matchIndex[m.Src]; !ok || idx > cur {
		r.matchIndex[m.Src] = idx
	}
	r.recomputeCommit()

	// Keep pipelining: if the follower is still behind our log tail,
	// send it the next 50-entry window immediately rather than waiting
	// for the next heartbeat tick (spec.md §4.3 recursive batching).
	if r.matchIndex[m.Src] < r.entries.LastIndex() {
		r.sendAppendEntriesTo(m.Src)
	}
}

func (r *Replica) handleInduceMe(m Message) {
	if r.maybeStepDownOnTerm(m.Term) || r.role != Leader {
		return
	}
	if cur, ok := r.matchIndex[m.Src]; !ok || cur < 0 {
		r.matchIndex[m.Src] = m.AsInt(-1)
	}
	r.sendAppendEntriesTo(m.Src)
}
