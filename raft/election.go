package raft

// startElection implements the follower/candidate -> candidate transition of
// spec.md §4.1: increment term, vote for self, clear votes, broadcast
// candidacy, reset and randomize the election timeout.
func (r *Replica) startElection() {
	r.term++
	r.role = Candidate
	r.votedFor = r.id
	r.votes = map[string]bool{r.id: true}
	r.matchIndex = make(map[string]int)
	r.electionDeadline = newDeadline(ElectionTimeout())

	r.log.Infow("starting election", "term", r.term)

	r.broadcast(Message{
		Type:     MsgCandidacy,
		LastIdx:  r.entries.LastIndex(),
		LastTerm: r.entries.LastTerm(),
	})
}

// handleCandidacy implements the vote-grant decision of spec.md §4.2.
func (r *Replica) handleCandidacy(m Message) {
	if m.Term < r.term {
		r.log.Debugw("dropping stale-term candidacy", "from", m.Src, "err", ErrStaleTerm)
		return
	}
	r.maybeStepDownOnTerm(m.Term)

	grant := (r.votedFor == "" || r.votedFor == m.Src) && r.candidateUpToDate(m)
	if grant {
		r.votedFor = m.Src
		r.electionDeadline = newDeadline(ElectionTimeout())
		r.send(m.Src, Message{Type: MsgVote, RawValue: IntValue(r.entries.LastIndex())})
		r.log.Debugw("granted vote", "to", m.Src, "term", r.term)
	}
}

// candidateUpToDate is Raft's up-to-date check (spec.md §4.2).
func (r *Replica) candidateUpToDate(m Message) bool {
	ourTerm, ourIdx := r.entries.LastTerm(), r.entries.LastIndex()
	if m.LastTerm != ourTerm {
		return m.LastTerm > ourTerm
	}
	return m.LastIdx >= ourIdx
}

// handleVote implements a candidate's vote tally and promotion (spec.md
// §4.2): a candidate accepting a vote records the sender's reported
// lastIndex into match_index, then promotes on reaching majority. A vote
// that arrives after promotion (the candidacy round that elected us is
// still in flight) is treated as an implicit match-index report rather
// than discarded (spec.md §4.3 "vote (residual during term of
// promotion): treat as an implicit match-index report").
func (r *Replica) handleVote(m Message) {
	if m.Term < r.term {
		r.log.Debugw("dropping stale-term vote", "from", m.Src, "err", ErrStaleTerm)
		return
	}
	if r.maybeStepDownOnTerm(m.Term) {
		return
	}
	if m.Term != r.term {
		return
	}

	switch r.role {
	case Candidate:
		idx := m.AsInt(0)
		r.matchIndex[m.Src] = idx
		r.votes[m.Src] = true
		if len(r.votes) >= r.majority() {
			r.becomeLeader()
		}
	case Leader:
		idx := m.AsInt(0)
		if cur, ok := r.matchIndex[m.Src]; !ok || idx > cur {
			r.matchIndex[m.Src] = idx
			r.recomputeCommit()
		}
	}
}

// becomeLeader implements candidate -> leader promotion (spec.md §4.1):
// match_index keeps the vote payloads already recorded in handleVote, and
// each peer without one gets max(len(log)-50, 0); leadership is then
// asserted immediately via an AppendEntries fan-out.
func (r *Replica) becomeLeader() {
	r.role = Leader
	r.leaderID = r.id
	r.heartbeatDeadline = newDeadline(0)
	r.progressDeadline = newDeadline(ProgressWatchdog())

	for _, p := range r.peers {
		if _, ok := r.matchIndex[p]; !ok {
			r.matchIndex[p] = max(r.entries.Len()-50, 0)
		}
	}

	r.log.Infow("elected leader", "term", r.term)
	r.sendHeartbeats()
}
