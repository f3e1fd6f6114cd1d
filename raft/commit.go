package raft

import "sort"

// recomputeCommit implements spec.md §4.4, resolved per spec.md §9 Open
// Question 2 as the generic quorum rule rather than the reference's
// five-node-specific indices[-3]: take the majority-th largest element
// of the match-index multiset that includes the leader's own log tail,
// for n = cluster size (peers + self). The rank is the same
// strictly-more-than-half count majority() already computes for vote
// tallying, so it's reused rather than re-derived here — a re-derived
// (n+1)/2 silently truncates to n/2 for every even n.
func (r *Replica) recomputeCommit() {
	indices := make([]int, 0, len(r.peers)+1)
	indices = append(indices, r.entries.LastIndex())
	for _, p := range r.peers {
		indices = append(indices, r.matchIndex[p])
	}
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	pos := r.majority() // 1-indexed rank of the quorum element
	if pos > len(indices) {
		pos = len(indices)
	}
	h := indices[pos-1]

	if h <= r.commitIndex {
		return
	}
	// Critical gate (spec.md §4.4): only commit H if log[H].term == current
	// term. Entries from prior terms are committed only indirectly, by
	// committing a later same-term entry over them.
	if !r.entries.Has(h) || r.entries.TermAt(h) != r.term {
		return
	}

	r.commitIndex = h
	r.applyUpTo(r.commitIndex)
	r.progressDeadline = newDeadline(ProgressWatchdog())
	r.resolvePending()
}

// resolvePending answers every pending client request whose recorded log
// index has been committed, in the order spec.md §4.4 describes. Each
// resolved MID is recorded in appliedMIDs so a later retry of the same
// MID is recognized as a duplicate even after pending no longer holds it.
func (r *Replica) resolvePending() {
	for mid, p := range r.pending {
		if p.index <= r.commitIndex {
			r.appliedMIDs[mid] = struct{}{}
			r.send(p.msg.Src, Message{Type: MsgOk, MID: mid})
			delete(r.pending, mid)
		}
	}
}
