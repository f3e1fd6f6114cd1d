package raft

// redirectThreshold is the batch size that forces an early redirect flush
// (spec.md §4.5: "when redirect_queue exceeds 10 entries").
const redirectThreshold = 10

// handleGet and handlePut implement client request admission (spec.md §4.5).
func (r *Replica) handleGet(m Message) {
	if r.role != Leader {
		r.enqueueRedirect(m)
		return
	}
	value := r.sm.Get(m.Key)
	r.send(m.Src, Message{Type: MsgOk, MID: m.MID, RawValue: StringValue(value)})
}

func (r *Replica) handlePut(m Message) {
	if r.role != Leader {
		r.enqueueRedirect(m)
		return
	}
	if _, dup := r.pending[m.MID]; dup {
		r.log.Debugw("dropping duplicate put", "mid", m.MID, "err", ErrDuplicatePut)
		return // idempotent retry suppression
	}
	if _, done := r.appliedMIDs[m.MID]; done {
		// Already committed on an earlier attempt: pending no longer
		// holds it, but appliedMIDs still does, so reply again instead
		// of re-appending (spec.md §9.7's "bare idempotent ok reply").
		r.log.Debugw("re-acking already-committed put", "mid", m.MID, "err", ErrDuplicatePut)
		r.send(m.Src, Message{Type: MsgOk, MID: m.MID})
		return
	}
	idx := r.entries.Append(LogEntry{Term: r.term, Key: m.Key, Value: m.AsString()})
	r.pending[m.MID] = pendingRequest{msg: m, index: idx}
}

// enqueueRedirect defers both the NoLeader and NotLeader cases to the
// batched redirect flush (spec.md §4.5, and §9.5's resolution: never emit
// an eager fail alongside a later redirect for the same MID).
func (r *Replica) enqueueRedirect(m Message) {
	if r.leaderID == Broadcast {
		r.log.Debugw("deferring request, no known leader", "mid", m.MID, "err", ErrNoLeader)
	} else {
		r.log.Debugw("deferring request to redirect", "mid", m.MID, "leader", r.leaderID, "err", ErrNotLeader)
	}
	r.redirectQueue = append(r.redirectQueue, m)
	if len(r.redirectQueue) > redirectThreshold {
		r.flushRedirects()
	}
}

// flushRedirects drains the redirect queue, sending one redirect per
// buffered message (spec.md §4.5).
func (r *Replica) flushRedirects() {
	for _, m := range r.redirectQueue {
		r.send(m.Src, Message{Type: MsgRedirect, MID: m.MID})
	}
	r.redirectQueue = nil
	r.redirectDeadline = newDeadline(RedirectFlushInterval())
}
