package raft

import "time"

// tickWait is the short bounded wait the event loop blocks on the
// transport with before reinspecting timers (spec.md §5: "on the order
// of 10ms").
const tickWait = 10 * time.Millisecond

// Run is the single-threaded event loop (spec.md §2, §5). It multiplexes
// inbound messages, timers, and (implicitly, via direct calls) internally
// generated replication fan-out, and never yields mid-operation: every
// branch below runs to completion before the next Recv.
func (r *Replica) Run() {
	r.send(Broadcast, Message{Type: MsgHello})

	for !r.stopped {
		r.tick()
	}
}

// Stop ends the loop after the in-flight tick completes.
func (r *Replica) Stop() { r.stopped = true }

// tick processes at most one inbound message, then reinspects timers —
// the granularity spec.md §5 mandates ("processes at most one inbound
// message per iteration before reinspecting timers").
func (r *Replica) tick() {
	wait := r.nextWait()
	if m, ok := r.transport.Recv(wait); ok {
		r.dispatch(m)
	}
	r.checkTimers()
}

// nextWait takes the minimum of all live deadlines, bounded by tickWait
// (spec.md §9: "the event loop computes the next wake by taking the
// minimum deadline").
func (r *Replica) nextWait() time.Duration {
	w := tickWait
	consider := func(d deadline) {
		if d.at.IsZero() {
			return
		}
		if rem := d.remaining(); rem < w {
			w = rem
		}
	}
	consider(r.electionDeadline)
	consider(r.redirectDeadline)
	if r.role == Leader {
		consider(r.heartbeatDeadline)
		consider(r.progressDeadline)
	}
	return w
}

// dispatch filters by destination and routes a decoded message to its
// handler by tagged type (spec.md §9: "exhaustive case analysis in the
// role handlers").
func (r *Replica) dispatch(m Message) {
	if !AddressedToMe(m, r.id) {
		return
	}

	switch m.Type {
	case MsgGet:
		r.handleGet(m)
	case MsgPut:
		r.handlePut(m)
	case MsgCandidacy:
		r.handleCandidacy(m)
	case MsgVote:
		r.handleVote(m)
	case MsgAppend:
		r.handleAppendEntries(m)
	case MsgAgree:
		r.handleAgree(m)
	case MsgInduceMe:
		r.handleInduceMe(m)
	case MsgHello:
		// no-op: purely an announcement.
	default:
		r.log.Debugw("ignoring message", "type", m.Type, "src", m.Src)
	}
}

// checkTimers fires whichever deadlines have elapsed (spec.md §4.1, §4.4,
// §4.5, §5).
func (r *Replica) checkTimers() {
	if r.electionDeadline.due() && r.role != Leader {
		r.startElection()
	}
	if r.role == Leader {
		if r.heartbeatDeadline.due() {
			r.sendHeartbeats()
		}
		if r.progressDeadline.due() {
			r.log.Warnw("no commit progress, stepping down", "term", r.term)
			r.becomeFollower(Broadcast)
			r.startElection()
		}
	}
	if r.redirectDeadline.due() && len(r.redirectQueue) > 0 {
		r.flushRedirects()
	} else if r.redirectDeadline.due() {
		r.redirectDeadline = newDeadline(RedirectFlushInterval())
	}
}
