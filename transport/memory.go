package transport

import (
	"sync"
	"time"

	"github.com/ReshiAdavan/raftkv/raft"
)

// Hub is an in-process stand-in for the datagram substrate, used by tests
// to run several replicas in one binary without a real network (spec.md
// §1 calls the transport an external collaborator; this is the harness
// the test suite needs in its place). It supports simulated partitions
// and message loss for exercising the end-to-end scenarios of spec.md §8.
type Hub struct {
	mu        sync.Mutex
	inboxes   map[string]chan raft.Message
	partition map[string]map[string]bool // src -> dst -> blocked
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		inboxes:   make(map[string]chan raft.Message),
		partition: make(map[string]map[string]bool),
	}
}

// Endpoint registers id and returns a Transport bound to it.
func (h *Hub) Endpoint(id string) *MemoryTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan raft.Message, 1024)
	h.inboxes[id] = ch
	return &MemoryTransport{hub: h, self: id, inbox: ch}
}

// Partition drops all traffic between the two named groups (in both
// directions), modeling a split-brain network partition.
func (h *Hub) Partition(groupA, groupB []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range groupA {
		for _, b := range groupB {
			h.block(a, b)
			h.block(b, a)
		}
	}
}

func (h *Hub) block(src, dst string) {
	if h.partition[src] == nil {
		h.partition[src] = make(map[string]bool)
	}
	h.partition[src][dst] = true
}

// Heal removes every simulated partition.
func (h *Hub) Heal() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.partition = make(map[string]map[string]bool)
}

func (h *Hub) deliver(src, dst string, m raft.Message) {
	h.mu.Lock()
	blocked := h.partition[src][dst]
	ch, ok := h.inboxes[dst]
	h.mu.Unlock()
	if blocked || !ok {
		return
	}
	select {
	case ch <- m:
	default:
		// Lossy substrate: a full inbox silently drops, like a lossy network.
	}
}

// MemoryTransport implements raft.Transport against a Hub.
type MemoryTransport struct {
	hub   *Hub
	self  string
	inbox chan raft.Message
}

// Send implements raft.Transport. dst == raft.Broadcast fans out to every
// other registered endpoint, mirroring real broadcast addressing.
func (t *MemoryTransport) Send(m raft.Message) error {
	if m.Dst == raft.Broadcast {
		t.hub.mu.Lock()
		dsts := make([]string, 0, len(t.hub.inboxes))
		for id := range t.hub.inboxes {
			if id != t.self {
				dsts = append(dsts, id)
			}
		}
		t.hub.mu.Unlock()
		for _, id := range dsts {
			t.hub.deliver(t.self, id, m)
		}
		return nil
	}
	t.hub.deliver(t.self, m.Dst, m)
	return nil
}

// Recv implements raft.Transport.
func (t *MemoryTransport) Recv(timeout time.Duration) (raft.Message, bool) {
	select {
	case m := <-t.inbox:
		return m, true
	case <-time.After(timeout):
		return raft.Message{}, false
	}
}
