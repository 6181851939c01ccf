package bus

import (
	"context"
	"fmt"
	"sync"

	"multi-agent-trader/internal/metrics"
)

// Role identifies a mailbox on the bus.
type Role string

const (
	RoleUser      Role = "user"
	RoleMarket    Role = "market"
	RoleLongterm  Role = "longterm"
	RoleRisk      Role = "risk"
	RoleExecution Role = "execution"
)

// Roles lists every role in the system.
func Roles() []Role {
	return []Role{RoleUser, RoleMarket, RoleLongterm, RoleRisk, RoleExecution}
}

// mailbox is an unbounded FIFO queue. Senders never block; a receiver waits
// on the notify channel when the queue is empty.
type mailbox struct {
	mu     sync.Mutex
	queue  []Message
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(msg Message) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) pop() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Bus routes messages between per-role mailboxes.
type Bus struct {
	boxes map[Role]*mailbox
}

// New creates a bus with one mailbox per given role.
func New(roles ...Role) *Bus {
	b := &Bus{boxes: make(map[Role]*mailbox, len(roles))}
	for _, r := range roles {
		b.boxes[r] = newMailbox()
	}
	return b
}

// Send enqueues msg for role. It never blocks; mailboxes are unbounded so a
// slow consumer backs up its own queue without stalling senders.
func (b *Bus) Send(role Role, msg Message) error {
	box, ok := b.boxes[role]
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	box.push(msg)
	metrics.BusSends.WithLabelValues(string(role)).Inc()
	return nil
}

// Recv returns the next message for role in FIFO order, blocking until one
// arrives or ctx is cancelled.
func (b *Bus) Recv(ctx context.Context, role Role) (Message, error) {
	box, ok := b.boxes[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	for {
		if msg, ok := box.pop(); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-box.notify:
		}
	}
}

// BroadcastExcept enqueues msg onto every mailbox except the excluded role,
// preserving FIFO order within each mailbox.
func (b *Bus) BroadcastExcept(msg Message, excluded Role) {
	for role, box := range b.boxes {
		if role == excluded {
			continue
		}
		box.push(msg)
		metrics.BusSends.WithLabelValues(string(role)).Inc()
	}
}

// Pending reports the queued message count for role. Zero for unknown roles.
func (b *Bus) Pending(role Role) int {
	box, ok := b.boxes[role]
	if !ok {
		return 0
	}
	return box.len()
}
