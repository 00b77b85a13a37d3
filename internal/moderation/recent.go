package moderation

import "sync"

// RecentWindow is the number of message references kept per sender.
const RecentWindow = 5

// MessageRef is enough for the transport to re-deliver a past message.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// RecentMessages keeps the last RecentWindow message references sent by
// each user. It lives for the lifetime of the process and is goroutine-safe.
type RecentMessages struct {
	mu      sync.RWMutex
	buffers map[int64]*ring // sender -> ring
	size    int
}

type ring struct {
	items []MessageRef
	pos   int
	count int
}

// NewRecentMessages creates an empty store holding RecentWindow refs per
// sender.
func NewRecentMessages() *RecentMessages {
	return newRecentMessages(RecentWindow)
}

func newRecentMessages(size int) *RecentMessages {
	return &RecentMessages{
		buffers: make(map[int64]*ring),
		size:    size,
	}
}

// Push records a message sent by senderID, evicting the oldest one when
// the window is full.
func (r *RecentMessages) Push(senderID int64, ref MessageRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rb, ok := r.buffers[senderID]
	if !ok {
		rb = &ring{items: make([]MessageRef, r.size)}
		r.buffers[senderID] = rb
	}

	rb.items[rb.pos] = ref
	rb.pos = (rb.pos + 1) % r.size
	if rb.count < r.size {
		rb.count++
	}
}

// Window returns the refs of senderID oldest first. The result is a copy.
func (r *RecentMessages) Window(senderID int64) []MessageRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rb, ok := r.buffers[senderID]
	if !ok {
		return nil
	}

	out := make([]MessageRef, rb.count)
	start := (rb.pos - rb.count + r.size) % r.size
	for i := 0; i < rb.count; i++ {
		out[i] = rb.items[(start+i)%r.size]
	}
	return out
}

// Senders returns how many users have a window.
func (r *RecentMessages) Senders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffers)
}
