package chat

import "sync"

// sequencer orders deliveries per recipient. Tickets are taken while the
// coordination lock is held, so a user hears about state changes in the
// order they happened even though outboxes flush concurrently.
type sequencer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	lines map[int64]*turns
}

type turns struct {
	issued  uint64 // next ticket to hand out
	serving uint64 // ticket whose holder may deliver
}

func newSequencer() *sequencer {
	q := &sequencer{lines: make(map[int64]*turns)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// reserve takes one ticket per distinct recipient. The caller must hold the
// coordination lock.
func (q *sequencer) reserve(recipients []int64) map[int64]uint64 {
	if len(recipients) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	tickets := make(map[int64]uint64, len(recipients))
	for _, id := range recipients {
		if _, ok := tickets[id]; ok {
			continue
		}
		t := q.lines[id]
		if t == nil {
			t = &turns{}
			q.lines[id] = t
		}
		tickets[id] = t.issued
		t.issued++
	}
	return tickets
}

// acquire blocks until every ticket is being served. Tickets are issued in
// one global order, so a holder only ever waits on earlier commands.
func (q *sequencer) acquire(tickets map[int64]uint64) {
	if len(tickets) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, ticket := range tickets {
		for q.lines[id].serving != ticket {
			q.cond.Wait()
		}
	}
}

// release passes each recipient on to the next ticket holder.
func (q *sequencer) release(tickets map[int64]uint64) {
	if len(tickets) == 0 {
		return
	}
	q.mu.Lock()
	for id := range tickets {
		t := q.lines[id]
		t.serving++
		if t.serving == t.issued {
			delete(q.lines, id)
		}
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}
