package transport

import (
	"container/heap"
	"time"

	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/cmn/nlog"
)

// idleEntry is the heap element tracked per live connection: ticksLeft
// counts down once per collector tick and reaching zero tears the
// connection down for inactivity.
type idleEntry struct {
	conn      *Conn
	ticksLeft int
	index     int
}

type ctrl struct {
	e   *idleEntry
	add bool
}

// idleCollector is the heap-ordered idle-timeout sweep shared by every
// connection on a server: one ticker, one min-heap ordered by ticks
// remaining, instead of one timer per connection.
type idleCollector struct {
	tick    time.Duration
	entries map[*Conn]*idleEntry
	ctrlCh  chan ctrl
	stopCh  cos.StopCh
	heap    []*idleEntry
}

func newIdleCollector(tick time.Duration) *idleCollector {
	ic := &idleCollector{
		tick:    tick,
		entries: make(map[*Conn]*idleEntry),
		ctrlCh:  make(chan ctrl, 64),
	}
	ic.stopCh.Init()
	return ic
}

func (ic *idleCollector) run() {
	ticker := time.NewTicker(ic.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ic.sweep()
		case c := <-ic.ctrlCh:
			if c.add {
				ic.entries[c.e.conn] = c.e
				heap.Push(ic, c.e)
			} else if e, ok := ic.entries[c.e.conn]; ok {
				heap.Remove(ic, e.index)
				delete(ic.entries, c.e.conn)
			}
		case <-ic.stopCh.Listen():
			return
		}
	}
}

func (ic *idleCollector) stop() { ic.stopCh.Close() }

func (ic *idleCollector) track(c *Conn, idleTicks int) {
	ic.ctrlCh <- ctrl{e: &idleEntry{conn: c, ticksLeft: idleTicks}, add: true}
}

func (ic *idleCollector) untrack(c *Conn) {
	ic.ctrlCh <- ctrl{e: &idleEntry{conn: c}, add: false}
}

func (ic *idleCollector) reset(c *Conn, idleTicks int) {
	if e, ok := ic.entries[c]; ok {
		e.ticksLeft = idleTicks
		heap.Fix(ic, e.index)
	}
}

func (ic *idleCollector) sweep() {
	for len(ic.heap) > 0 {
		top := ic.heap[0]
		if top.ticksLeft > 0 {
			break
		}
		nlog.Infof("conn %s idle timeout", top.conn.ID())
		delete(ic.entries, top.conn)
		heap.Pop(ic)
		top.conn.closeIdle()
	}
	for _, e := range ic.heap {
		e.ticksLeft--
	}
	heap.Init(ic)
}

// as a min-heap ordered by ticksLeft
func (ic *idleCollector) Len() int { return len(ic.heap) }
func (ic *idleCollector) Less(i, j int) bool {
	return ic.heap[i].ticksLeft < ic.heap[j].ticksLeft
}
func (ic *idleCollector) Swap(i, j int) {
	ic.heap[i], ic.heap[j] = ic.heap[j], ic.heap[i]
	ic.heap[i].index = i
	ic.heap[j].index = j
}
func (ic *idleCollector) Push(x any) {
	e := x.(*idleEntry)
	e.index = len(ic.heap)
	ic.heap = append(ic.heap, e)
}
func (ic *idleCollector) Pop() any {
	old := ic.heap
	n := len(old)
	e := old[n-1]
	ic.heap = old[:n-1]
	return e
}
