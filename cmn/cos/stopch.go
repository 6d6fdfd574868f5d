package cos

import "sync"

// StopCh is a close-once broadcast channel: Close() is idempotent, Listen()
// returns the same channel every call so any number of goroutines can
// select on it. Used by the connection reader loop, the idle-timeout
// collector, and the server's shutdown path.
type StopCh struct {
	once sync.Once
	ch   chan struct{}
}

func (sc *StopCh) Init() {
	sc.ch = make(chan struct{})
}

func (sc *StopCh) Listen() <-chan struct{} { return sc.ch }

func (sc *StopCh) Close() {
	sc.once.Do(func() { close(sc.ch) })
}

func (sc *StopCh) IsClosed() bool {
	select {
	case <-sc.ch:
		return true
	default:
		return false
	}
}
