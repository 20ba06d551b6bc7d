package progress

import (
	"sync"
	"time"
)

const defaultActivityCap = 1000

// ActivityLog keeps the most recent activity entries for one job. When
// the cap is exceeded the oldest entries are dropped first; the newest
// entry is never truncated.
type ActivityLog struct {
	lock    sync.Mutex
	entries []Activity
	start   int
	count   int
}

func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = defaultActivityCap
	}
	return &ActivityLog{entries: make([]Activity, capacity)}
}

func (l *ActivityLog) Append(agent, message string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	idx := (l.start + l.count) % len(l.entries)
	l.entries[idx] = Activity{Agent: agent, Message: message, Timestamp: time.Now().UTC()}
	if l.count < len(l.entries) {
		l.count++
		return
	}
	// full: the slot we just wrote was the oldest entry
	l.start = (l.start + 1) % len(l.entries)
}

// Snapshot returns the retained entries in insertion order.
func (l *ActivityLog) Snapshot() []Activity {
	l.lock.Lock()
	defer l.lock.Unlock()

	out := make([]Activity, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.start+i)%len(l.entries)]
	}
	return out
}

func (l *ActivityLog) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.count
}
