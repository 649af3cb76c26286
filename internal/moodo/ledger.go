package moodo

import "sync"

const ledgerCapacity = 100

// requestLedger tracks request ids of recently issued writes so the push
// channel can recognize events the session itself caused. Bounded and
// unordered: once over capacity, any entry other than the newest may go.
type requestLedger struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newRequestLedger() *requestLedger {
	return &requestLedger{ids: make(map[string]struct{})}
}

func (l *requestLedger) Add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[id] = struct{}{}
	if len(l.ids) > ledgerCapacity {
		for evict := range l.ids {
			if evict != id {
				delete(l.ids, evict)
				break
			}
		}
	}
}

// Pop reports whether id is in the ledger and removes it, so each id can
// suppress at most one echoed event.
func (l *requestLedger) Pop(id string) bool {
	if id == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[id]; !ok {
		return false
	}
	delete(l.ids, id)
	return true
}

func (l *requestLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
