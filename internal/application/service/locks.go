package service

import "sync"

// documentLocks serializes mutations per document id. The sqlite transaction
// alone cannot prevent two concurrent approvals from both reading the
// pre-approval state and double-firing the all-approved auto-transition, so
// every write command holds the document's lock across its transaction.
type documentLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the lock for documentID and returns the matching unlock
func (l *documentLocks) Lock(documentID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[documentID]
	if !ok {
		entry = &lockEntry{}
		l.entries[documentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, documentID)
		}
		l.mu.Unlock()
	}
}
