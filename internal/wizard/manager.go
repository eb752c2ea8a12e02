package wizard

import "sync"

// Manager makes sure a user runs at most one creation dialogue at a time.
type Manager struct {
	mu     sync.Mutex
	active map[int64]bool
}

func NewManager() *Manager {
	return &Manager{active: make(map[int64]bool)}
}

// TryBegin reserves a wizard slot for the user. Returns false when one is
// already running.
func (m *Manager) TryBegin(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[userID] {
		return false
	}
	m.active[userID] = true
	return true
}

// End releases the user's slot.
func (m *Manager) End(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, userID)
}
