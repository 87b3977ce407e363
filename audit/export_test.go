package audit

// SetBeforeCommit installs a hook that runs between staging and committing
// a memory append.
func (m *MemoryBackend) SetBeforeCommit(hook func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeCommit = hook
}

func (t *Trail) SetIDs(newID func() string) { t.newID = newID }
