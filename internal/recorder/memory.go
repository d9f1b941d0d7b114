package recorder

import "sync"

// Memory keeps the most recent records in a fixed ring.
type Memory struct {
	mu    sync.RWMutex
	items []FrameRecord
	next  int
	full  bool
}

func NewMemory(size int) *Memory {
	if size < 1 {
		size = 1
	}
	return &Memory{items: make([]FrameRecord, size)}
}

func (m *Memory) Record(rec FrameRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[m.next] = rec
	m.next = (m.next + 1) % len(m.items)
	if m.next == 0 {
		m.full = true
	}
}

// List returns the kept records oldest first.
func (m *Memory) List() []FrameRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.full {
		out := make([]FrameRecord, m.next)
		copy(out, m.items[:m.next])
		return out
	}
	out := make([]FrameRecord, 0, len(m.items))
	out = append(out, m.items[m.next:]...)
	out = append(out, m.items[:m.next]...)
	return out
}

// Last returns the newest record.
func (m *Memory) Last() (FrameRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.full && m.next == 0 {
		return FrameRecord{}, false
	}
	i := m.next - 1
	if i < 0 {
		i = len(m.items) - 1
	}
	return m.items[i], true
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return len(m.items)
	}
	return m.next
}
