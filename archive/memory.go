package archive

import (
	"sync"

	"github.com/ipfs/go-cid"
)

// Memory is an in-process archive.
type Memory struct {
	mu     sync.RWMutex
	bodies map[cid.Cid][]byte
}

func NewMemory() *Memory { return &Memory{bodies: make(map[cid.Cid][]byte)} }

func (m *Memory) Put(body []byte) (cid.Cid, error) {
	id, err := CID(body)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bodies[id]; !ok {
		m.bodies[id] = append([]byte(nil), body...)
	}
	return id, nil
}

func (m *Memory) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bodies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bodies[id]
	return ok
}

// Len returns the number of archived bodies.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bodies)
}
