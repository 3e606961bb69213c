package recommend

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/kgchat-backend/internal/kg"
)

type candidateKey struct {
	anchor   string
	category kg.Category
}

type memorySpace struct {
	mu    sync.Mutex
	next  int
	order []int
	byID  map[int]Candidate
	byKey map[candidateKey]int

	// touched is guarded by MemoryStore.mu.
	touched time.Time
}

// MemoryStore keeps spaces in process memory, one mutex per conversation. Spaces idle for
// longer than the TTL are dropped, like the redis keys expire; a zero TTL keeps them forever.
type MemoryStore struct {
	mu        sync.Mutex
	spaces    map[string]*memorySpace
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		spaces: make(map[string]*memorySpace),
		ttl:    max(ttl, 0),
		now:    time.Now,
	}
}

// space returns the live space of conv, refreshing its TTL. Missing or expired spaces are
// created only when create is set; otherwise nil is returned.
func (m *MemoryStore) space(conv string, create bool) *memorySpace {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)
	sp, ok := m.spaces[conv]
	if ok && m.expired(sp, now) {
		delete(m.spaces, conv)
		sp, ok = nil, false
	}
	if !ok {
		if !create {
			return nil
		}
		sp = &memorySpace{
			next:  1,
			byID:  make(map[int]Candidate),
			byKey: make(map[candidateKey]int),
		}
		m.spaces[conv] = sp
	}
	sp.touched = now
	return sp
}

func (m *MemoryStore) expired(sp *memorySpace, now time.Time) bool {
	return m.ttl > 0 && now.Sub(sp.touched) > m.ttl
}

// sweepLocked drops expired spaces at most once per min(ttl, 1m).
func (m *MemoryStore) sweepLocked(now time.Time) {
	if m.ttl == 0 || now.Sub(m.lastSweep) < min(m.ttl, time.Minute) {
		return
	}
	m.lastSweep = now
	for conv, sp := range m.spaces {
		if m.expired(sp, now) {
			delete(m.spaces, conv)
		}
	}
}

func (m *MemoryStore) Reset(_ context.Context, conv string) error {
	sp := m.space(conv, false)
	if sp == nil {
		return nil
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.order = nil
	sp.byID = make(map[int]Candidate)
	sp.byKey = make(map[candidateKey]int)
	return nil
}

func (m *MemoryStore) Add(_ context.Context, conv string, anchor kg.Entity, categories []kg.Category) (int, error) {
	if len(categories) == 0 {
		return 0, nil
	}
	sp := m.space(conv, true)
	sp.mu.Lock()
	defer sp.mu.Unlock()

	added := 0
	for _, c := range categories {
		k := candidateKey{anchor: anchor.ID, category: c}
		if _, ok := sp.byKey[k]; ok {
			continue
		}
		cand := Candidate{ID: sp.next, AnchorID: anchor.ID, AnchorName: anchor.Name, Category: c}
		sp.next++
		sp.byKey[k] = cand.ID
		sp.byID[cand.ID] = cand
		sp.order = append(sp.order, cand.ID)
		added++
	}
	return added, nil
}

func (m *MemoryStore) List(_ context.Context, conv string) ([]Candidate, error) {
	sp := m.space(conv, false)
	if sp == nil {
		return []Candidate{}, nil
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	out := make([]Candidate, 0, len(sp.order))
	for _, id := range sp.order {
		out = append(out, sp.byID[id])
	}
	return out, nil
}

func (m *MemoryStore) Consume(_ context.Context, conv string, id int) (Candidate, bool, error) {
	sp := m.space(conv, false)
	if sp == nil {
		return Candidate{}, false, nil
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	cand, ok := sp.byID[id]
	if !ok {
		return Candidate{}, false, nil
	}
	delete(sp.byID, id)
	delete(sp.byKey, candidateKey{anchor: cand.AnchorID, category: cand.Category})
	for i, v := range sp.order {
		if v == id {
			sp.order = append(sp.order[:i], sp.order[i+1:]...)
			break
		}
	}
	return cand, true, nil
}
