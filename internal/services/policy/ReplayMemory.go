package policy

import (
	"math/rand"
)

const DefaultMemoryCapacity = 10000

// Experience is one recorded transition
type Experience struct {
	State     []float64 `json:"state"`
	Action    int       `json:"action"`
	Reward    float64   `json:"reward"`
	NextState []float64 `json:"next_state"`
}

// ReplayMemory is a fixed capacity ring buffer; pushing into a full memory evicts the oldest entry
type ReplayMemory struct {
	items []Experience
	head  int
	size  int
}

func NewReplayMemory(capacity int) *ReplayMemory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &ReplayMemory{items: make([]Experience, capacity)}
}

func (m *ReplayMemory) Push(e Experience) {
	idx := (m.head + m.size) % len(m.items)
	m.items[idx] = e
	if m.size < len(m.items) {
		m.size++
		return
	}
	m.head = (m.head + 1) % len(m.items)
}

func (m *ReplayMemory) Len() int {
	return m.size
}

// At returns the i-th stored experience, oldest first
func (m *ReplayMemory) At(i int) Experience {
	return m.items[(m.head+i)%len(m.items)]
}

// Sample draws n distinct experiences uniformly at random
func (m *ReplayMemory) Sample(n int, rng *rand.Rand) []Experience {
	if n > m.size {
		n = m.size
	}

	// Floyd's algorithm: n distinct indices without allocating a full permutation
	chosen := make(map[int]struct{}, n)
	order := make([]int, 0, n)
	for j := m.size - n; j < m.size; j++ {
		t := rng.Intn(j + 1)
		if _, taken := chosen[t]; taken {
			t = j
		}
		chosen[t] = struct{}{}
		order = append(order, t)
	}

	batch := make([]Experience, n)
	for i, idx := range order {
		batch[i] = m.At(idx)
	}
	return batch
}

// Snapshot returns the stored experiences oldest first
func (m *ReplayMemory) Snapshot() []Experience {
	out := make([]Experience, m.size)
	for i := range out {
		out[i] = m.At(i)
	}
	return out
}

func (m *ReplayMemory) restore(items []Experience) {
	m.head = 0
	m.size = 0
	start := 0
	if len(items) > len(m.items) {
		start = len(items) - len(m.items)
	}
	for _, e := range items[start:] {
		m.Push(e)
	}
}
