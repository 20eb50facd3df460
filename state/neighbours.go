package state

import (
	"errors"
	"math/rand/v2"
	"slices"
	"time"
)

var ErrStaleNeighbour = errors.New("neighbour slot is not live at this generation")

type NeighbourEntry struct {
	Id          NodeId
	LastRefresh time.Time
	Evict       TimerHandle
	gen         uint32
	live        bool
}

// NeighbourRef names a table slot at the generation it was allocated with
type NeighbourRef struct {
	Slot int
	Gen  uint32
}

// NeighbourTable is a fixed pool of neighbour slots. Released slots go back to a free list
// and bump their generation, so a reference held by an old timer can never alias a new entry.
type NeighbourTable struct {
	slots []NeighbourEntry
	free  []int
	order []int
}

func NewNeighbourTable(capacity int) *NeighbourTable {
	t := &NeighbourTable{
		slots: make([]NeighbourEntry, capacity),
		free:  make([]int, 0, capacity),
		order: make([]int, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		t.free = append(t.free, i)
	}
	return t
}

func (t *NeighbourTable) Cap() int {
	return len(t.slots)
}

func (t *NeighbourTable) Len() int {
	return len(t.order)
}

func (t *NeighbourTable) Lookup(id NodeId) (NeighbourRef, bool) {
	for _, slot := range t.order {
		if t.slots[slot].Id == id {
			return NeighbourRef{Slot: slot, Gen: t.slots[slot].gen}, true
		}
	}
	return NeighbourRef{}, false
}

// Alloc takes a free slot for id. id must not already be in the table.
// It returns false when the pool is exhausted.
func (t *NeighbourTable) Alloc(id NodeId, now time.Time) (NeighbourRef, bool) {
	if len(t.free) == 0 {
		return NeighbourRef{}, false
	}
	slot := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	e := &t.slots[slot]
	e.Id = id
	e.LastRefresh = now
	e.Evict = 0
	e.live = true
	t.order = append(t.order, slot)
	return NeighbourRef{Slot: slot, Gen: e.gen}, true
}

func (t *NeighbourTable) Entry(ref NeighbourRef) (*NeighbourEntry, bool) {
	if ref.Slot < 0 || ref.Slot >= len(t.slots) {
		return nil, false
	}
	e := &t.slots[ref.Slot]
	if !e.live || e.gen != ref.Gen {
		return nil, false
	}
	return e, true
}

func (t *NeighbourTable) Release(ref NeighbourRef) error {
	e, ok := t.Entry(ref)
	if !ok {
		return ErrStaleNeighbour
	}
	e.live = false
	e.gen++
	e.Evict = 0
	idx := slices.Index(t.order, ref.Slot)
	t.order = slices.Delete(t.order, idx, idx+1)
	t.free = append(t.free, ref.Slot)
	return nil
}

// Refs lists live entries in insertion order
func (t *NeighbourTable) Refs() []NeighbourRef {
	refs := make([]NeighbourRef, 0, len(t.order))
	for _, slot := range t.order {
		refs = append(refs, NeighbourRef{Slot: slot, Gen: t.slots[slot].gen})
	}
	return refs
}

func (t *NeighbourTable) Ids() []NodeId {
	ids := make([]NodeId, 0, len(t.order))
	for _, slot := range t.order {
		ids = append(ids, t.slots[slot].Id)
	}
	return ids
}

// PickRandom selects a live neighbour uniformly
func (t *NeighbourTable) PickRandom(r *rand.Rand) (NodeId, bool) {
	if len(t.order) == 0 {
		return NodeId{}, false
	}
	return t.slots[t.order[r.IntN(len(t.order))]].Id, true
}
