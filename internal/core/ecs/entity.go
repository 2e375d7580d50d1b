package ecs

import "errors"

// ErrPoolExhausted is returned when every index up to the pool capacity is
// in use. Callers must refuse the spawn; the pool is left untouched.
var ErrPoolExhausted = errors.New("entity id pool exhausted")

// EntityID encodes a 16-bit index in the lower bits and a 16-bit generation
// in the upper bits. Generation increments on destroy to invalidate stale refs.
// Index 0 is never handed out so the zero value means "no entity".
type EntityID uint32

// MaxIndex is the largest index an EntityID can carry.
const MaxIndex = 1<<16 - 1

func NewEntityID(index uint16, generation uint16) EntityID {
	return EntityID(uint32(generation)<<16 | uint32(index))
}

func (id EntityID) Index() uint16      { return uint16(id) }
func (id EntityID) Generation() uint16 { return uint16(id >> 16) }
func (id EntityID) IsZero() bool       { return id == 0 }

// EntityPool manages entity allocation with generational indices and a free list.
type EntityPool struct {
	generations []uint16
	freeList    []uint16
	nextIndex   uint32
	capacity    uint32
	live        int
}

// NewEntityPool creates a pool handing out at most capacity live ids.
// A capacity <= 0 or above MaxIndex is clamped to MaxIndex.
func NewEntityPool(capacity int) *EntityPool {
	if capacity <= 0 || capacity > MaxIndex {
		capacity = MaxIndex
	}
	return &EntityPool{
		generations: make([]uint16, 1, 1024), // slot 0 reserved
		freeList:    make([]uint16, 0, 256),
		nextIndex:   1,
		capacity:    uint32(capacity),
	}
}

func (p *EntityPool) Create() (EntityID, error) {
	if len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		p.live++
		return NewEntityID(idx, p.generations[idx]), nil
	}
	if p.nextIndex > p.capacity {
		return 0, ErrPoolExhausted
	}
	idx := uint16(p.nextIndex)
	p.nextIndex++
	p.generations = append(p.generations, 0)
	p.live++
	return NewEntityID(idx, p.generations[idx]), nil
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := uint32(id.Index())
	if idx == 0 || idx >= p.nextIndex {
		return false
	}
	return p.generations[idx] == id.Generation()
}

func (p *EntityPool) Destroy(id EntityID) {
	if !p.Alive(id) {
		return // already destroyed (stale reference)
	}
	idx := id.Index()
	p.generations[idx]++
	p.freeList = append(p.freeList, idx)
	p.live--
}

// Live returns the number of ids currently handed out.
func (p *EntityPool) Live() int { return p.live }
