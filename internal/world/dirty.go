package world

import (
	"slices"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/net/packet"
)

// EncodeFunc writes the full or partial payload of id into w. It returns
// false when id no longer refers to a live entity.
type EncodeFunc func(id ecs.EntityID, full bool, w *packet.Writer) bool

// EntityPayload is one serialized entity record.
type EntityPayload struct {
	ID   ecs.EntityID
	Data []byte
}

// DirtyBatch is what Drain hands back: every dirty entity serialized exactly
// once, full records first. An entity appears in at most one of the lists.
type DirtyBatch struct {
	Full    []EntityPayload
	Partial []EntityPayload
}

func (b DirtyBatch) Empty() bool { return len(b.Full) == 0 && len(b.Partial) == 0 }

// DirtyTracker records which entities changed this tick. Payloads are
// serialized lazily and memoized until Drain, so however many viewers need
// an entity its encoder runs at most once per path per tick.
type DirtyTracker struct {
	partial map[ecs.EntityID]struct{}
	full    map[ecs.EntityID]struct{}

	fullCache    map[ecs.EntityID][]byte
	partialCache map[ecs.EntityID][]byte
	missing      map[ecs.EntityID]struct{}

	encode  EncodeFunc
	w       *packet.Writer
	encodes int
}

func NewDirtyTracker(encode EncodeFunc) *DirtyTracker {
	return &DirtyTracker{
		partial:      make(map[ecs.EntityID]struct{}, 128),
		full:         make(map[ecs.EntityID]struct{}, 32),
		fullCache:    make(map[ecs.EntityID][]byte, 64),
		partialCache: make(map[ecs.EntityID][]byte, 128),
		missing:      make(map[ecs.EntityID]struct{}),
		encode:       encode,
		w:            packet.NewWriter(),
	}
}

// MarkPartial flags cheap fields of id as changed. Re-marking is a no-op.
func (d *DirtyTracker) MarkPartial(id ecs.EntityID) {
	d.partial[id] = struct{}{}
	delete(d.partialCache, id)
}

// MarkFull flags id for a complete resend this tick. It supersedes any
// partial mark for serialization.
func (d *DirtyTracker) MarkFull(id ecs.EntityID) {
	d.full[id] = struct{}{}
	delete(d.fullCache, id)
}

func (d *DirtyTracker) IsFull(id ecs.EntityID) bool {
	_, ok := d.full[id]
	return ok
}

// IsPartial reports whether id will be sent through the partial path, i.e.
// it is partially dirty and not fully dirty.
func (d *DirtyTracker) IsPartial(id ecs.EntityID) bool {
	if _, ok := d.full[id]; ok {
		return false
	}
	_, ok := d.partial[id]
	return ok
}

// Forget drops every mark for id, used when the entity is removed mid-tick.
func (d *DirtyTracker) Forget(id ecs.EntityID) {
	delete(d.partial, id)
	delete(d.full, id)
	delete(d.fullCache, id)
	delete(d.partialCache, id)
}

// FullIDs returns the fully dirty ids in ascending order.
func (d *DirtyTracker) FullIDs() []ecs.EntityID {
	return sortedKeys(d.full, nil)
}

// PartialIDs returns ids on the partial path (partially but not fully dirty)
// in ascending order.
func (d *DirtyTracker) PartialIDs() []ecs.EntityID {
	return sortedKeys(d.partial, d.full)
}

// Len returns the number of distinct dirty entities.
func (d *DirtyTracker) Len() int {
	n := len(d.full)
	for id := range d.partial {
		if _, ok := d.full[id]; !ok {
			n++
		}
	}
	return n
}

// FullPayload returns the full record for id, encoding it on first use this
// tick. It serves any live entity, dirty or not, since a viewer seeing an
// entity for the first time needs the full record regardless.
func (d *DirtyTracker) FullPayload(id ecs.EntityID) ([]byte, bool) {
	return d.payload(id, true, d.fullCache)
}

// PartialPayload returns the partial record for id, encoding it on first use.
func (d *DirtyTracker) PartialPayload(id ecs.EntityID) ([]byte, bool) {
	return d.payload(id, false, d.partialCache)
}

func (d *DirtyTracker) payload(id ecs.EntityID, full bool, cache map[ecs.EntityID][]byte) ([]byte, bool) {
	if b, ok := cache[id]; ok {
		return b, true
	}
	if _, ok := d.missing[id]; ok {
		return nil, false
	}
	d.w.Reset()
	d.encodes++
	if !d.encode(id, full, d.w) {
		d.missing[id] = struct{}{}
		return nil, false
	}
	b := slices.Clone(d.w.Bytes())
	cache[id] = b
	return b, true
}

// Serialize forces the one-time encode of every dirty entity.
func (d *DirtyTracker) Serialize() {
	for id := range d.full {
		d.FullPayload(id)
	}
	for id := range d.partial {
		if _, ok := d.full[id]; !ok {
			d.PartialPayload(id)
		}
	}
}

// Drain serializes every dirty entity, returns the batch and clears all
// marks and cached payloads. A second Drain with no marks in between
// returns an empty batch.
func (d *DirtyTracker) Drain() DirtyBatch {
	var batch DirtyBatch
	for _, id := range d.FullIDs() {
		if b, ok := d.FullPayload(id); ok {
			batch.Full = append(batch.Full, EntityPayload{ID: id, Data: b})
		}
	}
	for _, id := range d.PartialIDs() {
		if b, ok := d.PartialPayload(id); ok {
			batch.Partial = append(batch.Partial, EntityPayload{ID: id, Data: b})
		}
	}
	clear(d.partial)
	clear(d.full)
	clear(d.fullCache)
	clear(d.partialCache)
	clear(d.missing)
	return batch
}

// Encodes returns how many times the encoder has run since creation.
func (d *DirtyTracker) Encodes() int { return d.encodes }

func sortedKeys(m, exclude map[ecs.EntityID]struct{}) []ecs.EntityID {
	out := make([]ecs.EntityID, 0, len(m))
	for id := range m {
		if _, skip := exclude[id]; skip {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
