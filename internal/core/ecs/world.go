package ecs

// World is the top-level ECS container. It owns the entity pool, the component
// registry, and a deferred destruction queue flushed by the cleanup phase each tick.
type World struct {
	pool         *EntityPool
	registry     *Registry
	destroyQueue []EntityID
	queued       map[EntityID]struct{}
}

func NewWorld(capacity int) *World {
	return &World{
		pool:         NewEntityPool(capacity),
		registry:     NewRegistry(),
		destroyQueue: make([]EntityID, 0, 64),
		queued:       make(map[EntityID]struct{}, 64),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity() (EntityID, error) {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// MarkForDestruction queues an entity for end-of-tick cleanup. Queuing the
// same entity twice is a no-op.
func (w *World) MarkForDestruction(id EntityID) {
	if _, ok := w.queued[id]; ok {
		return
	}
	w.queued[id] = struct{}{}
	w.destroyQueue = append(w.destroyQueue, id)
}

// PendingDestruction reports whether id is queued for cleanup.
func (w *World) PendingDestruction(id EntityID) bool {
	_, ok := w.queued[id]
	return ok
}

// FlushDestroyQueue destroys all queued entities and clears their components.
// fn, when non-nil, is called for each id before its components are dropped.
func (w *World) FlushDestroyQueue(fn func(EntityID)) {
	for _, id := range w.destroyQueue {
		if fn != nil {
			fn(id)
		}
		w.registry.RemoveAll(id)
		w.pool.Destroy(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	clear(w.queued)
}
