package driftsync

const progressBufferSize = 16

// Status is the engine's pass state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSyncing   Status = "syncing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusOffline   Status = "offline"
	StatusPaused    Status = "paused"
)

// Direction selects which phases a pass runs.
type Direction string

const (
	Upload        Direction = "upload"
	Download      Direction = "download"
	Bidirectional Direction = "bidirectional"
)

func (d Direction) uploads() bool {
	return d == Upload || d == Bidirectional
}

func (d Direction) downloads() bool {
	return d == Download || d == Bidirectional
}

// Progress is a point-in-time view of a running pass, emitted at pass
// start, after every item and at completion.
type Progress struct {
	Status    Status
	Total     int
	Completed int
	CurrentID string
	Message   string
}

// Status returns the engine's current state.
func (e *Engine[T]) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *Engine[T]) setStatus(s Status) {
	e.statusMu.Lock()
	e.status = s
	e.statusMu.Unlock()
}

// Subscribe returns a channel of progress events. Slow receivers miss
// events rather than stall the pass.
func (e *Engine[T]) Subscribe() <-chan *Progress {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	ch := make(chan *Progress, progressBufferSize)
	e.subs = append(e.subs, ch)
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (e *Engine[T]) Unsubscribe(ch <-chan *Progress) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for i, sub := range e.subs {
		if sub == ch {
			close(sub)
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			break
		}
	}
}

// broadcast sends an event to all subscribers without blocking.
func (e *Engine[T]) broadcast(p *Progress) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()

	for _, sub := range e.subs {
		select {
		case sub <- p:
		default:
			// Channel is full, skip to avoid blocking
		}
	}
}

// Close shuts down the event stream and drops all subscribers.
func (e *Engine[T]) Close() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for _, sub := range e.subs {
		close(sub)
	}
	e.subs = nil
}
