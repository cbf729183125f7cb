package driftsync

import "time"

// Result aggregates the outcome of one sync pass. It is returned
// synchronously from Sync/ForceSync and is not mutated afterwards.
//
// Success reports whether the pass itself ran to completion. Isolated
// per-item failures leave Success true and show up in Errors; refusal to
// run (busy, paused), an offline probe, cancellation or an unhandled
// failure make it false.
type Result struct {
	Success           bool
	Status            Status
	Uploaded          int
	Downloaded        int
	Conflicts         int
	ConflictsResolved int
	Errors            int
	StartedAt         time.Time
	CompletedAt       time.Time
	Duration          time.Duration
	ErrorMessage      string
}

func newResult(started time.Time) *Result {
	return &Result{
		Status:    StatusSyncing,
		StartedAt: started,
	}
}

func (r *Result) stamp() {
	r.CompletedAt = time.Now().UTC()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
}

func (r *Result) complete() *Result {
	r.Success = true
	r.Status = StatusCompleted
	r.stamp()
	return r
}

func (r *Result) fail(status Status, message string) *Result {
	r.Success = false
	r.Status = status
	r.ErrorMessage = message
	r.stamp()
	return r
}
