// Package stage implements the stage runner: a set of cosmetic pacing
// sub-tasks plus at most one effectful sub-task wrapping a real upstream
// call. Pacing animates progress for responsiveness; the effectful task
// is the only one that gates correctness. A stage is complete only when
// every sub-task independently reaches 100%.
package stage

import "sync/atomic"

// Status is a sub-task's lifecycle state.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TaskState is a point-in-time snapshot of one sub-task.
type TaskState struct {
	Name     string
	Progress int
	Status   Status
	Effect   bool
}

// task tracks one sub-task's progress and status with atomics so
// snapshots never block the runner.
type task struct {
	name     string
	effect   bool
	progress atomic.Int64
	status   atomic.Int32
}

func newTask(name string, effect bool) *task {
	return &task{name: name, effect: effect}
}

// setProgress clamps and records progress in [0,100]. Progress never
// moves backwards.
func (t *task) setProgress(p int64) {
	if p > 100 {
		p = 100
	}
	for {
		cur := t.progress.Load()
		if p <= cur {
			return
		}
		if t.progress.CompareAndSwap(cur, p) {
			return
		}
	}
}

func (t *task) setStatus(s Status) {
	t.status.Store(int32(s))
}

func (t *task) state() TaskState {
	return TaskState{
		Name:     t.name,
		Progress: int(t.progress.Load()),
		Status:   Status(t.status.Load()),
		Effect:   t.effect,
	}
}

// done reports whether the sub-task reached 100% and finished cleanly.
func (t *task) done() bool {
	return Status(t.status.Load()) == StatusDone && t.progress.Load() >= 100
}
