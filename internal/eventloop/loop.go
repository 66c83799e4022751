// Package eventloop provides the single-threaded cooperative task queue that
// every hierarchy mutation and tab state transition runs on.
package eventloop

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"pkt.systems/pslog"
)

// ErrStopped is returned by Do when the loop stops before running the call.
var ErrStopped = errors.New("event loop stopped")

// Task is a queued unit of work. Keyed tasks are unique per key while pending.
type Task struct {
	key      any
	fn       func()
	drop     func()
	due      time.Time
	seq      uint64
	loop     *Loop
	canceled bool
}

// Cancel removes the task if it has not run yet.
func (t *Task) Cancel() bool {
	if t == nil || t.loop == nil {
		return false
	}
	return t.loop.cancelTask(t)
}

// Loop runs tasks one at a time in due order. Tasks queued while a turn is
// running are deferred to the next turn.
type Loop struct {
	clock clock.Clock
	log   pslog.Logger

	mu      sync.Mutex
	queue   []*Task
	keyed   map[any]*Task
	seq     uint64
	wake    chan struct{}
	stopped bool
}

// New constructs a Loop. A nil clock uses the wall clock.
func New(clk clock.Clock, logger pslog.Logger) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Loop{
		clock: clk,
		log:   logger,
		keyed: make(map[any]*Task),
		wake:  make(chan struct{}, 1),
	}
}

// Clock returns the clock the loop schedules against.
func (l *Loop) Clock() clock.Clock {
	return l.clock
}

// Post queues fn for the next turn. It returns nil once Run has stopped.
func (l *Loop) Post(fn func()) *Task {
	return l.enqueue(nil, 0, fn, nil)
}

// Schedule queues fn after delay under key. While a task for key is pending,
// further calls return the pending task unchanged.
func (l *Loop) Schedule(key any, delay time.Duration, fn func()) *Task {
	return l.enqueue(key, delay, fn, nil)
}

// Pending reports whether a task for key is waiting to run.
func (l *Loop) Pending(key any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keyed[key]
	return ok
}

// Cancel drops the pending task for key.
func (l *Loop) Cancel(key any) bool {
	l.mu.Lock()
	task := l.keyed[key]
	l.mu.Unlock()
	if task == nil {
		return false
	}
	return l.cancelTask(task)
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) enqueue(key any, delay time.Duration, fn, drop func()) *Task {
	if fn == nil {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.log.Trace("eventloop task refused after stop", "key", key)
		return nil
	}
	if key != nil {
		if existing := l.keyed[key]; existing != nil {
			l.mu.Unlock()
			l.log.Trace("eventloop task coalesced", "key", key)
			return existing
		}
	}
	l.seq++
	task := &Task{
		key:  key,
		fn:   fn,
		drop: drop,
		due:  l.clock.Now().Add(delay),
		seq:  l.seq,
		loop: l,
	}
	l.queue = append(l.queue, task)
	if key != nil {
		l.keyed[key] = task
	}
	l.mu.Unlock()
	l.signal()
	return task
}

func (l *Loop) cancelTask(task *Task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if task.canceled {
		return false
	}
	for i, queued := range l.queue {
		if queued != task {
			continue
		}
		l.queue = append(l.queue[:i], l.queue[i+1:]...)
		task.canceled = true
		if task.key != nil && l.keyed[task.key] == task {
			delete(l.keyed, task.key)
		}
		return true
	}
	return false
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunPending runs one turn: every task that is due now and was queued
// before the turn started. It returns the number of tasks run.
func (l *Loop) RunPending() int {
	now := l.clock.Now()
	l.mu.Lock()
	var due []*Task
	rest := l.queue[:0]
	for _, task := range l.queue {
		if !task.due.After(now) {
			due = append(due, task)
			continue
		}
		rest = append(rest, task)
	}
	l.queue = rest
	for _, task := range due {
		if task.key != nil && l.keyed[task.key] == task {
			delete(l.keyed, task.key)
		}
	}
	l.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})
	for _, task := range due {
		l.runTask(task)
	}
	return len(due)
}

// Drain runs turns until nothing is due.
func (l *Loop) Drain() int {
	total := 0
	for {
		n := l.RunPending()
		if n == 0 {
			return total
		}
		total += n
	}
}

func (l *Loop) runTask(task *Task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("eventloop task panic", "panic", r, "key", task.key)
		}
	}()
	task.fn()
}

func (l *Loop) nextWait() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return 0, false
	}
	earliest := l.queue[0].due
	for _, task := range l.queue[1:] {
		if task.due.Before(earliest) {
			earliest = task.due
		}
	}
	wait := earliest.Sub(l.clock.Now())
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// Run processes turns until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Debug("eventloop start")
	defer l.stop()
	for {
		l.RunPending()
		wait, ok := l.nextWait()
		var timer *clock.Timer
		var timerC <-chan time.Time
		if ok {
			if wait == 0 {
				continue
			}
			timer = l.clock.Timer(wait)
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-l.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// stop refuses further tasks and drops the queue. Tasks with a drop hook
// are told they will never run.
func (l *Loop) stop() {
	l.mu.Lock()
	l.stopped = true
	queue := l.queue
	l.queue = nil
	l.keyed = make(map[any]*Task)
	for _, task := range queue {
		task.canceled = true
	}
	l.mu.Unlock()
	for _, task := range queue {
		if task.drop != nil {
			task.drop()
		}
	}
	l.log.Debug("eventloop stop", "dropped", len(queue))
}

// Do runs fn on the loop and waits for its result. It must not be called
// from a task, since the loop would wait on itself.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	task := l.enqueue(nil, 0, func() {
		done <- fn()
	}, func() {
		done <- ErrStopped
	})
	if task == nil {
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
