// Package scheduler runs registered callbacks periodically from a single
// goroutine. Tasks due on the same tick run synchronously in priority order,
// so callbacks may assume they are never invoked concurrently.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// TaskID identifies one periodic registration.
type TaskID int64

// Task is the callback invoked at each period. It runs on the scheduler
// goroutine and must not block.
type Task func()

type task struct {
	id       TaskID
	fn       Task
	period   time.Duration
	priority int
	due      time.Time
}

// Scheduler dispatches periodic tasks at a fixed tick resolution.
type Scheduler struct {
	logger     golog.Logger
	clk        clock.Clock
	resolution time.Duration

	mu     sync.Mutex
	tasks  map[TaskID]*task
	nextID TaskID

	running                 bool
	stop                    chan struct{}
	activeBackgroundWorkers sync.WaitGroup
}

// New returns a scheduler ticking at the given resolution.
func New(logger golog.Logger, resolution time.Duration) (*Scheduler, error) {
	return NewWithClock(logger, resolution, clock.New())
}

// NewWithClock is New with an injected clock so tests can drive virtual time.
func NewWithClock(logger golog.Logger, resolution time.Duration, clk clock.Clock) (*Scheduler, error) {
	if resolution <= 0 {
		return nil, errors.Errorf("scheduler resolution must be positive, got %v", resolution)
	}
	return &Scheduler{
		logger:     logger,
		clk:        clk,
		resolution: resolution,
		tasks:      map[TaskID]*task{},
	}, nil
}

// Register adds fn to the schedule with the given period and priority and
// returns its handle. The first run happens one period from now.
func (s *Scheduler) Register(fn Task, period time.Duration, priority int) (TaskID, error) {
	if fn == nil {
		return 0, errors.New("cannot register a nil task")
	}
	if period < s.resolution {
		return 0, errors.Errorf("task period %v is below the scheduler resolution %v", period, s.resolution)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.tasks[id] = &task{
		id:       id,
		fn:       fn,
		period:   period,
		priority: priority,
		due:      s.clk.Now().Add(period),
	}
	return id, nil
}

// Deregister removes a task. Removing an absent or already removed handle is
// a no-op; tasks may deregister themselves from within their own callback.
func (s *Scheduler) Deregister(id TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return
	}
	delete(s.tasks, id)
}

// Start spawns the tick goroutine. Tasks may be registered before or after.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}
	s.running = true
	s.stop = make(chan struct{})
	ticker := s.clk.Ticker(s.resolution)
	s.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				s.runDue(now)
			case <-s.stop:
				return
			}
		}
	}, s.activeBackgroundWorkers.Done)
	return nil
}

// Stop halts dispatch and waits for the tick goroutine to exit. Registrations
// are kept; a stopped scheduler can be started again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.activeBackgroundWorkers.Wait()
	s.logger.Debug("scheduler stopped")
}

// runDue runs every task whose deadline has passed, highest priority first.
// Each task is rescheduled one period from now rather than from its old
// deadline, so a late tick does not cause a burst of catch-up runs.
func (s *Scheduler) runDue(now time.Time) {
	s.mu.Lock()
	var due []*task
	for _, t := range s.tasks {
		if !t.due.After(now) {
			t.due = now.Add(t.period)
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].priority != due[j].priority {
			return due[i].priority > due[j].priority
		}
		return due[i].id < due[j].id
	})
	for _, t := range due {
		// a task earlier in the batch may have deregistered this one
		s.mu.Lock()
		_, ok := s.tasks[t.id]
		s.mu.Unlock()
		if !ok {
			continue
		}
		t.fn()
	}
}
