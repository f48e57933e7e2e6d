package match

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

// Scheduler runs a growing list of sub-matches with a fixed concurrency
// ceiling. Tasks start in FIFO order; results are kept in submission order.
type Scheduler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	limit    int
	handler  SubHandler
	progress ProgressFunc
	logger   *zap.Logger

	// emitMu serializes progress callbacks and completion. Lock order is
	// emitMu then mu. The progress callback runs with emitMu held and may
	// call Add and Close, so neither takes emitMu.
	emitMu sync.Mutex

	mu        sync.Mutex
	tasks     []*taskState
	queue     []int
	running   int
	completed int
	// emitting counts completion events being delivered; the run is not
	// done until the last one returns.
	emitting int
	closed   bool
	fatal    error
	done     chan struct{}
	finished bool
}

type taskState struct {
	task     SubgameTask
	progress float64
	result   *Result
}

// NewScheduler creates a scheduler. Cancelling ctx aborts the run as if a
// task had failed fatally.
func NewScheduler(ctx context.Context, concurrency int, handler SubHandler, progress ProgressFunc, logger *zap.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)

	s := &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		limit:    concurrency,
		handler:  handler,
		progress: progress,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.watch()
	return s
}

// Add queues a task and returns its submission index.
func (s *Scheduler) Add(seed random.Seed, teams []Team) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fatal != nil {
		return -1, s.fatal
	}
	if s.closed {
		return -1, ErrSchedulerClosed
	}

	index := len(s.tasks)
	s.tasks = append(s.tasks, &taskState{task: SubgameTask{
		ID:    id.NewTaskID(),
		Index: index,
		Seed:  seed,
		Teams: teams,
	}})
	s.queue = append(s.queue, index)
	s.dispatchLocked()
	return index, nil
}

// Close signals that no more tasks will be added.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.checkDoneLocked()
}

// Wait blocks until Close has been called and every added task finished, or
// until a fatal error stopped the run. Results are in submission order.
func (s *Scheduler) Wait(ctx context.Context) ([]Result, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fatal != nil {
		return nil, s.fatal
	}
	results := make([]Result, len(s.tasks))
	for i, st := range s.tasks {
		results[i] = *st.result
	}
	return results, nil
}

// Running returns the number of tasks currently executing.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) dispatchLocked() {
	for s.fatal == nil && s.running < s.limit && len(s.queue) > 0 {
		index := s.queue[0]
		s.queue = s.queue[1:]
		s.running++
		go s.execute(s.tasks[index].task)
	}
}

func (s *Scheduler) execute(task SubgameTask) {
	var (
		outcome interface{}
		err     error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = Fatal(fmt.Errorf("task %d panicked: %v", task.Index, r))
			}
		}()
		outcome, err = s.handler(s.ctx, task, func(p float64) {
			s.report(task.Index, p)
		})
	}()

	if err != nil && !IsFatal(err) && s.ctx.Err() != nil {
		err = Fatal(fmt.Errorf("task %d: %w", task.Index, err))
	}
	s.finish(task.Index, outcome, err)
}

func (s *Scheduler) report(index int, p float64) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	st := s.tasks[index]
	if st.result != nil || s.fatal != nil {
		s.mu.Unlock()
		return
	}
	st.progress = clamp01(p)
	ev := Progress{
		Index:        index,
		TaskProgress: st.progress,
		Overall:      s.overallLocked(),
		Completed:    s.completed,
		Total:        len(s.tasks),
	}
	s.mu.Unlock()

	if s.progress != nil {
		s.progress(ev)
	}
}

func (s *Scheduler) finish(index int, outcome interface{}, err error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	st := s.tasks[index]
	if st.result != nil {
		s.mu.Unlock()
		s.logger.Warn("Ignoring duplicate task completion",
			zap.Int("index", index),
			zap.String("task_id", st.task.ID.String()))
		return
	}

	st.progress = 1
	st.result = &Result{
		TaskID:  st.task.ID,
		Index:   index,
		Seed:    st.task.Seed,
		Teams:   st.task.Teams,
		Outcome: outcome,
		Err:     err,
	}
	s.running--
	s.completed++

	if err != nil {
		if IsFatal(err) {
			if s.fatal == nil {
				s.fatal = err
				s.queue = nil
				s.cancel()
				s.logger.Error("Tournament-fatal task failure",
					zap.Int("index", index),
					zap.String("task_id", st.task.ID.String()),
					zap.Error(err))
			}
		} else {
			s.logger.Info("Task failed",
				zap.Int("index", index),
				zap.String("task_id", st.task.ID.String()),
				zap.Error(err))
		}
	}

	s.dispatchLocked()

	ev := Progress{
		Index:        index,
		TaskProgress: 1,
		Overall:      s.overallLocked(),
		Completed:    s.completed,
		Total:        len(s.tasks),
		Result:       st.result,
	}
	emit := s.fatal == nil && s.progress != nil
	if emit {
		s.emitting++
	}
	s.mu.Unlock()

	if emit {
		s.progress(ev)
	}

	s.mu.Lock()
	if emit {
		s.emitting--
	}
	s.checkDoneLocked()
	s.mu.Unlock()
}

// watch turns cancellation of the parent context into a fatal error so Wait
// does not hang on queued tasks.
func (s *Scheduler) watch() {
	<-s.ctx.Done()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.fatal == nil {
		s.fatal = Fatal(context.Cause(s.ctx))
		s.queue = nil
	}
	s.checkDoneLocked()
}

func (s *Scheduler) checkDoneLocked() {
	if s.finished || s.emitting > 0 {
		return
	}
	if (s.fatal != nil && s.running == 0) || (s.closed && s.completed == len(s.tasks)) {
		s.finished = true
		close(s.done)
		s.cancel()
	}
}

func (s *Scheduler) overallLocked() float64 {
	if len(s.tasks) == 0 {
		return 0
	}
	sum := 0.0
	for _, st := range s.tasks {
		sum += st.progress
	}
	return sum / float64(len(s.tasks))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
