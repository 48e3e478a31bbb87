package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// ErrTaskPending is returned when a manual run is already waiting.
var ErrTaskPending = errors.New("a task is already pending")

// TaskFactory builds the task the scheduler runs on each tick.
type TaskFactory func(trigger Trigger) TaskInterface

// Scheduler runs tasks on a single worker. The interval is measured from the
// end of one run to the start of the next, so runs never overlap.
type Scheduler struct {
	factory   TaskFactory
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
	runCount  int
}

func NewScheduler(interval time.Duration, factory TaskFactory) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		factory:   factory,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 1),
	}
}

func (s *Scheduler) Start() {
	slog.Info("Scheduler started", "interval", s.interval.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return

			case <-timer.C:
				s.executeTask(s.factory(TriggerSchedule))
				if s.ctx.Err() != nil {
					return
				}
				timer.Reset(s.interval)
				slog.Info("Next run scheduled", "run", s.runCount, "next_run_at", time.Now().Add(s.interval).UTC().Format(time.RFC3339))

			case task := <-s.taskQueue:
				s.executeTask(task)
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) NewTask(trigger Trigger) TaskInterface {
	return s.factory(trigger)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return ErrTaskPending
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	s.runCount++
	task.Start()

	slog.Info("Task started", "run", s.runCount, "type", string(task.GetType()), "id", task.GetID(), "trigger", string(task.GetTrigger()))

	if err := task.Execute(s.ctx); err != nil {
		slog.Error("Task execution failed", "run", s.runCount, "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration(), "error", err)
	}
}
