package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/navigator"
	"github.com/lysyi3m/slot-comb/app/notify"
	"github.com/lysyi3m/slot-comb/app/office"
	"github.com/lysyi3m/slot-comb/app/reconcile"
	"github.com/lysyi3m/slot-comb/app/slots"
)

const maxRetryDelay = 30 * time.Second

var retryBaseDelay = time.Second

// OfficeSource lists the offices a run visits, in order.
type OfficeSource interface {
	Enabled() []office.Office
}

type SubscriberLister interface {
	ListActiveSubscribers(ctx context.Context, office string) ([]string, error)
}

type ScrapeRunDeps struct {
	Offices     OfficeSource
	Navigator   navigator.Navigator
	Extractor   *slots.Extractor
	Classifier  *slots.Classifier
	Engine      *reconcile.Engine
	Runs        database.RunRepository
	Subscribers SubscriberLister
	Dispatcher  *notify.Dispatcher

	OfficeTimeout time.Duration
	OfficeDelay   time.Duration
	OfficeRetries int

	// Now defaults to time.Now.
	Now func() time.Time
}

func NewScrapeRunTaskFactory(deps ScrapeRunDeps) TaskFactory {
	return func(trigger Trigger) TaskInterface {
		return NewScrapeRunTask(trigger, deps)
	}
}

// ScrapeRunTask visits every enabled office once, reconciles what it finds
// and persists a run summary.
type ScrapeRunTask struct {
	Task
	deps ScrapeRunDeps
}

func NewScrapeRunTask(trigger Trigger, deps ScrapeRunDeps) *ScrapeRunTask {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &ScrapeRunTask{
		Task: NewTask(TaskTypeScrapeRun, trigger),
		deps: deps,
	}
}

type officeOutcome struct {
	golden int
	future int
	alerts int
}

func (t *ScrapeRunTask) Execute(ctx context.Context) error {
	offices := t.deps.Offices.Enabled()

	runID, err := t.deps.Runs.CreateRun(ctx, t.now())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	summary := database.RunSummary{OfficesScraped: len(offices)}

	for i, o := range offices {
		if ctx.Err() != nil {
			summary.Errors = append(summary.Errors, database.RunError{Office: o.Name, Message: ctx.Err().Error()})
			continue
		}

		outcome, err := t.processOffice(ctx, o)
		if err != nil {
			slog.Warn("Office failed", "office", o.Name, "error", err)
			summary.Errors = append(summary.Errors, database.RunError{Office: o.Name, Message: err.Error()})
		} else {
			summary.GoldenFound += outcome.golden
			summary.FutureFound += outcome.future
		}

		if i < len(offices)-1 {
			t.pause(ctx, t.deps.OfficeDelay)
		}
	}

	summary.CompletedAt = t.now()

	// The summary is written even when the run was interrupted.
	if err := t.deps.Runs.FinishRun(context.WithoutCancel(ctx), runID, summary); err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"run_id", runID,
		"duration", t.GetDuration(),
		"offices", summary.OfficesScraped,
		"golden", summary.GoldenFound,
		"future", summary.FutureFound,
		"errors", len(summary.Errors))

	return nil
}

func (t *ScrapeRunTask) processOffice(ctx context.Context, o office.Office) (*officeOutcome, error) {
	officeCtx := ctx
	if t.deps.OfficeTimeout > 0 {
		var cancel context.CancelFunc
		officeCtx, cancel = context.WithTimeout(ctx, t.deps.OfficeTimeout)
		defer cancel()
	}

	raw, err := t.fetch(officeCtx, o)
	if err != nil {
		return nil, err
	}

	now := t.now()
	observations := t.deps.Classifier.Run(o.Name, t.deps.Extractor.Run(o.Name, raw), now)

	result, err := t.deps.Engine.Reconcile(officeCtx, o.Name, observations, now)
	if err != nil {
		// Slots committed before the failure will not be reported again.
		if result != nil && len(result.NewGolden) > 0 {
			alerts := t.notify(ctx, o.Name, result.NewGolden)
			slog.Warn("Alerted committed slots of a failed office", "office", o.Name, "new_golden", len(result.NewGolden), "alerts", alerts)
		}
		return nil, fmt.Errorf("failed to reconcile: %w", err)
	}

	outcome := &officeOutcome{golden: result.GoldenObserved, future: result.FutureObserved}
	if len(result.NewGolden) > 0 {
		outcome.alerts = t.notify(ctx, o.Name, result.NewGolden)
	}

	slog.Info("Office scraped",
		"office", o.Name,
		"golden", result.GoldenObserved,
		"future", result.FutureObserved,
		"new_golden", len(result.NewGolden),
		"alerts", outcome.alerts,
		"future_outcome", string(result.Future))

	return outcome, nil
}

// fetch calls the navigator, retrying with exponential backoff while the
// office deadline allows.
func (t *ScrapeRunTask) fetch(ctx context.Context, o office.Office) ([]string, error) {
	var lastErr error

	for attempt := 0; attempt <= t.deps.OfficeRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << uint(attempt-1)
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			slog.Warn("Navigation retry scheduled", "office", o.Name, "attempt", attempt, "delay", delay.String(), "error", lastErr)
			if !t.pause(ctx, delay) {
				break
			}
		}

		raw, err := t.deps.Navigator.Fetch(ctx, o)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("navigation failed: %w", lastErr)
}

// notify runs after the office's state is committed; delivery problems are
// logged and never fail the office.
func (t *ScrapeRunTask) notify(ctx context.Context, officeName string, events []slots.Slot) int {
	if t.deps.Subscribers == nil || t.deps.Dispatcher == nil {
		return 0
	}

	recipients, err := t.deps.Subscribers.ListActiveSubscribers(ctx, officeName)
	if err != nil {
		slog.Warn("Failed to list subscribers", "office", officeName, "error", err)
		return 0
	}

	return t.deps.Dispatcher.Dispatch(ctx, officeName, events, recipients).Sent
}

// pause waits for d or until ctx is done, reporting whether the full delay
// elapsed.
func (t *ScrapeRunTask) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (t *ScrapeRunTask) now() time.Time {
	return t.deps.Now().UTC()
}
