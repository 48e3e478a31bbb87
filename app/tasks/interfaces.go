package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run scrapes on an interval and by the API
// to request an immediate run.
// Example usage:
//
//	scheduler := NewScheduler(interval, NewScrapeRunTaskFactory(deps))
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(scheduler.NewTask(TriggerManual))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	NewTask(trigger Trigger) TaskInterface
	EnqueueTask(task TaskInterface) error
}
