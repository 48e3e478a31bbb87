// Package reconcile turns one office's freshly scraped snapshot into state
// changes against the persisted appointment records.
//
// Golden slots are keyed by exact (date, time). Creation and reappearance
// emit a new-golden event; disappearance only flips the available flag.
//
// Future tracking keeps one current-closest record per office. Its lifecycle
// is an explicit state machine (see FutureState) whose transitions return the
// writes to perform, so the policy can be tested without a store.
//
// The engine performs no retries. Store errors are returned to the caller
// together with the new-golden events committed before the failure.
package reconcile
