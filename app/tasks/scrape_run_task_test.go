package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/navigator"
	"github.com/lysyi3m/slot-comb/app/notify"
	"github.com/lysyi3m/slot-comb/app/office"
	"github.com/lysyi3m/slot-comb/app/reconcile"
	"github.com/lysyi3m/slot-comb/app/slots"
)

var testNow = time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)

type MockOffices struct {
	offices []office.Office
}

func (m *MockOffices) Enabled() []office.Office {
	return m.offices
}

func officesNamed(names ...string) *MockOffices {
	m := &MockOffices{}
	for _, n := range names {
		m.offices = append(m.offices, office.Office{Name: n})
	}
	return m
}

type MockNavigator struct {
	mu       sync.Mutex
	pages    map[string][]string
	errs     map[string]error
	failures map[string]int
	block    bool
	calls    map[string]int
}

var _ navigator.Navigator = (*MockNavigator)(nil)

func newMockNavigator() *MockNavigator {
	return &MockNavigator{
		pages:    make(map[string][]string),
		errs:     make(map[string]error),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (m *MockNavigator) Fetch(ctx context.Context, o office.Office) ([]string, error) {
	m.mu.Lock()
	m.calls[o.Name]++
	call := m.calls[o.Name]
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := m.errs[o.Name]; ok {
		return nil, err
	}
	if call <= m.failures[o.Name] {
		return nil, navigator.ErrUnexpectedPage
	}
	return m.pages[o.Name], nil
}

type MockChannel struct {
	alerts []notify.Alert
}

func (m *MockChannel) Send(ctx context.Context, alert notify.Alert) error {
	m.alerts = append(m.alerts, alert)
	return nil
}

// failingStore fails every golden lookup.
type failingStore struct {
	database.AppointmentRepository
}

func (f failingStore) FindGolden(ctx context.Context, office string, date time.Time, timeOfDay string) (*database.Appointment, error) {
	return nil, errors.New("disk I/O error")
}

// uncheckableStore commits slots but fails the final office bookkeeping.
type uncheckableStore struct {
	database.AppointmentRepository
}

func (u uncheckableStore) MarkOfficeChecked(ctx context.Context, office string, at time.Time) error {
	return errors.New("database is locked")
}

type testEnv struct {
	deps         ScrapeRunDeps
	appointments database.AppointmentRepository
	runs         database.RunRepository
	subscribers  database.SubscriberRepository
	channel      *MockChannel
}

func newTestEnv(t *testing.T, offices OfficeSource, nav navigator.Navigator) *testEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("NewConnection() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() failed: %v", err)
	}

	env := &testEnv{
		appointments: database.NewAppointmentRepository(db),
		runs:         database.NewRunRepository(db),
		subscribers:  database.NewSubscriberRepository(db),
		channel:      &MockChannel{},
	}

	classifier := slots.NewClassifier(slots.DefaultGoldenThresholdDays)
	env.deps = ScrapeRunDeps{
		Offices:     offices,
		Navigator:   nav,
		Extractor:   slots.NewExtractor(),
		Classifier:  classifier,
		Engine:      reconcile.NewEngine(env.appointments, classifier, "https://example.com/book"),
		Runs:        env.runs,
		Subscribers: env.subscribers,
		Dispatcher:  notify.NewDispatcher(env.channel, "https://example.com/book"),
		Now:         func() time.Time { return testNow },
	}

	return env
}

func (e *testEnv) latestRun(t *testing.T) *database.Run {
	t.Helper()
	run, err := e.runs.GetLatestRun(context.Background())
	if err != nil {
		t.Fatalf("GetLatestRun() failed: %v", err)
	}
	if run == nil {
		t.Fatal("Expected a finished run")
	}
	return run
}

func TestScrapeRunAggregatesOffices(t *testing.T) {
	nav := newMockNavigator()
	nav.pages["Portland"] = []string{"3/1/2026 2:00:00 PM", "3/1/2026 2:00:00 PM", "4/10/2026 9:00:00 AM", "garbage"}
	nav.errs["Bangor"] = navigator.ErrUnexpectedPage
	nav.pages["Augusta"] = []string{"4/22/2026 2:15:00 PM"}

	env := newTestEnv(t, officesNamed("Portland", "Bangor", "Augusta"), nav)
	ctx := context.Background()

	if _, err := env.subscribers.UpsertSubscriber(ctx, "all@example.com", nil); err != nil {
		t.Fatalf("UpsertSubscriber() failed: %v", err)
	}
	if _, err := env.subscribers.UpsertSubscriber(ctx, "bangor@example.com", []string{"Bangor"}); err != nil {
		t.Fatalf("UpsertSubscriber() failed: %v", err)
	}

	task := NewScrapeRunTask(TriggerManual, env.deps)
	task.Start()
	if err := task.Execute(ctx); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	run := env.latestRun(t)
	if run.OfficesScraped != 3 {
		t.Errorf("Expected 3 offices scraped, got %d", run.OfficesScraped)
	}
	if run.GoldenFound != 2 {
		t.Errorf("Expected golden_found 2 with duplicates counted, got %d", run.GoldenFound)
	}
	if run.FutureFound != 2 {
		t.Errorf("Expected future_found 2, got %d", run.FutureFound)
	}
	if len(run.Errors) != 1 || run.Errors[0].Office != "Bangor" {
		t.Fatalf("Expected a single Bangor error, got %+v", run.Errors)
	}
	if !strings.Contains(run.Errors[0].Message, "unexpected page") {
		t.Errorf("Expected navigation error message, got %q", run.Errors[0].Message)
	}

	if len(env.channel.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(env.channel.alerts))
	}
	alert := env.channel.alerts[0]
	if alert.Recipient != "all@example.com" || alert.Office != "Portland" || alert.Slot.Time != "14:00:00" {
		t.Errorf("Unexpected alert %+v", alert)
	}

	current, err := env.appointments.ListCurrent(ctx)
	if err != nil {
		t.Fatalf("ListCurrent() failed: %v", err)
	}
	for _, a := range current {
		if a.Office == "Bangor" {
			t.Errorf("Expected no state for the failed office, got %+v", a)
		}
	}
	if len(current) != 3 {
		t.Errorf("Expected 3 current records, got %d", len(current))
	}
}

func TestScrapeRunSecondPassIsQuiet(t *testing.T) {
	nav := newMockNavigator()
	nav.pages["Portland"] = []string{"3/1/2026 2:00:00 PM"}
	env := newTestEnv(t, officesNamed("Portland"), nav)
	ctx := context.Background()

	if _, err := env.subscribers.UpsertSubscriber(ctx, "a@example.com", nil); err != nil {
		t.Fatalf("UpsertSubscriber() failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := NewScrapeRunTask(TriggerSchedule, env.deps).Execute(ctx); err != nil {
			t.Fatalf("Execute() failed: %v", err)
		}
	}

	if len(env.channel.alerts) != 1 {
		t.Errorf("Expected a single alert across two runs, got %d", len(env.channel.alerts))
	}
}

func TestScrapeRunRetriesNavigation(t *testing.T) {
	retryBaseDelay = time.Millisecond
	defer func() { retryBaseDelay = time.Second }()

	nav := newMockNavigator()
	nav.failures["Portland"] = 2
	nav.pages["Portland"] = []string{"4/10/2026 9:00:00 AM"}
	env := newTestEnv(t, officesNamed("Portland"), nav)
	env.deps.OfficeRetries = 2

	if err := NewScrapeRunTask(TriggerSchedule, env.deps).Execute(context.Background()); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if nav.calls["Portland"] != 3 {
		t.Errorf("Expected 3 navigation attempts, got %d", nav.calls["Portland"])
	}
	if run := env.latestRun(t); len(run.Errors) != 0 || run.FutureFound != 1 {
		t.Errorf("Expected a clean run after retries, got %+v", run)
	}
}

func TestScrapeRunOfficeTimeout(t *testing.T) {
	nav := newMockNavigator()
	nav.block = true
	env := newTestEnv(t, officesNamed("Portland", "Bangor"), nav)
	env.deps.OfficeTimeout = 20 * time.Millisecond

	if err := NewScrapeRunTask(TriggerSchedule, env.deps).Execute(context.Background()); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	run := env.latestRun(t)
	if len(run.Errors) != 2 {
		t.Fatalf("Expected both offices to time out, got %+v", run.Errors)
	}
	for _, e := range run.Errors {
		if !strings.Contains(e.Message, "deadline exceeded") {
			t.Errorf("Expected deadline error for %s, got %q", e.Office, e.Message)
		}
	}
}

func TestScrapeRunStoreFailureIsOfficeError(t *testing.T) {
	nav := newMockNavigator()
	nav.pages["Portland"] = []string{"3/1/2026 2:00:00 PM"}
	nav.pages["Augusta"] = []string{"4/10/2026 9:00:00 AM"}
	env := newTestEnv(t, officesNamed("Portland", "Augusta"), nav)
	env.deps.Engine = reconcile.NewEngine(failingStore{env.appointments}, env.deps.Classifier, "")

	if err := NewScrapeRunTask(TriggerSchedule, env.deps).Execute(context.Background()); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	run := env.latestRun(t)
	if len(run.Errors) != 1 || run.Errors[0].Office != "Portland" {
		t.Fatalf("Expected only Portland to fail, got %+v", run.Errors)
	}
	if !strings.Contains(run.Errors[0].Message, "disk I/O error") {
		t.Errorf("Expected store error message, got %q", run.Errors[0].Message)
	}
	if run.FutureFound != 1 {
		t.Errorf("Expected Augusta to be counted, got %d", run.FutureFound)
	}
}

func TestScrapeRunCancelledBeforeStart(t *testing.T) {
	nav := newMockNavigator()
	env := newTestEnv(t, officesNamed("Portland", "Bangor"), nav)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewScrapeRunTask(TriggerSchedule, env.deps).Execute(ctx); err == nil {
		t.Fatal("Expected CreateRun to fail on a cancelled context")
	}
	if len(nav.calls) != 0 {
		t.Errorf("Expected no navigation after cancellation, got %v", nav.calls)
	}
}

func TestScrapeRunInterruptedMidway(t *testing.T) {
	nav := newMockNavigator()
	nav.pages["Portland"] = []string{"4/10/2026 9:00:00 AM"}
	env := newTestEnv(t, officesNamed("Portland", "Bangor", "Augusta"), nav)
	env.deps.OfficeDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScrapeRunTask(TriggerSchedule, env.deps).Execute(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute() failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected cancellation to cut the office delay short")
	}

	run := env.latestRun(t)
	if run.FutureFound != 1 {
		t.Errorf("Expected Portland to be counted, got %d", run.FutureFound)
	}
	if len(run.Errors) != 2 {
		t.Errorf("Expected the remaining offices to be reported, got %+v", run.Errors)
	}
}

func TestScrapeRunAlertsCommittedSlotsOfFailedOffice(t *testing.T) {
	nav := newMockNavigator()
	nav.pages["Portland"] = []string{"3/1/2026 2:00:00 PM"}
	env := newTestEnv(t, officesNamed("Portland"), nav)
	ctx := context.Background()

	if _, err := env.subscribers.UpsertSubscriber(ctx, "a@example.com", nil); err != nil {
		t.Fatalf("UpsertSubscriber() failed: %v", err)
	}

	healthy := env.deps.Engine
	env.deps.Engine = reconcile.NewEngine(uncheckableStore{env.appointments}, env.deps.Classifier, "https://example.com/book")

	if err := NewScrapeRunTask(TriggerSchedule, env.deps).Execute(ctx); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	run := env.latestRun(t)
	if len(run.Errors) != 1 || run.Errors[0].Office != "Portland" {
		t.Fatalf("Expected a Portland error, got %+v", run.Errors)
	}
	if !strings.Contains(run.Errors[0].Message, "database is locked") {
		t.Errorf("Expected store error message, got %q", run.Errors[0].Message)
	}
	if len(env.channel.alerts) != 1 || env.channel.alerts[0].Slot.Time != "14:00:00" {
		t.Fatalf("Expected the committed slot to be alerted, got %+v", env.channel.alerts)
	}

	env.deps.Engine = healthy
	if err := NewScrapeRunTask(TriggerSchedule, env.deps).Execute(ctx); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if len(env.channel.alerts) != 1 {
		t.Errorf("Expected no repeat alert once the store recovers, got %d", len(env.channel.alerts))
	}
}
