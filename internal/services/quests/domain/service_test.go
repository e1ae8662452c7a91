package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tandemhq/tandem/internal/services/quests/storage"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func weeklyOnlyCatalogue(target int) *Catalogue {
	return NewCatalogue([]GoalTemplate{{
		ID:               "weekly-journal",
		Title:            "Weekly journal",
		Cadence:          CadenceWeekly,
		TargetCount:      target,
		TriggerEventType: EventJournalEntryCreated,
	}})
}

type fakeStore struct {
	mu         sync.Mutex
	records    map[string]storage.ProgressRecord
	applyErrs  []error
	sweepAsOf  []time.Time
	sweepCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]storage.ProgressRecord)}
}

func recordKey(relationshipID, templateID string, periodStart time.Time) string {
	return fmt.Sprintf("%s|%s|%d", relationshipID, templateID, periodStart.UTC().UnixMilli())
}

func (f *fakeStore) queueApplyErrs(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyErrs = append(f.applyErrs, errs...)
}

func (f *fakeStore) ApplyUnitOfProgress(_ context.Context, mutation storage.ProgressMutation) (storage.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applyErrs) > 0 {
		err := f.applyErrs[0]
		f.applyErrs = f.applyErrs[1:]
		if err != nil {
			return storage.Application{}, err
		}
	}

	key := recordKey(mutation.RelationshipID, mutation.TemplateID, mutation.PeriodStart)
	existing, ok := f.records[key]
	if !ok {
		count := mutation.Increment
		if count > mutation.TargetCount {
			count = mutation.TargetCount
		}
		started := mutation.OccurredAt
		record := storage.ProgressRecord{
			RelationshipID: mutation.RelationshipID,
			TemplateID:     mutation.TemplateID,
			PeriodStart:    mutation.PeriodStart,
			PeriodEnd:      mutation.PeriodEnd,
			ProgressCount:  count,
			TargetCount:    mutation.TargetCount,
			StartedAt:      &started,
			CreatedAt:      mutation.OccurredAt,
			UpdatedAt:      mutation.OccurredAt,
		}
		if count >= mutation.TargetCount {
			completed := mutation.OccurredAt
			record.CompletedAt = &completed
			record.CompletedByActorID = mutation.ActorID
		}
		f.records[key] = record
		return storage.Application{After: record}, nil
	}

	before := existing
	if existing.ExpiredAt != nil {
		return storage.Application{Before: &before, After: existing}, nil
	}
	next := existing.ProgressCount + mutation.Increment
	if next > existing.TargetCount {
		next = existing.TargetCount
	}
	existing.ProgressCount = next
	if existing.StartedAt == nil {
		started := mutation.OccurredAt
		existing.StartedAt = &started
	}
	if existing.CompletedAt == nil && next >= existing.TargetCount {
		completed := mutation.OccurredAt
		existing.CompletedAt = &completed
		existing.CompletedByActorID = mutation.ActorID
	}
	existing.UpdatedAt = mutation.OccurredAt
	f.records[key] = existing
	return storage.Application{Before: &before, After: existing}, nil
}

func (f *fakeStore) EnsurePlaceholder(_ context.Context, relationshipID, templateID string, periodStart, periodEnd time.Time, targetCount int, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recordKey(relationshipID, templateID, periodStart)
	if _, ok := f.records[key]; ok {
		return nil
	}
	f.records[key] = storage.ProgressRecord{
		RelationshipID: relationshipID,
		TemplateID:     templateID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		TargetCount:    targetCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (f *fakeStore) GetRecord(_ context.Context, relationshipID, templateID string, periodStart time.Time) (storage.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[recordKey(relationshipID, templateID, periodStart)]
	if !ok {
		return storage.ProgressRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) ListOpenRecords(_ context.Context, relationshipID string) ([]storage.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []storage.ProgressRecord
	for _, record := range f.records {
		if record.RelationshipID == relationshipID && record.Open() {
			open = append(open, record)
		}
	}
	return open, nil
}

func (f *fakeStore) SweepExpired(_ context.Context, relationshipID string, asOf time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepCalls++
	f.sweepAsOf = append(f.sweepAsOf, asOf)
	for key, record := range f.records {
		if record.RelationshipID != relationshipID || !record.Open() {
			continue
		}
		if !record.PeriodEnd.After(asOf) {
			expired := asOf
			record.ExpiredAt = &expired
			record.UpdatedAt = asOf
			f.records[key] = record
		}
	}
	return nil
}

func (f *fakeStore) SweepDueRecords(_ context.Context, asOf time.Time, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	swept := 0
	for key, record := range f.records {
		if swept >= limit {
			break
		}
		if record.Open() && !record.PeriodEnd.After(asOf) {
			expired := asOf
			record.ExpiredAt = &expired
			f.records[key] = record
			swept++
		}
	}
	return swept, nil
}

func (f *fakeStore) record(t *testing.T, relationshipID, templateID string, periodStart time.Time) storage.ProgressRecord {
	t.Helper()
	record, err := f.GetRecord(context.Background(), relationshipID, templateID, periodStart)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	return record
}

type recordingSink struct {
	mu    sync.Mutex
	facts []CompletionFact
	err   error
}

func (s *recordingSink) QuestCompleted(_ context.Context, fact CompletionFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
	return s.err
}

func TestApplyEventRequiresRelationship(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), DefaultCatalogue(), nil, nil)
	_, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		EventType: EventJournalEntryCreated,
	})
	if !errors.Is(err, ErrRelationshipIDRequired) {
		t.Fatalf("expected ErrRelationshipIDRequired, got %v", err)
	}
}

func TestApplyEventRejectsUnknownEventType(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), DefaultCatalogue(), nil, nil)
	_, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventType("mystery.event"),
	})
	if !errors.Is(err, ErrEventTypeInvalid) {
		t.Fatalf("expected ErrEventTypeInvalid, got %v", err)
	}
}

func TestApplyEventNormalizesEventTypeToken(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, weeklyOnlyCatalogue(4), nil, nil)

	// Producers may hand over unnormalized tokens; the parsed form must be
	// the one matched against the catalogue.
	at := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	result, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventType(" Journal.Entry_Created "),
		ActorID:        "user-a",
		OccurredAt:     at,
	})
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if len(result.NewlyStarted) != 1 {
		t.Fatalf("expected normalized token to start the quest, got %+v", result)
	}
	record := store.record(t, "rel-1", "weekly-journal", PeriodFor(CadenceWeekly, at).Start)
	if record.ProgressCount != 1 {
		t.Fatalf("expected one unit of progress, got %d", record.ProgressCount)
	}
}

func TestApplyEventNoMatchingTemplatesIsNoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, weeklyOnlyCatalogue(4), nil, nil)

	result, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventPhotoShared,
	})
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if len(result.NewlyStarted) != 0 || len(result.NewlyCompleted) != 0 {
		t.Fatalf("expected no transitions, got %+v", result)
	}
	if len(store.records) != 0 {
		t.Fatalf("expected no records, got %d", len(store.records))
	}
}

func TestApplyEventWeeklyScenario(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sink := &recordingSink{}
	svc := NewService(store, weeklyOnlyCatalogue(4), sink, nil)

	week := PeriodFor(CadenceWeekly, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	apply := func(at time.Time, actor string) ApplyEventResult {
		t.Helper()
		result, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
			RelationshipID: "rel-1",
			EventType:      EventJournalEntryCreated,
			ActorID:        actor,
			OccurredAt:     at,
		})
		if err != nil {
			t.Fatalf("apply event at %v: %v", at, err)
		}
		return result
	}

	monday := week.Start.Add(9 * time.Hour)
	first := apply(monday, "user-a")
	if len(first.NewlyStarted) != 1 || first.NewlyStarted[0].TemplateID != "weekly-journal" {
		t.Fatalf("expected first event to start the quest, got %+v", first)
	}

	apply(week.Start.AddDate(0, 0, 2).Add(20*time.Hour), "user-b") // Wednesday
	third := apply(week.Start.AddDate(0, 0, 4).Add(8*time.Hour), "user-a") // Friday
	if len(third.NewlyCompleted) != 0 {
		t.Fatalf("expected no completion at 3 of 4, got %+v", third)
	}

	record := store.record(t, "rel-1", "weekly-journal", week.Start)
	if record.ProgressCount != 3 || record.CompletedAt != nil {
		t.Fatalf("expected 3 of 4 open, got %+v", record)
	}
	if record.StartedAt == nil || !record.StartedAt.Equal(monday) {
		t.Fatalf("expected started at first event %v, got %v", monday, record.StartedAt)
	}

	saturday := week.Start.AddDate(0, 0, 5).Add(11 * time.Hour)
	fourth := apply(saturday, "user-b")
	if len(fourth.NewlyCompleted) != 1 || fourth.NewlyCompleted[0].TemplateID != "weekly-journal" {
		t.Fatalf("expected completion on 4th event, got %+v", fourth)
	}

	record = store.record(t, "rel-1", "weekly-journal", week.Start)
	if record.ProgressCount != 4 {
		t.Fatalf("expected progress 4, got %d", record.ProgressCount)
	}
	if record.CompletedAt == nil || !record.CompletedAt.Equal(saturday) {
		t.Fatalf("expected completed at %v, got %v", saturday, record.CompletedAt)
	}
	if record.CompletedByActorID != "user-b" {
		t.Fatalf("expected completion attributed to user-b, got %q", record.CompletedByActorID)
	}

	// A 5th event the following Monday opens a fresh window.
	nextMonday := week.End.Add(10 * time.Hour)
	fifth := apply(nextMonday, "user-a")
	if len(fifth.NewlyStarted) != 1 {
		t.Fatalf("expected new window to start, got %+v", fifth)
	}
	next := store.record(t, "rel-1", "weekly-journal", week.End)
	if next.ProgressCount != 1 || next.CompletedAt != nil {
		t.Fatalf("expected fresh record at 1 of 4, got %+v", next)
	}
	prior := store.record(t, "rel-1", "weekly-journal", week.Start)
	if prior.ProgressCount != 4 || prior.CompletedAt == nil {
		t.Fatalf("expected prior window untouched, got %+v", prior)
	}

	if len(sink.facts) != 1 {
		t.Fatalf("expected exactly one completion fact, got %d", len(sink.facts))
	}
	fact := sink.facts[0]
	if fact.RelationshipID != "rel-1" || fact.TemplateID != "weekly-journal" {
		t.Fatalf("unexpected fact identity: %+v", fact)
	}
	if len(fact.ID) != 26 {
		t.Fatalf("expected 26-char fact id, got %q", fact.ID)
	}
	if want := saturday.Sub(monday); fact.TimeToCompletion != want {
		t.Fatalf("expected time to completion %v, got %v", want, fact.TimeToCompletion)
	}
}

func TestApplyEventFeedsEveryMatchingTemplate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, DefaultCatalogue(), nil, nil)

	at := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	result, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventJournalEntryCreated,
		ActorID:        "user-a",
		OccurredAt:     at,
	})
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if len(result.NewlyStarted) != 2 {
		t.Fatalf("expected weekly and monthly quests to start, got %+v", result)
	}

	weekly := store.record(t, "rel-1", "weekly-journal", PeriodFor(CadenceWeekly, at).Start)
	monthly := store.record(t, "rel-1", "monthly-journal", PeriodFor(CadenceMonthly, at).Start)
	if weekly.ProgressCount != 1 || monthly.ProgressCount != 1 {
		t.Fatalf("expected 1 unit on each template, got weekly %d monthly %d", weekly.ProgressCount, monthly.ProgressCount)
	}
}

func TestApplyEventExactlyOnceCompletionUnderConcurrency(t *testing.T) {
	t.Parallel()

	const callers = 8
	store := newFakeStore()
	svc := NewService(store, weeklyOnlyCatalogue(4), nil, nil)

	at := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	results := make([]ApplyEventResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.ApplyEvent(context.Background(), ApplyEventInput{
				RelationshipID: "rel-1",
				EventType:      EventJournalEntryCreated,
				ActorID:        fmt.Sprintf("user-%d", i),
				OccurredAt:     at.Add(time.Duration(i) * time.Second),
			})
		}(i)
	}
	wg.Wait()

	completions := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		completions += len(results[i].NewlyCompleted)
	}
	if completions != 1 {
		t.Fatalf("expected exactly one observed completion, got %d", completions)
	}

	record := store.record(t, "rel-1", "weekly-journal", PeriodFor(CadenceWeekly, at).Start)
	if record.ProgressCount != 4 {
		t.Fatalf("expected clamped progress 4, got %d", record.ProgressCount)
	}
	if record.CompletedAt == nil || record.CompletedByActorID == "" {
		t.Fatalf("expected one attributed completion, got %+v", record)
	}
}

func TestApplyEventRetriesConflicts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.queueApplyErrs(storage.ErrConflict, storage.ErrConflict)
	svc := NewService(store, weeklyOnlyCatalogue(4), nil, nil)

	result, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventJournalEntryCreated,
		OccurredAt:     time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected conflict retries to succeed, got %v", err)
	}
	if len(result.NewlyStarted) != 1 {
		t.Fatalf("expected quest start after retries, got %+v", result)
	}
}

func TestApplyEventSurfacesExhaustedConflicts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.queueApplyErrs(storage.ErrConflict, storage.ErrConflict, storage.ErrConflict)
	svc := NewService(store, weeklyOnlyCatalogue(4), nil, nil)

	_, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventJournalEntryCreated,
		OccurredAt:     time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected surfaced conflict, got %v", err)
	}
}

func TestApplyEventSurfacesStorageErrors(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	storeErr := errors.New("disk on fire")
	store.queueApplyErrs(storeErr)
	svc := NewService(store, weeklyOnlyCatalogue(4), nil, nil)

	_, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventJournalEntryCreated,
		OccurredAt:     time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected storage error surfaced unretried, got %v", err)
	}
}

func TestApplyEventLateEventAfterSweepIsNoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sink := &recordingSink{}
	svc := NewService(store, weeklyOnlyCatalogue(4), sink, nil)

	week := PeriodFor(CadenceWeekly, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	for day := 0; day < 2; day++ {
		if _, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
			RelationshipID: "rel-1",
			EventType:      EventJournalEntryCreated,
			OccurredAt:     week.Start.AddDate(0, 0, day).Add(10 * time.Hour),
		}); err != nil {
			t.Fatalf("apply event: %v", err)
		}
	}
	if err := store.SweepExpired(context.Background(), "rel-1", week.End); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// A late event stamped inside the swept window must not resurrect it.
	late, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventJournalEntryCreated,
		OccurredAt:     week.Start.AddDate(0, 0, 6).Add(23 * time.Hour),
	})
	if err != nil {
		t.Fatalf("late apply: %v", err)
	}
	if len(late.NewlyStarted) != 0 || len(late.NewlyCompleted) != 0 {
		t.Fatalf("expected no transitions on expired window, got %+v", late)
	}
	record := store.record(t, "rel-1", "weekly-journal", week.Start)
	if record.ProgressCount != 2 {
		t.Fatalf("expected progress frozen at 2, got %d", record.ProgressCount)
	}
	if record.ExpiredAt == nil || record.CompletedAt != nil {
		t.Fatalf("expected expired terminal state, got %+v", record)
	}
	if len(sink.facts) != 0 {
		t.Fatalf("expected no completion facts, got %d", len(sink.facts))
	}
}

func TestApplyEventTargetOneCompletesImmediately(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sink := &recordingSink{}
	svc := NewService(store, weeklyOnlyCatalogue(1), sink, nil)

	at := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	result, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventJournalEntryCreated,
		ActorID:        "user-a",
		OccurredAt:     at,
	})
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if len(result.NewlyStarted) != 1 || len(result.NewlyCompleted) != 1 {
		t.Fatalf("expected simultaneous start and completion, got %+v", result)
	}
	if len(sink.facts) != 1 {
		t.Fatalf("expected one fact, got %d", len(sink.facts))
	}
	// Start and completion coincide, so time-to-completion collapses to zero.
	if sink.facts[0].TimeToCompletion != 0 {
		t.Fatalf("expected zero time to completion, got %v", sink.facts[0].TimeToCompletion)
	}
	if sink.facts[0].CompletedByActorID != "user-a" {
		t.Fatalf("expected attribution to user-a, got %q", sink.facts[0].CompletedByActorID)
	}
}

func TestApplyEventSinkFailureDoesNotFailLedger(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sink := &recordingSink{err: errors.New("push provider down")}
	svc := NewService(store, weeklyOnlyCatalogue(1), sink, nil)

	result, err := svc.ApplyEvent(context.Background(), ApplyEventInput{
		RelationshipID: "rel-1",
		EventType:      EventJournalEntryCreated,
		OccurredAt:     time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected ledger mutation to survive sink failure, got %v", err)
	}
	if len(result.NewlyCompleted) != 1 {
		t.Fatalf("expected completion despite sink failure, got %+v", result)
	}
}

func TestCurrentProgressRendersPlaceholderWithoutStarting(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)
	svc := NewService(store, DefaultCatalogue(), nil, fixedClock(now))

	for i := 0; i < 3; i++ {
		view, err := svc.CurrentProgress(context.Background(), "rel-1", CadenceWeekly)
		if err != nil {
			t.Fatalf("current progress call %d: %v", i, err)
		}
		if view.Progress != 0 || view.Completed {
			t.Fatalf("expected untouched placeholder, got %+v", view)
		}
		if view.Target != 4 || view.Title == "" {
			t.Fatalf("expected seeded weekly template data, got %+v", view)
		}
	}

	period := PeriodFor(CadenceWeekly, now)
	record := store.record(t, "rel-1", "weekly-journal", period.Start)
	if record.StartedAt != nil {
		t.Fatalf("placeholder must not set started_at, got %v", record.StartedAt)
	}
}

func TestCurrentProgressReportsInclusivePeriodEnd(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)
	svc := NewService(store, DefaultCatalogue(), nil, fixedClock(now))

	view, err := svc.CurrentProgress(context.Background(), "rel-1", CadenceWeekly)
	if err != nil {
		t.Fatalf("current progress: %v", err)
	}
	want := PeriodFor(CadenceWeekly, now).End.Add(-time.Millisecond)
	if !view.PeriodEnd.Equal(want) {
		t.Fatalf("expected inclusive period end %v, got %v", want, view.PeriodEnd)
	}
}

func TestCurrentProgressSweepsOverdueWindowsFirst(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	catalogue := weeklyOnlyCatalogue(4)
	priorWeek := PeriodFor(CadenceWeekly, time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC))

	seedSvc := NewService(store, catalogue, nil, nil)
	for day := 0; day < 2; day++ {
		if _, err := seedSvc.ApplyEvent(context.Background(), ApplyEventInput{
			RelationshipID: "rel-1",
			EventType:      EventJournalEntryCreated,
			OccurredAt:     priorWeek.Start.AddDate(0, 0, day).Add(10 * time.Hour),
		}); err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}

	now := priorWeek.End.Add(36 * time.Hour)
	svc := NewService(store, catalogue, nil, fixedClock(now))
	view, err := svc.CurrentProgress(context.Background(), "rel-1", CadenceWeekly)
	if err != nil {
		t.Fatalf("current progress: %v", err)
	}
	if view.Progress != 0 {
		t.Fatalf("expected fresh window at 0, got %d", view.Progress)
	}

	prior := store.record(t, "rel-1", "weekly-journal", priorWeek.Start)
	if prior.ExpiredAt == nil {
		t.Fatal("expected overdue window to be swept on read")
	}
	if prior.ProgressCount != 2 {
		t.Fatalf("expected frozen progress 2, got %d", prior.ProgressCount)
	}
}

func TestCurrentProgressMissingTemplateIsConfigError(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), weeklyOnlyCatalogue(4), nil, fixedClock(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)))
	_, err := svc.CurrentProgress(context.Background(), "rel-1", CadenceMonthly)
	if !errors.Is(err, ErrTemplateNotConfigured) {
		t.Fatalf("expected ErrTemplateNotConfigured, got %v", err)
	}
}

func TestCurrentProgressNormalizesCadenceToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)
	svc := NewService(newFakeStore(), DefaultCatalogue(), nil, fixedClock(now))

	view, err := svc.CurrentProgress(context.Background(), "rel-1", Cadence(" weekly "))
	if err != nil {
		t.Fatalf("lowercase cadence must resolve after parsing: %v", err)
	}
	if view.TemplateID != "weekly-journal" || view.Target != 4 {
		t.Fatalf("expected weekly template view, got %+v", view)
	}
}

func TestCurrentProgressRejectsUnknownCadence(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), DefaultCatalogue(), nil, nil)
	_, err := svc.CurrentProgress(context.Background(), "rel-1", Cadence("DAILY"))
	if !errors.Is(err, ErrCadenceInvalid) {
		t.Fatalf("expected ErrCadenceInvalid, got %v", err)
	}
}

func TestSweepExpiredRequiresRelationship(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), DefaultCatalogue(), nil, nil)
	if err := svc.SweepExpired(context.Background(), "  "); !errors.Is(err, ErrRelationshipIDRequired) {
		t.Fatalf("expected ErrRelationshipIDRequired, got %v", err)
	}
}
