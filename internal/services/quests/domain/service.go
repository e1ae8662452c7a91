// Package domain implements the shared-quest progress engine: it turns
// domain events into progress toward recurring two-person goals and detects,
// exactly once, when a goal completes or silently expires unmet.
package domain

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/tandemhq/tandem/internal/platform/id"
	"github.com/tandemhq/tandem/internal/services/quests/storage"
)

// maxApplyAttempts bounds retries of the conditional progress write when the
// store reports lock contention. The write is a pure function of stored row
// state, so retrying it verbatim is safe.
const maxApplyAttempts = 3

// ApplyEventInput describes one observed domain action.
type ApplyEventInput struct {
	RelationshipID string
	EventType      EventType
	ActorID        string
	// OccurredAt defaults to the service clock when zero.
	OccurredAt time.Time
}

// StartedGoal reports a quest whose first qualifying event just landed.
// Observability only; callers may log or count it.
type StartedGoal struct {
	TemplateID string
	Title      string
}

// CompletedGoal reports a quest that just crossed its target.
type CompletedGoal struct {
	TemplateID string
	Title      string
}

// ApplyEventResult accumulates the transitions one event caused.
type ApplyEventResult struct {
	NewlyStarted   []StartedGoal
	NewlyCompleted []CompletedGoal
}

// ProgressView is the caller-facing state of one quest in the current period.
type ProgressView struct {
	TemplateID string
	Title      string
	Progress   int
	Target     int
	Completed  bool
	// PeriodEnd is inclusive: the stored exclusive bound minus one unit of
	// the store's millisecond resolution.
	PeriodEnd time.Time
}

// Service orchestrates quest progress lifecycle behavior.
type Service struct {
	store     storage.Store
	catalogue *Catalogue
	facts     FactSink
	clock     func() time.Time
}

// NewService constructs the quest engine use-cases. The fact sink may be nil
// when the deployment has no notification dispatcher.
func NewService(store storage.Store, catalogue *Catalogue, facts FactSink, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:     store,
		catalogue: catalogue,
		facts:     facts,
		clock:     clock,
	}
}

// ApplyEvent applies one domain event to every quest template it triggers.
//
// Templates are independent: each gets its own conditional write, and a
// failure on one template surfaces without undoing progress on another.
// An event type with no matching templates is a no-op, not an error.
func (s *Service) ApplyEvent(ctx context.Context, input ApplyEventInput) (ApplyEventResult, error) {
	if s == nil || s.store == nil {
		return ApplyEventResult{}, ErrStoreNotConfigured
	}
	if s.catalogue == nil {
		return ApplyEventResult{}, ErrCatalogueNotConfigured
	}
	relationshipID := strings.TrimSpace(input.RelationshipID)
	if relationshipID == "" {
		return ApplyEventResult{}, ErrRelationshipIDRequired
	}
	eventType, err := ParseEventType(string(input.EventType))
	if err != nil {
		return ApplyEventResult{}, err
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock()
	}
	occurredAt = occurredAt.UTC()
	actorID := strings.TrimSpace(input.ActorID)

	templates := s.catalogue.TemplatesForEvent(eventType)
	if len(templates) == 0 {
		return ApplyEventResult{}, nil
	}

	var result ApplyEventResult
	for _, template := range templates {
		period := PeriodFor(template.Cadence, occurredAt)
		application, err := s.applyWithRetry(ctx, storage.ProgressMutation{
			RelationshipID: relationshipID,
			TemplateID:     template.ID,
			PeriodStart:    period.Start,
			PeriodEnd:      period.End,
			Increment:      1,
			TargetCount:    template.TargetCount,
			OccurredAt:     occurredAt,
			ActorID:        actorID,
		})
		if err != nil {
			return ApplyEventResult{}, err
		}
		if application.After.ExpiredAt != nil {
			// The window was swept before this event landed; no late carryover.
			continue
		}
		if application.Started() {
			result.NewlyStarted = append(result.NewlyStarted, StartedGoal{
				TemplateID: template.ID,
				Title:      template.Title,
			})
		}
		if application.Completed() {
			result.NewlyCompleted = append(result.NewlyCompleted, CompletedGoal{
				TemplateID: template.ID,
				Title:      template.Title,
			})
			s.dispatchCompletion(ctx, template, application.After)
		}
	}
	return result, nil
}

// CurrentProgress reports the relationship's quest state for one cadence in
// the period containing now. It sweeps overdue windows first and guarantees a
// zero-progress row exists so callers can render "not started" without that
// read counting as a start.
func (s *Service) CurrentProgress(ctx context.Context, relationshipID string, cadence Cadence) (ProgressView, error) {
	if s == nil || s.store == nil {
		return ProgressView{}, ErrStoreNotConfigured
	}
	relationshipID = strings.TrimSpace(relationshipID)
	if relationshipID == "" {
		return ProgressView{}, ErrRelationshipIDRequired
	}
	cadence, err := ParseCadence(string(cadence))
	if err != nil {
		return ProgressView{}, err
	}
	template, err := s.catalogue.TemplateForCadence(cadence)
	if err != nil {
		return ProgressView{}, err
	}

	now := s.clock().UTC()
	if err := s.store.SweepExpired(ctx, relationshipID, now); err != nil {
		return ProgressView{}, err
	}

	period := PeriodFor(cadence, now)
	if err := s.store.EnsurePlaceholder(ctx, relationshipID, template.ID, period.Start, period.End, template.TargetCount, now); err != nil {
		return ProgressView{}, err
	}
	record, err := s.store.GetRecord(ctx, relationshipID, template.ID, period.Start)
	if err != nil {
		return ProgressView{}, err
	}

	return ProgressView{
		TemplateID: template.ID,
		Title:      template.Title,
		Progress:   record.ProgressCount,
		Target:     template.TargetCount,
		Completed:  record.CompletedAt != nil,
		PeriodEnd:  period.End.Add(-time.Millisecond),
	}, nil
}

// SweepExpired marks the relationship's overdue open quests expired.
func (s *Service) SweepExpired(ctx context.Context, relationshipID string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	relationshipID = strings.TrimSpace(relationshipID)
	if relationshipID == "" {
		return ErrRelationshipIDRequired
	}
	return s.store.SweepExpired(ctx, relationshipID, s.clock().UTC())
}

func (s *Service) applyWithRetry(ctx context.Context, mutation storage.ProgressMutation) (storage.Application, error) {
	var lastErr error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		application, err := s.store.ApplyUnitOfProgress(ctx, mutation)
		if err == nil {
			return application, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return storage.Application{}, err
		}
		lastErr = err
	}
	return storage.Application{}, lastErr
}

func (s *Service) dispatchCompletion(ctx context.Context, template GoalTemplate, record storage.ProgressRecord) {
	if s.facts == nil || record.CompletedAt == nil {
		return
	}
	completedAt := record.CompletedAt.UTC()
	startedAt := completedAt
	if record.StartedAt != nil {
		startedAt = record.StartedAt.UTC()
	}
	timeToCompletion := completedAt.Sub(startedAt)
	if timeToCompletion < 0 {
		// Clock skew between writers must not produce a negative duration.
		timeToCompletion = 0
	}
	factID, err := id.NewID()
	if err != nil {
		// The fact still goes out; only its trace id is lost.
		log.Printf("generate completion fact id: %v", err)
	}
	fact := CompletionFact{
		ID:                 factID,
		RelationshipID:     record.RelationshipID,
		TemplateID:         template.ID,
		Title:              template.Title,
		PeriodStart:        record.PeriodStart,
		StartedAt:          startedAt,
		CompletedAt:        completedAt,
		TimeToCompletion:   timeToCompletion,
		CompletedByActorID: record.CompletedByActorID,
	}
	// Dispatch failures never roll back or retry the ledger mutation.
	if err := s.facts.QuestCompleted(ctx, fact); err != nil {
		log.Printf("quest completion fact dispatch: %v", err)
	}
}
