package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/tandemhq/tandem/internal/services/quests/storage"
)

// CompletionFact is the one-shot record of a quest crossing its target.
// It is handed to a FactSink exactly once per completion; delivery is the
// sink's problem and never rolls back the ledger.
type CompletionFact struct {
	// ID identifies this dispatch for logs and traces. Dedupe uses Key(),
	// which is stable across retries; ID is not.
	ID                 string
	RelationshipID     string
	TemplateID         string
	Title              string
	PeriodStart        time.Time
	StartedAt          time.Time
	CompletedAt        time.Time
	TimeToCompletion   time.Duration
	CompletedByActorID string
	// Recipients lists the user ids still due this notification. Empty when
	// no cooldown wiring filtered the audience; the downstream dispatcher
	// then resolves recipients itself.
	Recipients []string
}

// Key returns the stable dedupe key for this fact.
func (f CompletionFact) Key() string {
	return fmt.Sprintf("quest.completed:%s:%s:%d", f.RelationshipID, f.TemplateID, f.PeriodStart.UTC().UnixMilli())
}

// FactSink receives completion facts for notification dispatch.
type FactSink interface {
	QuestCompleted(ctx context.Context, fact CompletionFact) error
}

// FactSinkFunc adapts a function to the FactSink interface.
type FactSinkFunc func(ctx context.Context, fact CompletionFact) error

// QuestCompleted implements FactSink for FactSinkFunc.
func (fn FactSinkFunc) QuestCompleted(ctx context.Context, fact CompletionFact) error {
	return fn(ctx, fact)
}

// RecipientsFunc resolves the user ids that should hear about a
// relationship's quest activity. Membership itself lives upstream.
type RecipientsFunc func(ctx context.Context, relationshipID string) ([]string, error)

// CooldownFactSink forwards completion facts through a persistent per-recipient
// cooldown reservation, so repeated dispatch of the same fact stays suppressed
// across process restarts and multiple instances.
type CooldownFactSink struct {
	inner      FactSink
	cooldowns  storage.CooldownStore
	recipients RecipientsFunc
	cooldown   time.Duration
	clock      func() time.Time
}

// DefaultNotificationCooldown bounds how often one fact may be re-sent to the
// same recipient.
const DefaultNotificationCooldown = 24 * time.Hour

// NewCooldownFactSink wraps inner with persistent send deduplication.
func NewCooldownFactSink(inner FactSink, cooldowns storage.CooldownStore, recipients RecipientsFunc, cooldown time.Duration, clock func() time.Time) *CooldownFactSink {
	if cooldown <= 0 {
		cooldown = DefaultNotificationCooldown
	}
	if clock == nil {
		clock = time.Now
	}
	return &CooldownFactSink{
		inner:      inner,
		cooldowns:  cooldowns,
		recipients: recipients,
		cooldown:   cooldown,
		clock:      clock,
	}
}

// QuestCompleted reserves a send slot per recipient and forwards the fact
// carrying only the recipients still due a notification, so a partner inside
// the cooldown window is never re-notified alongside one who is not.
func (s *CooldownFactSink) QuestCompleted(ctx context.Context, fact CompletionFact) error {
	if s == nil || s.inner == nil {
		return nil
	}
	if s.cooldowns == nil || s.recipients == nil {
		return s.inner.QuestCompleted(ctx, fact)
	}

	recipients, err := s.recipients(ctx, fact.RelationshipID)
	if err != nil {
		return fmt.Errorf("resolve fact recipients: %w", err)
	}
	now := s.clock().UTC()
	var due []string
	for _, recipient := range recipients {
		allowed, reserveErr := s.cooldowns.ReserveNotificationSend(ctx, fact.Key(), recipient, now, s.cooldown)
		if reserveErr != nil {
			return fmt.Errorf("reserve notification send: %w", reserveErr)
		}
		if allowed {
			due = append(due, recipient)
		}
	}
	if len(due) == 0 {
		return nil
	}
	fact.Recipients = due
	return s.inner.QuestCompleted(ctx, fact)
}
