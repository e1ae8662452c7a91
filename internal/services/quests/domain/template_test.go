package domain

import (
	"errors"
	"testing"
)

func TestParseEventType(t *testing.T) {
	t.Parallel()

	if eventType, err := ParseEventType(" Journal.Entry_Created "); err != nil || eventType != EventJournalEntryCreated {
		t.Fatalf("expected journal event, got %q err %v", eventType, err)
	}
	if _, err := ParseEventType("mystery.event"); !errors.Is(err, ErrEventTypeInvalid) {
		t.Fatalf("expected ErrEventTypeInvalid, got %v", err)
	}
	if _, err := ParseEventType(""); !errors.Is(err, ErrEventTypeInvalid) {
		t.Fatalf("expected ErrEventTypeInvalid for empty token, got %v", err)
	}
}

func TestDefaultCatalogueSeedsBothCadences(t *testing.T) {
	t.Parallel()

	catalogue := DefaultCatalogue()

	weekly, err := catalogue.TemplateForCadence(CadenceWeekly)
	if err != nil {
		t.Fatalf("weekly template: %v", err)
	}
	if weekly.ID != "weekly-journal" || weekly.TargetCount != 4 {
		t.Fatalf("unexpected weekly template: %+v", weekly)
	}

	monthly, err := catalogue.TemplateForCadence(CadenceMonthly)
	if err != nil {
		t.Fatalf("monthly template: %v", err)
	}
	if monthly.ID != "monthly-journal" || monthly.TargetCount != 12 {
		t.Fatalf("unexpected monthly template: %+v", monthly)
	}
}

func TestTemplatesForEventReturnsAllMatches(t *testing.T) {
	t.Parallel()

	catalogue := DefaultCatalogue()
	matches := catalogue.TemplatesForEvent(EventJournalEntryCreated)
	if len(matches) != 2 {
		t.Fatalf("expected both journal templates, got %d", len(matches))
	}
	if matches := catalogue.TemplatesForEvent(EventPhotoShared); len(matches) != 0 {
		t.Fatalf("expected no photo templates in default seed, got %d", len(matches))
	}
}

func TestTemplateForCadenceMissingIsConfigError(t *testing.T) {
	t.Parallel()

	catalogue := NewCatalogue([]GoalTemplate{{
		ID:               "weekly-journal",
		Title:            "Weekly journal",
		Cadence:          CadenceWeekly,
		TargetCount:      4,
		TriggerEventType: EventJournalEntryCreated,
	}})
	if _, err := catalogue.TemplateForCadence(CadenceMonthly); !errors.Is(err, ErrTemplateNotConfigured) {
		t.Fatalf("expected ErrTemplateNotConfigured, got %v", err)
	}
}

func TestNewCatalogueSkipsInvalidSeeds(t *testing.T) {
	t.Parallel()

	catalogue := NewCatalogue([]GoalTemplate{
		{ID: "", Cadence: CadenceWeekly, TargetCount: 4, TriggerEventType: EventJournalEntryCreated},
		{ID: "zero-target", Cadence: CadenceWeekly, TargetCount: 0, TriggerEventType: EventJournalEntryCreated},
		{ID: "kept", Title: "Kept", Cadence: CadenceWeekly, TargetCount: 2, TriggerEventType: EventJournalEntryCreated},
	})
	templates := catalogue.Templates()
	if len(templates) != 1 || templates[0].ID != "kept" {
		t.Fatalf("expected only the valid template, got %+v", templates)
	}
}
