package domain

// GoalTemplate is one seeded, immutable quest definition.
type GoalTemplate struct {
	ID               string
	Title            string
	Cadence          Cadence
	TargetCount      int
	TriggerEventType EventType
}

// Catalogue is the read-only set of goal templates for a deployment.
type Catalogue struct {
	templates []GoalTemplate
}

// NewCatalogue builds a catalogue from seeded templates. Templates with a
// non-positive target or an empty id are skipped rather than tripping every
// event that reaches the applicator.
func NewCatalogue(templates []GoalTemplate) *Catalogue {
	kept := make([]GoalTemplate, 0, len(templates))
	for _, template := range templates {
		if template.ID == "" || template.TargetCount <= 0 {
			continue
		}
		kept = append(kept, template)
	}
	return &Catalogue{templates: kept}
}

// DefaultCatalogue returns the reference deployment seed: one weekly and one
// monthly quest fed by shared journal entries.
func DefaultCatalogue() *Catalogue {
	return NewCatalogue([]GoalTemplate{
		{
			ID:               "weekly-journal",
			Title:            "Write 4 journal entries together this week",
			Cadence:          CadenceWeekly,
			TargetCount:      4,
			TriggerEventType: EventJournalEntryCreated,
		},
		{
			ID:               "monthly-journal",
			Title:            "Write 12 journal entries together this month",
			Cadence:          CadenceMonthly,
			TargetCount:      12,
			TriggerEventType: EventJournalEntryCreated,
		},
	})
}

// TemplatesForEvent returns every template triggered by the event type.
// Zero matches is a valid outcome the caller treats as a no-op.
func (c *Catalogue) TemplatesForEvent(eventType EventType) []GoalTemplate {
	if c == nil {
		return nil
	}
	var matches []GoalTemplate
	for _, template := range c.templates {
		if template.TriggerEventType == eventType {
			matches = append(matches, template)
		}
	}
	return matches
}

// TemplateForCadence returns the template rendered on the read path for one
// cadence. A missing template is a deployment configuration fault.
func (c *Catalogue) TemplateForCadence(cadence Cadence) (GoalTemplate, error) {
	if c == nil {
		return GoalTemplate{}, ErrCatalogueNotConfigured
	}
	for _, template := range c.templates {
		if template.Cadence == cadence {
			return template, nil
		}
	}
	return GoalTemplate{}, ErrTemplateNotConfigured
}

// Templates returns the full seeded template list.
func (c *Catalogue) Templates() []GoalTemplate {
	if c == nil {
		return nil
	}
	out := make([]GoalTemplate, len(c.templates))
	copy(out, c.templates)
	return out
}
