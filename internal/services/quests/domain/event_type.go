package domain

import "strings"

// EventType identifies one domain action that can feed quest progress.
//
// The set is closed: hosts must parse free-form tokens through ParseEventType
// at the edge so unknown event types are rejected before they reach the
// engine.
type EventType string

const (
	// EventJournalEntryCreated fires when a shared journal entry is saved.
	EventJournalEntryCreated EventType = "journal.entry_created"
	// EventCheckInCompleted fires when both partners finish a daily check-in.
	EventCheckInCompleted EventType = "checkin.completed"
	// EventPhotoShared fires when a photo is added to the shared album.
	EventPhotoShared EventType = "photo.shared"
)

// ParseEventType validates a producer-provided event type token.
func ParseEventType(raw string) (EventType, error) {
	switch EventType(strings.ToLower(strings.TrimSpace(raw))) {
	case EventJournalEntryCreated:
		return EventJournalEntryCreated, nil
	case EventCheckInCompleted:
		return EventCheckInCompleted, nil
	case EventPhotoShared:
		return EventPhotoShared, nil
	default:
		return "", ErrEventTypeInvalid
	}
}
