package domain

import "errors"

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("quest store is not configured")
	// ErrCatalogueNotConfigured indicates the service is missing a goal catalogue.
	ErrCatalogueNotConfigured = errors.New("goal catalogue is not configured")
	// ErrRelationshipIDRequired indicates relationship identity is required.
	ErrRelationshipIDRequired = errors.New("relationship id is required")
	// ErrEventTypeInvalid indicates an event type outside the closed set.
	ErrEventTypeInvalid = errors.New("event type is not recognized")
	// ErrCadenceInvalid indicates a cadence outside the closed set.
	ErrCadenceInvalid = errors.New("cadence is not recognized")
	// ErrTemplateNotConfigured indicates the catalogue is missing a template
	// the read path depends on. This is a deployment fault, not a caller error.
	ErrTemplateNotConfigured = errors.New("goal template is not configured")
)
