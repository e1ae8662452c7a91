package app

import (
	"errors"

	platformerrors "github.com/tandemhq/tandem/internal/platform/errors"
	"github.com/tandemhq/tandem/internal/services/quests/domain"
	"github.com/tandemhq/tandem/internal/services/quests/storage"
)

// StatusError maps quest engine errors to a gRPC status for host surfaces
// that expose engine operations remotely. Configuration faults surface as
// Internal so callers never mistake a missing catalogue template for bad
// input.
func StatusError(err error) error {
	return platformerrors.HandleError(classify(err))
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrEventTypeInvalid):
		return platformerrors.Wrap(platformerrors.CodeQuestEventTypeInvalid, err.Error(), err)
	case errors.Is(err, domain.ErrCadenceInvalid):
		return platformerrors.Wrap(platformerrors.CodeQuestCadenceInvalid, err.Error(), err)
	case errors.Is(err, domain.ErrRelationshipIDRequired):
		return platformerrors.Wrap(platformerrors.CodeQuestRelationshipIDRequired, err.Error(), err)
	case errors.Is(err, domain.ErrTemplateNotConfigured):
		return platformerrors.Wrap(platformerrors.CodeQuestTemplateNotConfigured, err.Error(), err)
	case errors.Is(err, storage.ErrNotFound):
		return platformerrors.Wrap(platformerrors.CodeNotFound, err.Error(), err)
	case errors.Is(err, storage.ErrConflict):
		return platformerrors.Wrap(platformerrors.CodeConflict, err.Error(), err)
	default:
		return err
	}
}
