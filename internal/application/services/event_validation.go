package services

import (
	"fmt"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
	"github.com/zatekoja/kpitelemetry/pkg/validation"
)

// ValidateEvent checks the envelope and, when present, the payload.
// A payload of the wrong variant for the event kind is rejected.
func ValidateEvent(e *entities.Event) error {
	if e == nil {
		return apperrors.NewValidationError("event is nil")
	}
	if err := validation.Struct(e); err != nil {
		return apperrors.NewValidationErrorf(err, "invalid event")
	}
	if e.Payload == nil {
		return nil
	}
	if e.Payload.Kind() != e.Kind {
		return apperrors.NewValidationError(fmt.Sprintf("payload of type %s does not match event type %s", e.Payload.Kind(), e.Kind))
	}
	if err := validation.Struct(e.Payload); err != nil {
		return apperrors.NewValidationErrorf(err, "invalid %s payload", e.Kind)
	}
	return nil
}
