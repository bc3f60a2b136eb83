package campaign

import "errors"

// Sentinel errors for the campaign service layer and its repositories.
//
// NotFound variants are fatal at orchestration entry (campaign, template)
// but skip-worthy during resolution and dispatch (subscriber, list).
var (
	ErrNotFound           = errors.New("campaign not found")
	ErrTemplateNotFound   = errors.New("template not found")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrListNotFound       = errors.New("mailing list not found")
	ErrRunNotFound        = errors.New("campaign run not found")
	ErrLinkNotFound       = errors.New("tracked link not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("concurrent update conflict")
)
