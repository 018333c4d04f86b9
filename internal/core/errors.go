package core

import "errors"

var (
	ErrMissingUser  = errors.New("userId is required")
	ErrInvalidMode  = errors.New("invalid mode")
	ErrEmptyTurn    = errors.New("message or image is required")
	ErrInvalidImage = errors.New("invalid image payload")
)

// IsValidation reports whether err was caused by bad caller input rather than
// a model or persistence failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingUser) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrEmptyTurn) ||
		errors.Is(err, ErrInvalidImage)
}
