package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound        = errors.New("onboarding_target_not_found")
	ErrAlreadyAccepted = errors.New("terms_already_accepted")
	ErrIncompleteData  = errors.New("incomplete_data")
	ErrInvalidContact  = errors.New("invalid_contact")
	ErrInvalidRequest  = errors.New("invalid_request")
)

// IncompleteDataError lists the required fields still empty at acceptance.
type IncompleteDataError struct {
	Missing []string
}

func (e *IncompleteDataError) Error() string {
	return ErrIncompleteData.Error() + ": " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteDataError) Is(target error) bool {
	return target == ErrIncompleteData
}
