package domain

import "errors"

var (
	ErrNotFound      = errors.New("invitation_not_found")
	ErrDuplicate     = errors.New("invitation_duplicate")
	ErrExpired       = errors.New("invitation_expired")
	ErrRevoked       = errors.New("invitation_revoked")
	ErrAlreadyUsed   = errors.New("invitation_already_used")
	ErrTokenConflict = errors.New("invitation_token_conflict")

	ErrInvalidKind    = errors.New("invalid_kind")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidCompany = errors.New("invalid_company")
	ErrInvalidContact = errors.New("invalid_contact")
	ErrInvalidInviter = errors.New("invalid_inviter")
	ErrInvalidID      = errors.New("invalid_invitation_id")
)

// StateError maps a non-pending status to the error a caller sees when trying to use it.
func StateError(status Status) error {
	switch status {
	case StatusAccepted:
		return ErrAlreadyUsed
	case StatusExpired:
		return ErrExpired
	case StatusRevoked:
		return ErrRevoked
	default:
		return nil
	}
}
