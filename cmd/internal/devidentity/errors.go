package devidentity

import "errors"

var (
	ErrKeyTooShort      = errors.New("devidentity: signing key too short")
	ErrInvalidTTL       = errors.New("devidentity: access ttl must be positive")
	ErrUnknownNamespace = errors.New("devidentity: unknown namespace")
	ErrMissingSubject   = errors.New("devidentity: subject required")
	ErrUnknownRefresh   = errors.New("devidentity: unknown refresh credential")
	ErrInvalidAccess    = errors.New("devidentity: invalid access credential")
	ErrWrongNamespace   = errors.New("devidentity: credential issued for another namespace")
)
