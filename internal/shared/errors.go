package shared

import "errors"

var (
	// ErrInvalidCredentials indicates API token authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
