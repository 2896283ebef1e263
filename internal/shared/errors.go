package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated occurs when no verified identity accompanies the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden occurs when the identity lacks the required role.
	ErrForbidden = errors.New("forbidden")
)
