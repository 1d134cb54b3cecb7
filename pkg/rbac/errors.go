package rbac

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a uniqueness constraint was violated
	ErrDuplicate = errors.New("already exists")

	// ErrInvalidCredentials indicates email/password verification failed
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRoleNotCached indicates a role lookup missed the cache. The
	// cache is the only read path for authorization, so a miss is a
	// hard failure rather than a fallthrough to the database.
	ErrRoleNotCached = errors.New("role not cached")
)
