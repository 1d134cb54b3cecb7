// Package session implements the Redis-backed session registry:
// opaque access/refresh token pairs mapping to an authenticated
// identity, with single-use refresh rotation.
package session
