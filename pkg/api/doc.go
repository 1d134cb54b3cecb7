// Package api exposes the HTTP API: authentication endpoints and the
// user, role and permission management surface under /api/v1.
package api
