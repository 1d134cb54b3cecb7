// Package middleware provides HTTP middleware: the authentication
// gate with refresh rotation, permission checks, request logging and
// metrics.
package middleware
