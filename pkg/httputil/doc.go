// Package httputil provides HTTP handler utilities for consistent JSON
// encoding/decoding, error responses, pagination and cookie handling.
package httputil
